package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
	"github.com/vladislavdragonenkov/sales/internal/transport/saledto"
)

// SalesUseCases перечисляет операции прикладного сервиса, нужные транспорту.
type SalesUseCases interface {
	CreateSale(ctx context.Context, in sales.CreateSaleInput) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, in sales.ListSalesInput) (domain.PaginatedList[*domain.Sale], error)
	UpdateSale(ctx context.Context, in sales.UpdateSaleInput) (*domain.Sale, error)
	CancelSale(ctx context.Context, id string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error)
}

// SalesService реализует gRPC API поверх прикладного сервиса продаж.
type SalesService struct {
	sales  SalesUseCases
	guard  *idempotency.Guard
	logger *log.Entry
}

var _ SalesServer = (*SalesService)(nil)

// NewSalesService конструирует сервис. guard может быть nil, тогда idempotency-key игнорируется.
func NewSalesService(useCases SalesUseCases, guard *idempotency.Guard, logger *log.Entry) *SalesService {
	if logger == nil {
		logger = log.New().WithField("component", "sales-grpc")
	}
	return &SalesService{
		sales:  useCases,
		guard:  guard,
		logger: logger,
	}
}

// CreateSale создаёт продажу с автоматически присвоенным номером.
func (s *SalesService) CreateSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body saledto.CreateSaleRequest
	if err := DecodeStruct(req, &body); err != nil {
		return nil, err
	}

	return s.withIdempotency(ctx, MethodCreateSale, req, func(ctx context.Context) (*structpb.Struct, error) {
		sale, err := s.sales.CreateSale(ctx, body.Input())
		if err != nil {
			return nil, s.statusFromError(err, "CreateSale")
		}
		return EncodeStruct(saledto.FromSale(sale))
	})
}

// GetSale возвращает продажу вместе с историей изменений.
func (s *SalesService) GetSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}

	sale, err := s.sales.GetSale(ctx, id)
	if err != nil {
		return nil, s.statusFromError(err, "GetSale")
	}

	details := saledto.SaleDetails{Sale: saledto.FromSale(sale)}
	events, err := s.sales.Timeline(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", id).Warn("failed to load sale timeline")
	} else {
		details.Timeline = saledto.FromTimeline(events)
	}
	return EncodeStruct(details)
}

func (s *SalesService) ListSales(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body saledto.ListSalesRequest
	if err := DecodeStruct(req, &body); err != nil {
		return nil, err
	}

	page, err := s.sales.ListSales(ctx, body.Input())
	if err != nil {
		return nil, s.statusFromError(err, "ListSales")
	}
	return EncodeStruct(saledto.FromPage(page))
}

// UpdateSale заменяет изменяемые поля продажи.
func (s *SalesService) UpdateSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body saledto.UpdateSaleRequest
	if err := DecodeStruct(req, &body); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body.ID) == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	return s.withIdempotency(ctx, MethodUpdateSale, req, func(ctx context.Context) (*structpb.Struct, error) {
		sale, err := s.sales.UpdateSale(ctx, body.Input())
		if err != nil {
			return nil, s.statusFromError(err, "UpdateSale")
		}
		return EncodeStruct(saledto.FromSale(sale))
	})
}

// CancelSale отменяет продажу. Повторная отмена возвращает текущее состояние.
func (s *SalesService) CancelSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}

	return s.withIdempotency(ctx, MethodCancelSale, req, func(ctx context.Context) (*structpb.Struct, error) {
		sale, err := s.sales.CancelSale(ctx, id)
		if err != nil {
			return nil, s.statusFromError(err, "CancelSale")
		}
		return EncodeStruct(saledto.FromSale(sale))
	})
}

func (s *SalesService) DeleteSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireID(req)
	if err != nil {
		return nil, err
	}

	return s.withIdempotency(ctx, MethodDeleteSale, req, func(ctx context.Context) (*structpb.Struct, error) {
		if err := s.sales.DeleteSale(ctx, id); err != nil {
			return nil, s.statusFromError(err, "DeleteSale")
		}
		return EncodeStruct(saledto.DeleteResponse{ID: id, Deleted: true})
	})
}

// statusFromError переводит ошибки домена в коды gRPC.
func (s *SalesService) statusFromError(err error, operation string) error {
	var failure *domain.ValidationFailure
	switch {
	case errors.As(err, &failure):
		return status.Error(codes.InvalidArgument, failure.Error())
	case errors.Is(err, domain.ErrInvalidOrderExpression), errors.Is(err, domain.ErrUnknownOrderField):
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, domain.ErrSaleNotFound.Error())
	case errors.Is(err, domain.ErrSaleNumberConflict):
		return status.Error(codes.AlreadyExists, domain.ErrSaleNumberConflict.Error())
	case domain.IsVersionConflict(err):
		return status.Error(codes.Aborted, domain.ErrSaleVersionConflict.Error())
	case domain.IsInvalidOperation(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithField("operation", operation).Error("sale operation failed")
		return status.Error(codes.Internal, "internal error")
	}
}

func requireID(req *structpb.Struct) (string, error) {
	var body saledto.IDRequest
	if err := DecodeStruct(req, &body); err != nil {
		return "", err
	}
	id := strings.TrimSpace(body.ID)
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "id is required")
	}
	return id, nil
}

// EncodeStruct переводит JSON-совместимое значение в google.protobuf.Struct.
func EncodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// DecodeStruct разбирает google.protobuf.Struct в JSON-структуру dst.
func DecodeStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	return nil
}
