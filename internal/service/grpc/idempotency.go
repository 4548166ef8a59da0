package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
)

// IdempotencyKeyHeader — ключ metadata с idempotency-key.
const IdempotencyKeyHeader = "idempotency-key"

const previousFailureMessage = "previous request with the same idempotency key failed"

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

type structHandler func(context.Context) (*structpb.Struct, error)

// withIdempotency выполняет мутирующий вызов. Без ключа в metadata запрос выполняется как есть.
func (s *SalesService) withIdempotency(ctx context.Context, method string, req *structpb.Struct, handler structHandler) (*structpb.Struct, error) {
	key := readIdempotencyKey(ctx)
	if s.guard == nil || key == "" {
		return handler(ctx)
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	resp, replayed, err := s.guard.Do(ctx, key, idempotency.RequestHash(method, data), func(ctx context.Context) idempotency.Response {
		out, runErr := handler(ctx)
		if runErr != nil {
			return s.failureResponse(key, runErr)
		}
		body, marshalErr := protojson.Marshal(out)
		if marshalErr != nil {
			return s.failureResponse(key, status.Error(codes.Internal, "failed to encode response"))
		}
		return idempotency.Response{Code: int(codes.OK), Body: body}
	})
	if err != nil {
		return nil, idempotencyStatus(err)
	}
	if replayed {
		s.logger.WithFields(log.Fields{"method": method, "idempotency_key": key}).Debug("replaying cached response")
	}

	if resp.Failed {
		return nil, decodeIdempotencyFailure(resp)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(resp.Body, out); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to decode cached idempotency response")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return out, nil
}

func (s *SalesService) failureResponse(key string, runErr error) idempotency.Response {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}
	return idempotency.Response{Code: int(code), Body: payload, Failed: true}
}

func idempotencyStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		return status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	default:
		return status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func decodeIdempotencyFailure(resp idempotency.Response) error {
	if len(resp.Body) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(resp.Body, &payload); err == nil {
			if code, ok := grpcCode(int(payload.Code)); ok && code != codes.OK {
				if payload.Message == "" {
					payload.Message = previousFailureMessage
				}
				return status.Error(code, payload.Message)
			}
		}
	}

	if code, ok := grpcCode(resp.Code); ok && code != codes.OK {
		return status.Error(code, previousFailureMessage)
	}
	return status.Error(codes.Internal, previousFailureMessage)
}

func grpcCode(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

// readIdempotencyKey ищет ключ во входящей metadata, затем в исходящей (для in-process вызовов).
func readIdempotencyKey(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if key := firstValue(md); key != "" {
			return key
		}
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		return firstValue(md)
	}
	return ""
}

func firstValue(md metadata.MD) string {
	values := md.Get(IdempotencyKeyHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
