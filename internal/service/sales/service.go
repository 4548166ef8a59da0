// Package sales реализует сценарии работы с продажами поверх доменного хранилища.
package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Количество попыток generate+create при конфликте номера.
const createAttempts = 2

const (
	opCreate = "create"
	opGet    = "get"
	opList   = "list"
	opUpdate = "update"
	opCancel = "cancel"
	opDelete = "delete"
)

// NumberGenerator выдаёт номер для новой продажи.
type NumberGenerator interface {
	Generate(ctx context.Context, saleDate time.Time) (string, error)
}

// Metrics описывает метрики, которые пишет сервис.
type Metrics interface {
	RecordSaleCreated(amount float64)
	RecordSaleUpdated()
	RecordSaleCancelled()
	RecordSaleDeleted()
	RecordNumberConflict()
	RecordCreateRetry()
	RecordOperation(operation string, duration time.Duration, err error)
	RecordTimelineEvent()
	RecordOutboxEvent()
}

// ItemInput описывает позицию во входящем запросе.
type ItemInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type CreateSaleInput struct {
	SaleDate   time.Time
	CustomerID string
	BranchID   string
	Items      []ItemInput
}

// UpdateSaleInput заменяет дату, клиента, филиал и позиции продажи.
// Пустой SaleNumber означает "не менять".
type UpdateSaleInput struct {
	ID         string
	SaleNumber string
	SaleDate   time.Time
	CustomerID string
	BranchID   string
	Cancelled  bool
	Items      []ItemInput
}

type ListSalesInput struct {
	PageNumber int
	PageSize   int
	Order      string
}

// Service реализует сценарии работы с продажами.
type Service struct {
	repo     domain.SaleRepository
	numbers  NumberGenerator
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	metrics  Metrics
	logger   *log.Entry
	now      func() time.Time
}

type Option func(*Service)

func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = timeline
	}
}

func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник текущего времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService конструирует сервис с обязательными хранилищем и генератором номеров.
func NewService(repo domain.SaleRepository, numbers NumberGenerator, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		numbers: numbers,
		logger:  log.WithField("component", "sales-service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSale присваивает номер, проверяет и сохраняет новую продажу.
// При конфликте номера выполняется одна повторная попытка, затем конфликт возвращается вызывающему.
func (s *Service) CreateSale(ctx context.Context, in CreateSaleInput) (sale *domain.Sale, err error) {
	defer s.observe(opCreate, s.now(), &err)

	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		number, err := s.numbers.Generate(ctx, in.SaleDate)
		if err != nil {
			return nil, fmt.Errorf("generate sale number: %w", err)
		}

		sale = domain.NewSale(uuid.NewString(), number, in.SaleDate, in.CustomerID, in.BranchID)
		sale.AddItems(items...)

		if err := sale.ValidateAt(s.now()).Err(); err != nil {
			return nil, err
		}

		err = s.repo.Create(ctx, sale)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrSaleNumberConflict) {
			return nil, fmt.Errorf("create sale: %w", err)
		}

		s.recordNumberConflict()
		if attempt >= createAttempts {
			s.logger.WithFields(log.Fields{
				"sale_number": number,
				"attempts":    attempt,
			}).Warn("sale number conflict persisted after retry")
			return nil, err
		}
		s.logger.WithField("sale_number", number).Info("sale number conflict, regenerating")
		if s.metrics != nil {
			s.metrics.RecordCreateRetry()
		}
	}

	amount, _ := sale.TotalAmount().Float64()
	if s.metrics != nil {
		s.metrics.RecordSaleCreated(amount)
	}
	s.logger.WithFields(log.Fields{
		"sale_id":     sale.ID,
		"sale_number": sale.Number(),
		"items":       len(sale.Items()),
	}).Info("sale created")

	s.appendTimeline(ctx, sale.ID, domain.TimelineSaleCreated, sale.Number())
	s.enqueue(ctx, domain.EventSaleCreated, sale)

	return sale, nil
}

// GetSale возвращает продажу или ErrSaleNotFound.
func (s *Service) GetSale(ctx context.Context, id string) (sale *domain.Sale, err error) {
	defer s.observe(opGet, s.now(), &err)

	sale, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrapLoadError(err, id)
	}
	return sale, nil
}

// ListSales проверяет параметры страницы и выражение сортировки, затем читает страницу из хранилища.
func (s *Service) ListSales(ctx context.Context, in ListSalesInput) (page domain.PaginatedList[*domain.Sale], err error) {
	defer s.observe(opList, s.now(), &err)

	var problems []domain.ValidationError
	if in.PageNumber <= 0 {
		problems = append(problems, domain.ValidationError{Field: "pageNumber", Message: "Page number must be greater than zero."})
	}
	if in.PageSize <= 0 {
		problems = append(problems, domain.ValidationError{Field: "pageSize", Message: "Page size must be greater than zero."})
	}
	if !domain.HasValidOrderSuffix(in.Order) {
		problems = append(problems, domain.ValidationError{Field: "order", Message: "Invalid sorting criteria."})
	}
	if len(problems) > 0 {
		return page, domain.NewValidationFailure(problems...)
	}

	order, err := domain.ParseOrderExpression(in.Order)
	if err != nil {
		return page, err
	}

	page, err = s.repo.ListPage(ctx, domain.PageRequest{
		PageNumber: in.PageNumber,
		PageSize:   in.PageSize,
		Order:      order,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnknownOrderField) {
			return page, err
		}
		return page, fmt.Errorf("list sales: %w", err)
	}
	return page, nil
}

// UpdateSale перезаписывает изменяемые поля продажи.
// Номер менять нельзя, отменённую продажу нельзя вернуть в активное состояние.
func (s *Service) UpdateSale(ctx context.Context, in UpdateSaleInput) (sale *domain.Sale, err error) {
	defer s.observe(opUpdate, s.now(), &err)

	current, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, s.wrapLoadError(err, in.ID)
	}

	if in.SaleNumber != "" && in.SaleNumber != current.Number() {
		if err := s.checkNumberChange(ctx, current, in.SaleNumber); err != nil {
			return nil, err
		}
	}
	if current.Cancelled() && !in.Cancelled {
		return nil, domain.ErrSaleReactivation
	}

	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}
	sale = domain.RestoreSale(domain.SaleState{
		ID:         current.ID,
		Number:     current.Number(),
		SaleDate:   in.SaleDate,
		CustomerID: in.CustomerID,
		BranchID:   in.BranchID,
		Cancelled:  current.Cancelled(),
		Items:      items,
		Version:    current.Version,
		CreatedAt:  current.CreatedAt,
		UpdatedAt:  current.UpdatedAt,
	})
	cancelled := in.Cancelled && sale.Cancel()

	if err := sale.ValidateAt(s.now()).Err(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, sale); err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) || errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update sale %s: %w", sale.ID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordSaleUpdated()
	}
	s.logger.WithFields(log.Fields{
		"sale_id": sale.ID,
		"version": sale.Version,
	}).Info("sale updated")

	s.appendTimeline(ctx, sale.ID, domain.TimelineSaleModified, "")
	s.enqueue(ctx, domain.EventSaleModified, sale)
	if cancelled {
		s.afterCancel(ctx, sale)
	}

	return sale, nil
}

// CancelSale отменяет продажу. Повторная отмена возвращает продажу без изменений и событий.
func (s *Service) CancelSale(ctx context.Context, id string) (sale *domain.Sale, err error) {
	defer s.observe(opCancel, s.now(), &err)

	sale, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrapLoadError(err, id)
	}

	if !sale.Cancel() {
		return sale, nil
	}

	if err := s.repo.Update(ctx, sale); err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) || errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel sale %s: %w", id, err)
	}

	s.afterCancel(ctx, sale)
	return sale, nil
}

// DeleteSale удаляет продажу вместе с позициями.
func (s *Service) DeleteSale(ctx context.Context, id string) (err error) {
	defer s.observe(opDelete, s.now(), &err)

	sale, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.wrapLoadError(err, id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) {
			return err
		}
		return fmt.Errorf("delete sale %s: %w", id, err)
	}

	if s.metrics != nil {
		s.metrics.RecordSaleDeleted()
	}
	s.logger.WithField("sale_id", id).Info("sale deleted")
	s.enqueue(ctx, domain.EventSaleDeleted, sale)
	return nil
}

// Timeline возвращает события жизненного цикла продажи.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	events, err := s.timeline.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list timeline for sale %s: %w", id, err)
	}
	return events, nil
}

func (s *Service) checkNumberChange(ctx context.Context, current *domain.Sale, number string) error {
	owner, err := s.repo.GetByNumber(ctx, number)
	switch {
	case errors.Is(err, domain.ErrSaleNotFound):
		return domain.ErrSaleNumberImmutable
	case err != nil:
		return fmt.Errorf("lookup sale number %s: %w", number, err)
	case owner.ID != current.ID:
		return domain.ErrSaleNumberTaken
	default:
		return nil
	}
}

func (s *Service) afterCancel(ctx context.Context, sale *domain.Sale) {
	if s.metrics != nil {
		s.metrics.RecordSaleCancelled()
	}
	s.logger.WithField("sale_id", sale.ID).Info("sale cancelled")
	s.appendTimeline(ctx, sale.ID, domain.TimelineSaleCancelled, "")
	s.enqueue(ctx, domain.EventSaleCancelled, sale)
}

func (s *Service) wrapLoadError(err error, id string) error {
	if errors.Is(err, domain.ErrSaleNotFound) {
		return err
	}
	s.logger.WithError(err).WithField("sale_id", id).Error("failed to load sale")
	return fmt.Errorf("load sale %s: %w", id, err)
}

func (s *Service) recordNumberConflict() {
	if s.metrics != nil {
		s.metrics.RecordNumberConflict()
	}
}

func (s *Service) observe(operation string, started time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, s.now().Sub(started), *err)
	}
}

func (s *Service) appendTimeline(ctx context.Context, saleID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		SaleID:   saleID,
		Type:     eventType,
		Reason:   reason,
		Occurred: s.now(),
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sale_id": saleID,
			"event":   eventType,
		}).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) enqueue(ctx context.Context, eventType string, sale *domain.Sale) {
	if s.outbox == nil {
		return
	}
	payload, err := encodeSaleEvent(sale)
	if err != nil {
		s.logger.WithError(err).WithField("sale_id", sale.ID).Warn("failed to encode sale event")
		return
	}
	_, err = s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeSale,
		AggregateID:   sale.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     s.now(),
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sale_id": sale.ID,
			"event":   eventType,
		}).Warn("failed to enqueue outbox event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

// buildItems строит позиции через доменную политику скидок.
// Количество выше предела возвращает ErrInvalidQuantity с индексом позиции.
func buildItems(inputs []ItemInput) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := domain.NewSaleItem(uuid.NewString(), in.ProductID, in.Quantity, in.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
