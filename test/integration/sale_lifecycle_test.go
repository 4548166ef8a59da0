package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/sales/internal/service/grpc"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
	"github.com/vladislavdragonenkov/sales/internal/service/outbox"
	"github.com/vladislavdragonenkov/sales/internal/service/salenumber"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
	"github.com/vladislavdragonenkov/sales/internal/transport/saledto"
)

var lifecycleDate = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType)
	}
	return out
}

// SaleLifecycleTestSuite проверяет полный жизненный цикл продажи через gRPC-слой.
type SaleLifecycleTestSuite struct {
	suite.Suite
	service   *grpcsvc.SalesService
	outbox    *memory.OutboxRepository
	worker    *outbox.Worker
	publisher *recordingPublisher
}

func (suite *SaleLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	repo := memory.NewSaleRepository()
	suite.outbox = memory.NewOutboxRepository()
	suite.publisher = &recordingPublisher{}

	useCases := sales.NewService(repo, salenumber.NewGenerator(repo),
		sales.WithTimeline(memory.NewTimelineRepository()),
		sales.WithOutbox(suite.outbox),
		sales.WithLogger(logger),
	)
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour, logger)

	suite.service = grpcsvc.NewSalesService(useCases, guard, logger)
	suite.worker = outbox.NewWorker(suite.outbox, suite.publisher,
		outbox.WithLogger(logger),
		outbox.WithRetryBaseDelay(time.Millisecond),
	)
}

func (suite *SaleLifecycleTestSuite) encode(v any) *structpb.Struct {
	in, err := grpcsvc.EncodeStruct(v)
	suite.Require().NoError(err)
	return in
}

func (suite *SaleLifecycleTestSuite) decode(in *structpb.Struct, dst any) {
	suite.Require().NoError(grpcsvc.DecodeStruct(in, dst))
}

func (suite *SaleLifecycleTestSuite) createSale(ctx context.Context, customer string) saledto.SaleResponse {
	out, err := suite.service.CreateSale(ctx, suite.encode(saledto.CreateSaleRequest{
		SaleDate: lifecycleDate,
		Customer: customer,
		Branch:   "branch-1",
		Items: []saledto.ItemRequest{
			{Product: "product-1", Quantity: 10, UnitPrice: decimal.NewFromInt(10)},
			{Product: "product-2", Quantity: 5, UnitPrice: decimal.NewFromInt(20)},
		},
	}))
	suite.Require().NoError(err)

	var sale saledto.SaleResponse
	suite.decode(out, &sale)
	return sale
}

func (suite *SaleLifecycleTestSuite) TestFullLifecycle() {
	ctx := context.Background()

	created := suite.createSale(ctx, "customer-1")
	require.NotEmpty(suite.T(), created.ID)
	require.Equal(suite.T(), "DS-20250312-000001", created.SaleNumber)
	// 10*10 со скидкой 20% + 5*20 со скидкой 10%
	require.True(suite.T(), created.TotalAmount.Equal(decimal.NewFromInt(170)), "total %s", created.TotalAmount)

	updatedOut, err := suite.service.UpdateSale(ctx, suite.encode(saledto.UpdateSaleRequest{
		ID:       created.ID,
		SaleDate: lifecycleDate,
		Customer: "customer-1",
		Branch:   "branch-2",
		Items: []saledto.ItemRequest{
			{Product: "product-3", Quantity: 2, UnitPrice: decimal.NewFromInt(15)},
		},
	}))
	require.NoError(suite.T(), err)
	var updated saledto.SaleResponse
	suite.decode(updatedOut, &updated)
	require.Equal(suite.T(), created.SaleNumber, updated.SaleNumber)
	require.Equal(suite.T(), "branch-2", updated.Branch)
	require.True(suite.T(), updated.TotalAmount.Equal(decimal.NewFromInt(30)))
	require.Greater(suite.T(), updated.Version, created.Version)

	cancelOut, err := suite.service.CancelSale(ctx, suite.encode(saledto.IDRequest{ID: created.ID}))
	require.NoError(suite.T(), err)
	var cancelled saledto.SaleResponse
	suite.decode(cancelOut, &cancelled)
	require.True(suite.T(), cancelled.Cancelled)

	getOut, err := suite.service.GetSale(ctx, suite.encode(saledto.IDRequest{ID: created.ID}))
	require.NoError(suite.T(), err)
	var details saledto.SaleDetails
	suite.decode(getOut, &details)
	require.True(suite.T(), details.Sale.Cancelled)

	timelineTypes := make([]string, 0, len(details.Timeline))
	for _, entry := range details.Timeline {
		timelineTypes = append(timelineTypes, entry.Type)
	}
	require.Equal(suite.T(), []string{
		domain.TimelineSaleCreated,
		domain.TimelineSaleModified,
		domain.TimelineSaleCancelled,
	}, timelineTypes)

	listOut, err := suite.service.ListSales(ctx, suite.encode(map[string]any{"pageNumber": 1, "pageSize": 10, "order": "saleDate desc"}))
	require.NoError(suite.T(), err)
	var page saledto.SalePage
	suite.decode(listOut, &page)
	require.Equal(suite.T(), 1, page.TotalCount)
	require.Len(suite.T(), page.Items, 1)

	deleteOut, err := suite.service.DeleteSale(ctx, suite.encode(saledto.IDRequest{ID: created.ID}))
	require.NoError(suite.T(), err)
	var deleted saledto.DeleteResponse
	suite.decode(deleteOut, &deleted)
	require.True(suite.T(), deleted.Deleted)

	_, err = suite.service.GetSale(ctx, suite.encode(saledto.IDRequest{ID: created.ID}))
	require.Equal(suite.T(), codes.NotFound, status.Code(err))

	suite.worker.ProcessOnce(ctx)
	require.Equal(suite.T(), []string{
		domain.EventSaleCreated,
		domain.EventSaleModified,
		domain.EventSaleCancelled,
		domain.EventSaleDeleted,
	}, suite.publisher.types())
	require.Empty(suite.T(), suite.outbox.AllPending())
}

func (suite *SaleLifecycleTestSuite) TestSequentialNumbersPerDay() {
	ctx := context.Background()

	first := suite.createSale(ctx, "customer-1")
	second := suite.createSale(ctx, "customer-2")
	third := suite.createSale(ctx, "customer-3")

	require.Equal(suite.T(), "DS-20250312-000001", first.SaleNumber)
	require.Equal(suite.T(), "DS-20250312-000002", second.SaleNumber)
	require.Equal(suite.T(), "DS-20250312-000003", third.SaleNumber)
}

func (suite *SaleLifecycleTestSuite) TestIdempotentCreateReplay() {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(grpcsvc.IdempotencyKeyHeader, "create-once"))

	first := suite.createSale(ctx, "customer-1")
	replayed := suite.createSale(ctx, "customer-1")
	require.Equal(suite.T(), first.ID, replayed.ID)
	require.Equal(suite.T(), first.SaleNumber, replayed.SaleNumber)

	suite.worker.ProcessOnce(context.Background())
	require.Equal(suite.T(), []string{domain.EventSaleCreated}, suite.publisher.types())
}

func (suite *SaleLifecycleTestSuite) TestCancelledSaleStaysCancelled() {
	ctx := context.Background()
	created := suite.createSale(ctx, "customer-1")

	for i := 0; i < 2; i++ {
		_, err := suite.service.CancelSale(ctx, suite.encode(saledto.IDRequest{ID: created.ID}))
		require.NoError(suite.T(), err)
	}

	getOut, err := suite.service.GetSale(ctx, suite.encode(saledto.IDRequest{ID: created.ID}))
	require.NoError(suite.T(), err)
	var details saledto.SaleDetails
	suite.decode(getOut, &details)
	require.True(suite.T(), details.Sale.Cancelled)
	require.Len(suite.T(), details.Timeline, 2, "repeated cancel must not append timeline events")
}

func (suite *SaleLifecycleTestSuite) TestValidationErrors() {
	ctx := context.Background()

	_, err := suite.service.CreateSale(ctx, suite.encode(saledto.CreateSaleRequest{
		SaleDate: lifecycleDate,
		Customer: "customer-1",
		Branch:   "branch-1",
		Items: []saledto.ItemRequest{
			{Product: "product-1", Quantity: 25, UnitPrice: decimal.NewFromInt(10)},
		},
	}))
	require.Equal(suite.T(), codes.FailedPrecondition, status.Code(err))

	_, err = suite.service.CreateSale(ctx, suite.encode(saledto.CreateSaleRequest{
		SaleDate: lifecycleDate,
		Branch:   "branch-1",
		Items: []saledto.ItemRequest{
			{Product: "product-1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		},
	}))
	require.Equal(suite.T(), codes.InvalidArgument, status.Code(err))

	_, err = suite.service.ListSales(ctx, suite.encode(map[string]any{"pageNumber": 1, "pageSize": 10, "order": "password asc"}))
	require.Equal(suite.T(), codes.InvalidArgument, status.Code(err))

	_, err = suite.service.CancelSale(ctx, suite.encode(saledto.IDRequest{ID: "missing"}))
	require.Equal(suite.T(), codes.NotFound, status.Code(err))
}

func TestSaleLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(SaleLifecycleTestSuite))
}
