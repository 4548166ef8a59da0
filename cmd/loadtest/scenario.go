package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/sales/internal/service/grpc"
	"github.com/vladislavdragonenkov/sales/internal/transport/saledto"
)

type rpc func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

// salesClient методы grpcsvc.SalesClient, которые использует нагрузка.
type salesClient interface {
	CreateSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CancelSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DeleteSale(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// runner прогоняет сценарии через один клиент.
type runner struct {
	client salesClient
	opts   options
	runID  string
	rec    *recorder
}

// run выполняет сценарий i: создание, затем отмена и удаление по режиму.
func (r runner) run(i int) (err error) {
	started := time.Now()
	defer func() { r.rec.observe(scenarioSeries, time.Since(started), err) }()

	// дата чуть в прошлом, чтобы расхождение часов не сделало продажу будущей
	req := saledto.CreateSaleRequest{
		SaleDate: started.Add(-time.Minute).UTC(),
		Customer: fmt.Sprintf("%s-%s-%d", r.opts.customerPrefix, r.runID, i),
		Branch:   r.opts.branch,
		Items: []saledto.ItemRequest{
			{Product: r.opts.product, Quantity: r.opts.quantity, UnitPrice: r.opts.unitPrice},
		},
	}

	var sale saledto.SaleResponse
	if err := r.call("CreateSale", r.client.CreateSale, r.key("create", i), req, &sale); err != nil {
		return err
	}
	if sale.ID == "" {
		return status.Error(codes.Internal, "create response returned empty sale id")
	}
	// удаление освобождает номер, повторы считаются только без него
	if r.opts.mode != modeCreateCancelDelete {
		r.rec.sawNumber(sale.SaleNumber)
	}

	byID := saledto.IDRequest{ID: sale.ID}
	if r.opts.cancels(i) {
		if err := r.call("CancelSale", r.client.CancelSale, r.key("cancel", i), byID, nil); err != nil {
			return err
		}
	}
	if r.opts.mode == modeCreateCancelDelete {
		if err := r.call("DeleteSale", r.client.DeleteSale, r.key("delete", i), byID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r runner) key(op string, i int) string {
	return fmt.Sprintf("lt-%s-%s-%d", op, r.runID, i)
}

// call кодирует запрос, ставит idempotency-key и учитывает латентность метода.
func (r runner) call(method string, fn rpc, key string, req, resp any) error {
	in, err := grpcsvc.EncodeStruct(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.rpcTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, grpcsvc.IdempotencyKeyHeader, key)

	started := time.Now()
	out, err := fn(ctx, in)
	r.rec.observe(method, time.Since(started), err)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if out == nil {
		return errors.New(method + ": empty response")
	}
	if err := grpcsvc.DecodeStruct(out, resp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	return nil
}
