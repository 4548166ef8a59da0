package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
)

func TestNewSalesService_NilLogger(t *testing.T) {
	svc := NewSalesService(nil, nil, nil)
	if svc.logger == nil {
		t.Fatal("expected default logger")
	}
}

func TestStatusFromError(t *testing.T) {
	svc := NewSalesService(nil, nil, log.New().WithField("component", "test"))

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", domain.NewValidationFailure(domain.ValidationError{Field: "items", Message: "Sale must have at least one item."}), codes.InvalidArgument},
		{"order expression", fmt.Errorf("parse: %w", domain.ErrInvalidOrderExpression), codes.InvalidArgument},
		{"unknown field", domain.ErrUnknownOrderField, codes.InvalidArgument},
		{"not found", domain.ErrSaleNotFound, codes.NotFound},
		{"number conflict", fmt.Errorf("create: %w", domain.ErrSaleNumberConflict), codes.AlreadyExists},
		{"version conflict", domain.ErrSaleVersionConflict, codes.Aborted},
		{"invalid quantity", fmt.Errorf("items[0]: %w", domain.ErrInvalidQuantity), codes.FailedPrecondition},
		{"reactivation", domain.ErrSaleReactivation, codes.FailedPrecondition},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"unexpected", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := status.Code(svc.statusFromError(tt.err, "test"))
			if got != tt.code {
				t.Fatalf("expected %s, got %s", tt.code, got)
			}
		})
	}
}

func TestDecodeIdempotencyFailure_Branches(t *testing.T) {
	payload, _ := json.Marshal(idempotencyErrorPayload{Code: int32(codes.NotFound), Message: "sale not found"})

	tests := []struct {
		name    string
		resp    idempotency.Response
		code    codes.Code
		message string
	}{
		{"payload", idempotency.Response{Code: int(codes.NotFound), Body: payload, Failed: true}, codes.NotFound, "sale not found"},
		{"code only", idempotency.Response{Code: int(codes.Aborted), Failed: true}, codes.Aborted, previousFailureMessage},
		{"garbage", idempotency.Response{Code: 999, Body: []byte("{"), Failed: true}, codes.Internal, previousFailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := status.Convert(decodeIdempotencyFailure(tt.resp))
			if st.Code() != tt.code || st.Message() != tt.message {
				t.Fatalf("unexpected status %s %q", st.Code(), st.Message())
			}
		})
	}
}

func TestIdempotencyStatus(t *testing.T) {
	if code := status.Code(idempotencyStatus(domain.ErrIdempotencyHashMismatch)); code != codes.AlreadyExists {
		t.Fatalf("hash mismatch: got %s", code)
	}
	if code := status.Code(idempotencyStatus(domain.ErrIdempotencyInProgress)); code != codes.Aborted {
		t.Fatalf("in progress: got %s", code)
	}
	if code := status.Code(idempotencyStatus(errors.New("redis down"))); code != codes.Internal {
		t.Fatalf("storage failure: got %s", code)
	}
}

func TestReadIdempotencyKey(t *testing.T) {
	if key := readIdempotencyKey(context.Background()); key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}

	incoming := metadata.NewIncomingContext(context.Background(), metadata.Pairs(IdempotencyKeyHeader, " key-1 "))
	if key := readIdempotencyKey(incoming); key != "key-1" {
		t.Fatalf("expected trimmed incoming key, got %q", key)
	}

	outgoing := metadata.AppendToOutgoingContext(context.Background(), IdempotencyKeyHeader, "key-2")
	if key := readIdempotencyKey(outgoing); key != "key-2" {
		t.Fatalf("expected outgoing key, got %q", key)
	}
}

func TestDecodeStruct_NilRequest(t *testing.T) {
	var dst struct{}
	if code := status.Code(DecodeStruct(nil, &dst)); code != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %s", code)
	}
}
