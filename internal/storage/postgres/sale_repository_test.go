package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func TestBuildSaleOrderBy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		order []domain.OrderClause
		want  string
	}{
		{
			name: "default order",
			want: "s.sale_date DESC, s.id ASC",
		},
		{
			name: "several clauses",
			order: []domain.OrderClause{
				{Field: "SaleNumber", Direction: domain.OrderAsc},
				{Field: "branch_id", Direction: domain.OrderDesc},
			},
			want: "s.sale_number ASC, s.branch_id DESC, s.id ASC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildSaleOrderBy(tt.order)
			if err != nil {
				t.Fatalf("buildSaleOrderBy failed: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildSaleOrderBy_TotalAmountUsesSubquery(t *testing.T) {
	t.Parallel()

	got, err := buildSaleOrderBy([]domain.OrderClause{{Field: "totalAmount", Direction: domain.OrderDesc}})
	if err != nil {
		t.Fatalf("buildSaleOrderBy failed: %v", err)
	}
	if !strings.Contains(got, "FROM sale_items") || !strings.HasSuffix(got, "DESC, s.id ASC") {
		t.Fatalf("unexpected order by: %q", got)
	}
}

func TestBuildSaleOrderBy_RejectsUnknownField(t *testing.T) {
	t.Parallel()

	_, err := buildSaleOrderBy([]domain.OrderClause{{Field: "1; DROP TABLE sales", Direction: domain.OrderAsc}})
	if !errors.Is(err, domain.ErrUnknownOrderField) {
		t.Fatalf("expected ErrUnknownOrderField, got %v", err)
	}
}

func TestMapSaleWriteError(t *testing.T) {
	t.Parallel()

	sale := domain.NewSale("sale-1", "DS-20250312-000001", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), "c", "b")

	numberErr := mapSaleWriteError(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: saleNumberConstraint}), sale)
	if !errors.Is(numberErr, domain.ErrSaleNumberConflict) {
		t.Fatalf("expected number conflict, got %v", numberErr)
	}

	pkErr := mapSaleWriteError(&pgconn.PgError{Code: "23505", ConstraintName: "sales_pkey"}, sale)
	if !domain.IsConflict(pkErr) || errors.Is(pkErr, domain.ErrSaleNumberConflict) {
		t.Fatalf("expected generic conflict, got %v", pkErr)
	}

	ioErr := errors.New("connection reset")
	if got := mapSaleWriteError(ioErr, sale); !errors.Is(got, ioErr) || domain.IsConflict(got) {
		t.Fatalf("expected io error to pass through, got %v", got)
	}
}
