package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	saleNumberConstraint = "sales_sale_number_key"

	saleColumns = `s.id, s.sale_number, s.sale_date, s.customer_id, s.branch_id, s.cancelled, s.version, s.created_at, s.updated_at`

	saleTotalAmountExpr = `COALESCE((
		SELECT SUM(i.quantity * i.unit_price * (1 - i.discount))
		FROM sale_items i
		WHERE i.sale_id = s.id
	), 0)`
)

// Белый список выражений ORDER BY: имя из запроса никогда не попадает в SQL напрямую.
var saleOrderColumns = map[domain.SaleField]string{
	domain.SaleFieldID:          "s.id",
	domain.SaleFieldNumber:      "s.sale_number",
	domain.SaleFieldDate:        "s.sale_date",
	domain.SaleFieldCustomer:    "s.customer_id",
	domain.SaleFieldBranch:      "s.branch_id",
	domain.SaleFieldCancelled:   "s.cancelled",
	domain.SaleFieldTotalAmount: saleTotalAmountExpr,
}

type saleRepository struct {
	store *Store
	db    *sql.DB
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{store: store, db: store.DB()}
}

func (r *saleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	createdAt := sale.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sales (
				id, sale_number, sale_date, customer_id, branch_id, cancelled, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			sale.ID, sale.Number(), sale.SaleDate.UTC(), sale.CustomerID, sale.BranchID,
			sale.Cancelled(), sale.Version, createdAt, now,
		); err != nil {
			return mapSaleWriteError(err, sale)
		}
		return insertItems(ctx, tx, sale)
	})
	if err != nil {
		return err
	}

	sale.CreatedAt = createdAt
	sale.UpdatedAt = now
	return nil
}

// Update заменяет поля и позиции продажи при совпадении версии.
func (r *saleRepository) Update(ctx context.Context, sale *domain.Sale) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()

	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sales
			SET sale_number = $1,
			    sale_date = $2,
			    customer_id = $3,
			    branch_id = $4,
			    cancelled = $5,
			    version = version + 1,
			    updated_at = $6
			WHERE id = $7
			  AND version = $8
		`,
			sale.Number(), sale.SaleDate.UTC(), sale.CustomerID, sale.BranchID,
			sale.Cancelled(), now, sale.ID, sale.Version,
		)
		if err != nil {
			return mapSaleWriteError(err, sale)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := saleExistsTx(ctx, tx, sale.ID)
			switch {
			case err != nil:
				return err
			case !exists:
				return domain.ErrSaleNotFound
			default:
				return domain.ErrSaleVersionConflict
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
			return fmt.Errorf("delete sale items: %w", err)
		}
		return insertItems(ctx, tx, sale)
	})
	if err != nil {
		return err
	}

	sale.Version++
	sale.UpdatedAt = now
	return nil
}

func (r *saleRepository) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	return r.getOne(ctx, `s.id = $1`, id)
}

func (r *saleRepository) GetByNumber(ctx context.Context, number string) (*domain.Sale, error) {
	return r.getOne(ctx, `s.sale_number = $1`, number)
}

// GetLastForDate берёт лексикографически наибольший номер с префиксом DS-YYYYMMDD-.
func (r *saleRepository) GetLastForDate(ctx context.Context, saleDate time.Time) (*domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		WHERE s.sale_number LIKE $1
		ORDER BY s.sale_number DESC
		LIMIT 1
	`, domain.SaleNumberDatePrefix(saleDate)+"%")

	return r.finishOne(ctx, row)
}

func (r *saleRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrSaleNotFound
	}
	return nil
}

func (r *saleRepository) ListPage(ctx context.Context, req domain.PageRequest) (domain.PaginatedList[*domain.Sale], error) {
	orderBy, err := buildSaleOrderBy(req.Order)
	if err != nil {
		return domain.PaginatedList[*domain.Sale]{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&total); err != nil {
		return domain.PaginatedList[*domain.Sale]{}, fmt.Errorf("count sales: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		ORDER BY `+orderBy+`
		LIMIT $1 OFFSET $2
	`, req.PageSize, req.Offset())
	if err != nil {
		return domain.PaginatedList[*domain.Sale]{}, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	states := make([]domain.SaleState, 0, req.PageSize)
	for rows.Next() {
		state, err := scanSaleState(rows)
		if err != nil {
			return domain.PaginatedList[*domain.Sale]{}, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedList[*domain.Sale]{}, fmt.Errorf("iterate sale rows: %w", err)
	}

	sales := make([]*domain.Sale, 0, len(states))
	for _, state := range states {
		items, err := r.loadItems(ctx, state.ID)
		if err != nil {
			return domain.PaginatedList[*domain.Sale]{}, err
		}
		state.Items = items
		sales = append(sales, domain.RestoreSale(state))
	}

	return domain.NewPaginatedList(sales, total, req.PageNumber, req.PageSize), nil
}

// buildSaleOrderBy переводит условия сортировки в ORDER BY через белый список колонок.
func buildSaleOrderBy(order []domain.OrderClause) (string, error) {
	if len(order) == 0 {
		order = domain.DefaultSaleOrder
	}

	parts := make([]string, 0, len(order)+1)
	for _, clause := range order {
		field, err := domain.ResolveSaleField(clause.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if clause.Direction == domain.OrderDesc {
			dir = "DESC"
		}
		parts = append(parts, saleOrderColumns[field]+" "+dir)
	}
	parts = append(parts, "s.id ASC")

	return strings.Join(parts, ", "), nil
}

func (r *saleRepository) getOne(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		WHERE `+where, arg)

	return r.finishOne(ctx, row)
}

func (r *saleRepository) finishOne(ctx context.Context, row *sql.Row) (*domain.Sale, error) {
	state, err := scanSaleState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSaleNotFound
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, state.ID)
	if err != nil {
		return nil, err
	}
	state.Items = items

	return domain.RestoreSale(state), nil
}

func (r *saleRepository) loadItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, unit_price, discount
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY position ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("load sale items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0)
	for rows.Next() {
		item := domain.SaleItem{SaleID: saleID}
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Discount); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSaleState(row rowScanner) (domain.SaleState, error) {
	var state domain.SaleState
	err := row.Scan(
		&state.ID, &state.Number, &state.SaleDate, &state.CustomerID, &state.BranchID,
		&state.Cancelled, &state.Version, &state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SaleState{}, err
		}
		return domain.SaleState{}, fmt.Errorf("scan sale: %w", err)
	}
	state.SaleDate = state.SaleDate.UTC()
	return state, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
	for pos, item := range sale.Items() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, position, product_id, quantity, unit_price, discount
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID, sale.ID, pos, item.ProductID, item.Quantity, item.UnitPrice, item.Discount,
		); err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return nil
}

func saleExistsTx(ctx context.Context, tx *sql.Tx, saleID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE id = $1`, saleID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check sale exists: %w", err)
}

// mapSaleWriteError переводит нарушение уникальности в доменный конфликт.
func mapSaleWriteError(err error, sale *domain.Sale) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return fmt.Errorf("write sale: %w", err)
	}
	if constraint == saleNumberConstraint {
		return fmt.Errorf("sale number %s: %w", sale.Number(), domain.ErrSaleNumberConflict)
	}
	return fmt.Errorf("%w: sale %s already exists", domain.ErrConflict, sale.ID)
}

// uniqueViolation возвращает имя нарушенного ограничения уникальности (SQLSTATE 23505).
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

var _ domain.SaleRepository = (*saleRepository)(nil)
