package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// saleRepositoryInMemory хранит продажи в памяти процесса.
// Уникальность номера поддерживается индексом number -> id.
type saleRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]*domain.Sale
	byNumber map[string]string
}

// NewSaleRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewSaleRepository() domain.SaleRepository {
	return &saleRepositoryInMemory{
		items:    make(map[string]*domain.Sale),
		byNumber: make(map[string]string),
	}
}

// Create сохраняет копию продажи, если ID и номер ещё не заняты.
func (r *saleRepositoryInMemory) Create(ctx context.Context, sale *domain.Sale) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[sale.ID]; exists {
		return domain.ErrSaleVersionConflict
	}
	if _, taken := r.byNumber[sale.Number()]; taken {
		return domain.ErrSaleNumberConflict
	}

	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	r.items[sale.ID] = sale.Clone()
	r.byNumber[sale.Number()] = sale.ID
	return nil
}

// Update перезаписывает продажу, проверяя версию.
func (r *saleRepositoryInMemory) Update(ctx context.Context, sale *domain.Sale) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[sale.ID]
	if !ok {
		return domain.ErrSaleNotFound
	}
	if current.Version != sale.Version {
		return domain.ErrSaleVersionConflict
	}
	if owner, taken := r.byNumber[sale.Number()]; taken && owner != sale.ID {
		return domain.ErrSaleNumberConflict
	}

	sale.Version++
	sale.UpdatedAt = time.Now().UTC()

	delete(r.byNumber, current.Number())
	r.items[sale.ID] = sale.Clone()
	r.byNumber[sale.Number()] = sale.ID
	return nil
}

func (r *saleRepositoryInMemory) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.items[id]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	return sale.Clone(), nil
}

func (r *saleRepositoryInMemory) GetByNumber(ctx context.Context, number string) (*domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[number]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	return r.items[id].Clone(), nil
}

// GetLastForDate выбирает наибольший номер с префиксом DS-YYYYMMDD- (лексикографически).
func (r *saleRepositoryInMemory) GetLastForDate(ctx context.Context, saleDate time.Time) (*domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := domain.SaleNumberDatePrefix(saleDate)

	r.mu.RLock()
	defer r.mu.RUnlock()

	last := ""
	for number := range r.byNumber {
		if strings.HasPrefix(number, prefix) && number > last {
			last = number
		}
	}
	if last == "" {
		return nil, domain.ErrSaleNotFound
	}
	return r.items[r.byNumber[last]].Clone(), nil
}

func (r *saleRepositoryInMemory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.items[id]
	if !ok {
		return domain.ErrSaleNotFound
	}
	delete(r.byNumber, sale.Number())
	delete(r.items, id)
	return nil
}

// ListPage сортирует весь набор и только потом вырезает страницу.
func (r *saleRepositoryInMemory) ListPage(ctx context.Context, req domain.PageRequest) (domain.PaginatedList[*domain.Sale], error) {
	if err := ctx.Err(); err != nil {
		return domain.PaginatedList[*domain.Sale]{}, err
	}

	order := req.Order
	if len(order) == 0 {
		order = domain.DefaultSaleOrder
	}
	less, err := buildSaleComparator(order)
	if err != nil {
		return domain.PaginatedList[*domain.Sale]{}, err
	}

	r.mu.RLock()
	all := make([]*domain.Sale, 0, len(r.items))
	for _, sale := range r.items {
		all = append(all, sale.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return less(all[i], all[j])
	})

	return domain.Paginate(all, req), nil
}

type saleCompareFunc func(a, b *domain.Sale) int

var saleComparators = map[domain.SaleField]saleCompareFunc{
	domain.SaleFieldID: func(a, b *domain.Sale) int {
		return strings.Compare(a.ID, b.ID)
	},
	domain.SaleFieldNumber: func(a, b *domain.Sale) int {
		return strings.Compare(a.Number(), b.Number())
	},
	domain.SaleFieldDate: func(a, b *domain.Sale) int {
		return a.SaleDate.Compare(b.SaleDate)
	},
	domain.SaleFieldCustomer: func(a, b *domain.Sale) int {
		return strings.Compare(a.CustomerID, b.CustomerID)
	},
	domain.SaleFieldBranch: func(a, b *domain.Sale) int {
		return strings.Compare(a.BranchID, b.BranchID)
	},
	domain.SaleFieldCancelled: func(a, b *domain.Sale) int {
		switch {
		case a.Cancelled() == b.Cancelled():
			return 0
		case !a.Cancelled():
			return -1
		default:
			return 1
		}
	},
	domain.SaleFieldTotalAmount: func(a, b *domain.Sale) int {
		return a.TotalAmount().Cmp(b.TotalAmount())
	},
}

// buildSaleComparator собирает цепочку сравнений; последним всегда идёт id asc.
func buildSaleComparator(order []domain.OrderClause) (func(a, b *domain.Sale) bool, error) {
	type step struct {
		cmp  saleCompareFunc
		desc bool
	}

	steps := make([]step, 0, len(order)+1)
	for _, clause := range order {
		field, err := domain.ResolveSaleField(clause.Field)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{cmp: saleComparators[field], desc: clause.Direction == domain.OrderDesc})
	}
	steps = append(steps, step{cmp: saleComparators[domain.SaleFieldID]})

	return func(a, b *domain.Sale) bool {
		for _, s := range steps {
			c := s.cmp(a, b)
			if c == 0 {
				continue
			}
			if s.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	}, nil
}

var _ domain.SaleRepository = (*saleRepositoryInMemory)(nil)
