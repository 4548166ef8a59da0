package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale совпадает с масштабом колонки unit_price NUMERIC(18, 2).
const MoneyScale = 2

// SaleItem представляет одну позицию продажи.
type SaleItem struct {
	ID string
	// SaleID — идентификатор продажи-владельца, без ссылки на сам агрегат.
	SaleID    string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	// Discount — доля скидки от 0 до 0.20, задаётся по количеству.
	Discount decimal.Decimal
}

// NewSaleItem строит позицию, вычисляя скидку по количеству.
// Количество больше 20 возвращает ErrInvalidQuantity.
func NewSaleItem(id, productID string, quantity int, unitPrice decimal.Decimal) (SaleItem, error) {
	discount, err := DiscountForQuantity(quantity)
	if err != nil {
		return SaleItem{}, err
	}

	return SaleItem{
		ID:        id,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Discount:  discount,
	}, nil
}

// TotalPrice = quantity × unitPrice × (1 − discount).
func (i SaleItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.
		Mul(decimal.NewFromInt(int64(i.Quantity))).
		Mul(decimal.NewFromInt(1).Sub(i.Discount))
}

// Sale агрегирует продажу и её позиции.
// Номер продажи неизменяем, отмена необратима, позиции добавляются только через AddItem/AddItems.
type Sale struct {
	ID         string
	SaleDate   time.Time
	CustomerID string
	BranchID   string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time

	number    string
	cancelled bool
	items     []SaleItem
}

// SaleState содержит полный снимок продажи для восстановления из хранилища.
type SaleState struct {
	ID         string
	Number     string
	SaleDate   time.Time
	CustomerID string
	BranchID   string
	Cancelled  bool
	Items      []SaleItem
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSale создаёт пустую активную продажу. Дата в будущем здесь не отклоняется,
// это проверяет Validate.
func NewSale(id, number string, saleDate time.Time, customerID, branchID string) *Sale {
	return &Sale{
		ID:         id,
		SaleDate:   saleDate,
		CustomerID: customerID,
		BranchID:   branchID,
		number:     number,
	}
}

// RestoreSale восстанавливает продажу из сохранённого состояния без пересчёта скидок.
func RestoreSale(state SaleState) *Sale {
	sale := &Sale{
		ID:         state.ID,
		SaleDate:   state.SaleDate,
		CustomerID: state.CustomerID,
		BranchID:   state.BranchID,
		Version:    state.Version,
		CreatedAt:  state.CreatedAt,
		UpdatedAt:  state.UpdatedAt,
		number:     state.Number,
		cancelled:  state.Cancelled,
		items:      make([]SaleItem, 0, len(state.Items)),
	}
	for _, item := range state.Items {
		item.SaleID = sale.ID
		sale.items = append(sale.items, item)
	}
	return sale
}

// Number возвращает номер продажи.
func (s *Sale) Number() string {
	return s.number
}

// Cancelled сообщает, отменена ли продажа.
func (s *Sale) Cancelled() bool {
	return s.cancelled
}

// Items возвращает копию позиций в порядке добавления.
func (s *Sale) Items() []SaleItem {
	items := make([]SaleItem, len(s.items))
	copy(items, s.items)
	return items
}

// AddItem добавляет позицию, вычисляя скидку по количеству.
// Количество <= 0 и цена <= 0 здесь не отклоняются, их ловит Validate.
func (s *Sale) AddItem(itemID, productID string, quantity int, unitPrice decimal.Decimal) (SaleItem, error) {
	item, err := NewSaleItem(itemID, productID, quantity, unitPrice)
	if err != nil {
		return SaleItem{}, err
	}
	item.SaleID = s.ID
	s.items = append(s.items, item)
	return item, nil
}

// AddItems добавляет уже построенные позиции и привязывает их к продаже.
// Позиции должны быть созданы через NewSaleItem, иначе расхождение скидки покажет Validate.
func (s *Sale) AddItems(items ...SaleItem) {
	for _, item := range items {
		item.SaleID = s.ID
		s.items = append(s.items, item)
	}
}

// Cancel отменяет продажу. Повторный вызов ничего не меняет.
// Возвращает true, если состояние изменилось.
func (s *Sale) Cancel() bool {
	if s.cancelled {
		return false
	}
	s.cancelled = true
	return true
}

// TotalAmount пересчитывает сумму продажи по текущим позициям при каждом вызове.
func (s *Sale) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// Clone возвращает независимую копию агрегата.
func (s *Sale) Clone() *Sale {
	clone := *s
	clone.items = s.Items()
	return &clone
}
