// Package saledto описывает JSON-представление продаж, общее для REST и gRPC.
package saledto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
)

// Значения по умолчанию для постраничного списка.
const (
	DefaultPageNumber = 1
	DefaultPageSize   = 10
)

type ItemRequest struct {
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CreateSaleRequest struct {
	SaleDate time.Time     `json:"saleDate"`
	Customer string        `json:"customer"`
	Branch   string        `json:"branch"`
	Items    []ItemRequest `json:"items"`
}

// UpdateSaleRequest заменяет все изменяемые поля продажи.
type UpdateSaleRequest struct {
	ID         string        `json:"id"`
	SaleNumber string        `json:"saleNumber,omitempty"`
	SaleDate   time.Time     `json:"saleDate"`
	Customer   string        `json:"customer"`
	Branch     string        `json:"branch"`
	Cancelled  bool          `json:"cancelled"`
	Items      []ItemRequest `json:"items"`
}

// ListSalesRequest различает отсутствующий параметр страницы (nil) и явно переданный ноль.
type ListSalesRequest struct {
	PageNumber *int   `json:"pageNumber,omitempty" form:"pageNumber"`
	PageSize   *int   `json:"pageSize,omitempty" form:"pageSize"`
	Order      string `json:"order,omitempty" form:"order"`
}

// IDRequest адресует продажу по идентификатору.
type IDRequest struct {
	ID string `json:"id"`
}

type ItemResponse struct {
	ID         string          `json:"id"`
	Product    string          `json:"product"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Discount   decimal.Decimal `json:"discount"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type SaleResponse struct {
	ID          string          `json:"id"`
	SaleNumber  string          `json:"saleNumber"`
	SaleDate    time.Time       `json:"saleDate"`
	Customer    string          `json:"customer"`
	Branch      string          `json:"branch"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Cancelled   bool            `json:"cancelled"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Items       []ItemResponse  `json:"items"`
}

type TimelineEntry struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// SaleDetails — продажа вместе с историей изменений.
type SaleDetails struct {
	Sale     SaleResponse    `json:"sale"`
	Timeline []TimelineEntry `json:"timeline,omitempty"`
}

type SalePage struct {
	Items       []SaleResponse `json:"items"`
	TotalCount  int            `json:"totalCount"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	PageSize    int            `json:"pageSize"`
}

func (r CreateSaleRequest) Input() sales.CreateSaleInput {
	return sales.CreateSaleInput{
		SaleDate:   r.SaleDate,
		CustomerID: r.Customer,
		BranchID:   r.Branch,
		Items:      itemInputs(r.Items),
	}
}

func (r UpdateSaleRequest) Input() sales.UpdateSaleInput {
	return sales.UpdateSaleInput{
		ID:         r.ID,
		SaleNumber: r.SaleNumber,
		SaleDate:   r.SaleDate,
		CustomerID: r.Customer,
		BranchID:   r.Branch,
		Cancelled:  r.Cancelled,
		Items:      itemInputs(r.Items),
	}
}

// Input подставляет значения по умолчанию только для отсутствующих параметров страницы.
// Явный ноль или отрицательное значение уходит в сервис и отклоняется там.
func (r ListSalesRequest) Input() sales.ListSalesInput {
	in := sales.ListSalesInput{PageNumber: DefaultPageNumber, PageSize: DefaultPageSize, Order: r.Order}
	if r.PageNumber != nil {
		in.PageNumber = *r.PageNumber
	}
	if r.PageSize != nil {
		in.PageSize = *r.PageSize
	}
	return in
}

func itemInputs(items []ItemRequest) []sales.ItemInput {
	out := make([]sales.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, sales.ItemInput{
			ProductID: item.Product,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}

func FromSale(sale *domain.Sale) SaleResponse {
	items := sale.Items()
	resp := SaleResponse{
		ID:          sale.ID,
		SaleNumber:  sale.Number(),
		SaleDate:    sale.SaleDate,
		Customer:    sale.CustomerID,
		Branch:      sale.BranchID,
		TotalAmount: sale.TotalAmount(),
		Cancelled:   sale.Cancelled(),
		Version:     sale.Version,
		CreatedAt:   sale.CreatedAt,
		UpdatedAt:   sale.UpdatedAt,
		Items:       make([]ItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:         item.ID,
			Product:    item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Discount:   item.Discount,
			TotalPrice: item.TotalPrice(),
		})
	}
	return resp
}

func FromPage(page domain.PaginatedList[*domain.Sale]) SalePage {
	out := SalePage{
		Items:       make([]SaleResponse, 0, len(page.Items)),
		TotalCount:  page.TotalCount,
		TotalPages:  page.TotalPages,
		CurrentPage: page.PageNumber,
		PageSize:    page.PageSize,
	}
	for _, sale := range page.Items {
		out.Items = append(out.Items, FromSale(sale))
	}
	return out
}

func FromTimeline(events []domain.TimelineEvent) []TimelineEntry {
	if len(events) == 0 {
		return nil
	}
	out := make([]TimelineEntry, 0, len(events))
	for _, ev := range events {
		out = append(out, TimelineEntry{Type: ev.Type, Reason: ev.Reason, Occurred: ev.Occurred})
	}
	return out
}

// DeleteResponse подтверждает удаление продажи.
type DeleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
