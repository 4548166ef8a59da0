package sales

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// SaleEventPayload — снимок продажи в теле outbox-события.
type SaleEventPayload struct {
	SaleID      string             `json:"sale_id"`
	SaleNumber  string             `json:"sale_number"`
	SaleDate    time.Time          `json:"sale_date"`
	CustomerID  string             `json:"customer_id"`
	BranchID    string             `json:"branch_id"`
	Cancelled   bool               `json:"cancelled"`
	TotalAmount string             `json:"total_amount"`
	Version     int64              `json:"version"`
	Items       []SaleItemSnapshot `json:"items"`
}

type SaleItemSnapshot struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	Discount   string `json:"discount"`
	TotalPrice string `json:"total_price"`
}

func encodeSaleEvent(sale *domain.Sale) ([]byte, error) {
	items := sale.Items()
	payload := SaleEventPayload{
		SaleID:      sale.ID,
		SaleNumber:  sale.Number(),
		SaleDate:    sale.SaleDate.UTC(),
		CustomerID:  sale.CustomerID,
		BranchID:    sale.BranchID,
		Cancelled:   sale.Cancelled(),
		TotalAmount: sale.TotalAmount().String(),
		Version:     sale.Version,
		Items:       make([]SaleItemSnapshot, 0, len(items)),
	}
	for _, item := range items {
		payload.Items = append(payload.Items, SaleItemSnapshot{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.String(),
			Discount:   item.Discount.String(),
			TotalPrice: item.TotalPrice().String(),
		})
	}
	return json.Marshal(payload)
}
