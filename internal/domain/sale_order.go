package domain

import (
	"fmt"
	"strings"
	"time"
)

// SaleField — поле продажи, по которому хранилища умеют сортировать.
type SaleField string

const (
	SaleFieldID          SaleField = "id"
	SaleFieldNumber      SaleField = "saleNumber"
	SaleFieldDate        SaleField = "saleDate"
	SaleFieldCustomer    SaleField = "customer"
	SaleFieldBranch      SaleField = "branch"
	SaleFieldCancelled   SaleField = "cancelled"
	SaleFieldTotalAmount SaleField = "totalAmount"
)

// Ключи без регистра и подчёркиваний: SaleDate, saleDate и sale_date совпадают.
var saleFieldAliases = map[string]SaleField{
	"id":          SaleFieldID,
	"salenumber":  SaleFieldNumber,
	"number":      SaleFieldNumber,
	"saledate":    SaleFieldDate,
	"date":        SaleFieldDate,
	"customer":    SaleFieldCustomer,
	"customerid":  SaleFieldCustomer,
	"branch":      SaleFieldBranch,
	"branchid":    SaleFieldBranch,
	"cancelled":   SaleFieldCancelled,
	"iscancelled": SaleFieldCancelled,
	"totalamount": SaleFieldTotalAmount,
}

// DefaultSaleOrder — сортировка по умолчанию: сначала новые продажи.
var DefaultSaleOrder = []OrderClause{{Field: string(SaleFieldDate), Direction: OrderDesc}}

// ResolveSaleField сопоставляет имя из выражения сортировки с полем продажи.
func ResolveSaleField(name string) (SaleField, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
	field, ok := saleFieldAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrderField, name)
	}
	return field, nil
}

// SaleNumberPrefix — префикс номеров продаж.
const SaleNumberPrefix = "DS"

// SaleNumberDateLayout — формат даты внутри номера продажи.
const SaleNumberDateLayout = "20060102"

// SaleNumberDatePrefix возвращает общий префикс номеров за дату: DS-YYYYMMDD-.
// День берётся в UTC, а не в зоне saleDate: 2025-03-12T23:30-03:00 даёт DS-20250313-.
func SaleNumberDatePrefix(saleDate time.Time) string {
	return SaleNumberPrefix + "-" + saleDate.UTC().Format(SaleNumberDateLayout) + "-"
}
