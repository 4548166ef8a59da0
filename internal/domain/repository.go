package domain

import (
	"context"
	"time"
)

// SaleRepository описывает требования к хранилищу продаж.
// Отсутствие записи сообщается через ErrSaleNotFound, ошибки I/O возвращаются как есть.
type SaleRepository interface {
	// Create сохраняет новую продажу. Занятый номер даёт ErrSaleNumberConflict.
	Create(ctx context.Context, sale *Sale) error
	// Update перезаписывает продажу с учётом optimistic locking и увеличивает sale.Version.
	Update(ctx context.Context, sale *Sale) error
	// GetByID возвращает продажу или ErrSaleNotFound.
	GetByID(ctx context.Context, id string) (*Sale, error)
	// GetByNumber ищет продажу по номеру.
	GetByNumber(ctx context.Context, number string) (*Sale, error)
	// GetLastForDate возвращает продажу с наибольшим номером DS-YYYYMMDD-* за дату.
	GetLastForDate(ctx context.Context, saleDate time.Time) (*Sale, error)
	// Delete удаляет продажу вместе с позициями.
	Delete(ctx context.Context, id string) error
	// ListPage сортирует весь набор и возвращает запрошенную страницу.
	// Неизвестное поле сортировки даёт ErrUnknownOrderField.
	ListPage(ctx context.Context, req PageRequest) (PaginatedList[*Sale], error)
}
