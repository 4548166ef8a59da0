package domain

import (
	"fmt"
	"strings"
)

// OrderDirection — направление сортировки.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// OrderClause — одно условие сортировки "поле направление".
type OrderClause struct {
	Field     string
	Direction OrderDirection
}

// PageRequest описывает запрос страницы с динамической сортировкой.
// Пустой Order означает сортировку по умолчанию, которую выбирает хранилище.
type PageRequest struct {
	PageNumber int
	PageSize   int
	Order      []OrderClause
}

// Offset возвращает число записей, пропускаемых до начала страницы.
func (p PageRequest) Offset() int {
	if p.PageNumber < 1 {
		return 0
	}
	return (p.PageNumber - 1) * p.PageSize
}

// PaginatedList — окно упорядоченной выборки с метаданными о полном наборе.
type PaginatedList[T any] struct {
	Items      []T
	PageNumber int
	PageSize   int
	TotalCount int
	TotalPages int
}

// NewPaginatedList собирает страницу. TotalPages = ceil(totalCount / pageSize).
func NewPaginatedList[T any](items []T, totalCount, pageNumber, pageSize int) PaginatedList[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}
	if items == nil {
		items = make([]T, 0)
	}
	return PaginatedList[T]{
		Items:      items,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}
}

// Paginate вырезает страницу из уже упорядоченного набора.
func Paginate[T any](ordered []T, req PageRequest) PaginatedList[T] {
	total := len(ordered)
	start := req.Offset()
	if start > total {
		start = total
	}
	end := start + req.PageSize
	if req.PageSize <= 0 || end > total {
		end = total
	}

	page := make([]T, end-start)
	copy(page, ordered[start:end])
	return NewPaginatedList(page, total, req.PageNumber, req.PageSize)
}

// HasValidOrderSuffix проверяет синтаксис на входе: выражение должно
// заканчиваться на " asc" или " desc". Пустое выражение допустимо.
func HasValidOrderSuffix(expr string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(expr))
	if trimmed == "" {
		return true
	}
	return strings.HasSuffix(trimmed, " asc") || strings.HasSuffix(trimmed, " desc")
}

// ParseOrderExpression разбирает "field dir, field dir" в список условий.
// Направление без учёта регистра, по умолчанию asc. Имена полей не проверяются.
func ParseOrderExpression(expr string) ([]OrderClause, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	parts := strings.Split(expr, ",")
	clauses := make([]OrderClause, 0, len(parts))
	for _, part := range parts {
		tokens := strings.Fields(part)
		switch len(tokens) {
		case 1:
			clauses = append(clauses, OrderClause{Field: tokens[0], Direction: OrderAsc})
		case 2:
			dir := OrderDirection(strings.ToLower(tokens[1]))
			if dir != OrderAsc && dir != OrderDesc {
				return nil, fmt.Errorf("%w: unsupported direction %q", ErrInvalidOrderExpression, tokens[1])
			}
			clauses = append(clauses, OrderClause{Field: tokens[0], Direction: dir})
		default:
			return nil, fmt.Errorf("%w: malformed clause %q", ErrInvalidOrderExpression, strings.TrimSpace(part))
		}
	}

	return clauses, nil
}
