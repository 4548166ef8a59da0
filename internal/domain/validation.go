package domain

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError — одно замечание валидации: поле и сообщение.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult — структурированный результат валидации агрегата.
type ValidationResult struct {
	IsValid bool              `json:"isValid"`
	Errors  []ValidationError `json:"errors"`
}

// NewValidationResult собирает результат из списка замечаний.
func NewValidationResult(errs []ValidationError) ValidationResult {
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// Err превращает невалидный результат в ValidationFailure, валидный в nil.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationFailure{Result: r}
}

// ValidationFailure переносит результат валидации через цепочку ошибок.
type ValidationFailure struct {
	Result ValidationResult
}

// NewValidationFailure создаёт ошибку валидации из замечаний.
func NewValidationFailure(errs ...ValidationError) *ValidationFailure {
	return &ValidationFailure{Result: NewValidationResult(errs)}
}

func (e *ValidationFailure) Error() string {
	parts := make([]string, 0, len(e.Result.Errors))
	for _, v := range e.Result.Errors {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationFailure) Unwrap() error {
	return ErrValidationFailed
}

// Validate проверяет продажу относительно текущего времени.
func (s *Sale) Validate() ValidationResult {
	return s.ValidateAt(time.Now())
}

// ValidateAt прогоняет полный набор правил. Ошибки возвращаются данными, а не error.
func (s *Sale) ValidateAt(now time.Time) ValidationResult {
	var errs []ValidationError

	if strings.TrimSpace(s.number) == "" {
		errs = append(errs, ValidationError{Field: "saleNumber", Message: "Sale number cannot be empty."})
	}
	if s.SaleDate.After(now) {
		errs = append(errs, ValidationError{Field: "saleDate", Message: "Sale date cannot be in the future."})
	}
	if strings.TrimSpace(s.CustomerID) == "" {
		errs = append(errs, ValidationError{Field: "customer", Message: "Customer is required."})
	}
	if strings.TrimSpace(s.BranchID) == "" {
		errs = append(errs, ValidationError{Field: "branch", Message: "Branch is required."})
	}
	if len(s.items) == 0 {
		errs = append(errs, ValidationError{Field: "items", Message: "Sale must have at least one item."})
	}
	for idx, item := range s.items {
		errs = append(errs, item.validate(fmt.Sprintf("items[%d].", idx))...)
	}

	return NewValidationResult(errs)
}

func (i SaleItem) validate(prefix string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(i.ProductID) == "" {
		errs = append(errs, ValidationError{Field: prefix + "product", Message: "Product cannot be empty."})
	}
	if i.Quantity <= 0 {
		errs = append(errs, ValidationError{Field: prefix + "quantity", Message: "Quantity must be greater than 0."})
	}
	if i.Quantity > MaxItemQuantity {
		errs = append(errs, ValidationError{Field: prefix + "quantity", Message: "Quantity cannot be greater than 20."})
	}
	if !i.UnitPrice.IsPositive() {
		errs = append(errs, ValidationError{Field: prefix + "unitPrice", Message: "Unit price must be greater than 0."})
	}
	if !i.UnitPrice.Equal(i.UnitPrice.Round(MoneyScale)) {
		errs = append(errs, ValidationError{Field: prefix + "unitPrice", Message: "Unit price cannot have more than 2 decimal places."})
	}
	// Для количества сверх лимита тира нет, хватает ошибки quantity.
	if expected, err := DiscountForQuantity(i.Quantity); err == nil && !i.Discount.Equal(expected) {
		errs = append(errs, ValidationError{Field: prefix + "discount", Message: discountTierMessage(i.Quantity)})
	}

	return errs
}
