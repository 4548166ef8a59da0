package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation — нарушение бизнес-правила, вызванное явной операцией над агрегатом.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrConflict — конфликт при сохранении (уникальность, optimistic locking).
	ErrConflict = errors.New("conflict")
	// ErrValidationFailed — базовая ошибка для ValidationFailure.
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidQuantity возвращается при попытке продать больше 20 одинаковых товаров.
	ErrInvalidQuantity = fmt.Errorf("%w: cannot sell more than %d identical items", ErrInvalidOperation, MaxItemQuantity)
	// ErrSaleNumberTaken — номер продажи уже принадлежит другой продаже.
	ErrSaleNumberTaken = fmt.Errorf("%w: sale number already belongs to another sale", ErrInvalidOperation)
	// ErrSaleNumberImmutable — номер продажи нельзя менять после присвоения.
	ErrSaleNumberImmutable = fmt.Errorf("%w: sale number cannot be changed", ErrInvalidOperation)
	// ErrSaleReactivation — отменённую продажу нельзя вернуть в активное состояние.
	ErrSaleReactivation = fmt.Errorf("%w: cancelled sale cannot be reactivated", ErrInvalidOperation)

	// ErrSaleNumberConflict — нарушение уникальности номера продажи в хранилище.
	ErrSaleNumberConflict = fmt.Errorf("%w: sale number already exists", ErrConflict)
	// ErrSaleVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrSaleVersionConflict = fmt.Errorf("%w: sale version conflict", ErrConflict)

	// ErrSaleNotFound возвращается, если продажа не найдена в репозитории.
	ErrSaleNotFound = errors.New("sale not found")

	// ErrInvalidOrderExpression — синтаксически некорректное выражение сортировки.
	ErrInvalidOrderExpression = errors.New("invalid order expression")
	// ErrUnknownOrderField — хранилище не умеет сортировать по указанному полю.
	ErrUnknownOrderField = errors.New("unknown order field")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyInProgress          = errors.New("request with the same idempotency key is already processing")
)

// IsNotFound проверяет, что ошибка означает отсутствие продажи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSaleNotFound)
}

// IsConflict проверяет, является ли ошибка конфликтом сохранения.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrSaleVersionConflict)
}

// IsInvalidOperation проверяет, нарушено ли бизнес-правило операции.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsValidationFailure проверяет, что ошибка несёт результат валидации.
func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
