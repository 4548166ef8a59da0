package httpapi

import (
	"context"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Envelope — общий формат ответа REST API.
type Envelope struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message,omitempty"`
	Data    any                      `json:"data,omitempty"`
	Errors  []domain.ValidationError `json:"errors,omitempty"`
}

func ok(message string, data any) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

func fail(message string, errs ...domain.ValidationError) Envelope {
	return Envelope{Success: false, Message: message, Errors: errs}
}

// errorResponse переводит ошибку прикладного слоя в HTTP-статус и тело ответа.
func errorResponse(logger *log.Entry, operation string, err error) (int, Envelope) {
	var failure *domain.ValidationFailure
	switch {
	case errors.As(err, &failure):
		return http.StatusBadRequest, fail("Validation Failed", failure.Result.Errors...)
	case errors.Is(err, domain.ErrInvalidOrderExpression), errors.Is(err, domain.ErrUnknownOrderField):
		return http.StatusBadRequest, fail("Invalid sorting criteria.", domain.ValidationError{Field: "order", Message: err.Error()})
	case domain.IsNotFound(err):
		return http.StatusNotFound, fail("Sale not found")
	case domain.IsConflict(err):
		return http.StatusConflict, fail(err.Error())
	case domain.IsInvalidOperation(err):
		return http.StatusUnprocessableEntity, fail(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, fail("request timed out")
	default:
		logger.WithError(err).WithField("operation", operation).Error("sale operation failed")
		return http.StatusInternalServerError, fail("internal error")
	}
}
