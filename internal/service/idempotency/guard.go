package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	defaultTTL = 24 * time.Hour
	// markTimeout ограничивает запись результата, которая переживает отмену запроса.
	markTimeout = 5 * time.Second
)

// Response хранит результат обработки запроса для повтора.
// Code хранит HTTP-статус для REST и числовой gRPC code для gRPC.
type Response struct {
	Code   int
	Body   []byte
	Failed bool
}

// Guard гарантирует, что запрос с одним idempotency-key выполняется один раз,
// а повторы получают сохранённый ответ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт guard поверх хранилища ключей. ttl <= 0 означает 24 часа.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RequestHash строит отпечаток запроса из имени операции и тела.
func RequestHash(operation string, body []byte) string {
	payload := make([]byte, 0, len(operation)+1+len(body))
	payload = append(payload, operation...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Do выполняет handler под ключом key. Второй результат сообщает, что ответ взят из кэша.
// Ключ, занятый другим запросом, даёт ErrIdempotencyHashMismatch,
// незавершённая обработка с тем же ключом — ErrIdempotencyInProgress.
func (g *Guard) Do(ctx context.Context, key, requestHash string, handler func(context.Context) Response) (Response, bool, error) {
	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		resp, replayErr := g.replay(record, err)
		return resp, replayErr == nil, replayErr
	}

	resp := handler(ctx)

	mark := g.repo.MarkDone
	if resp.Failed {
		mark = g.repo.MarkFailed
	}
	// Операция уже выполнена: результат сохраняется, даже если клиент отключился.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if markErr := mark(markCtx, key, resp.Body, resp.Code); markErr != nil {
		g.logger.WithError(markErr).WithFields(log.Fields{
			"idempotency_key": key,
			"failed":          resp.Failed,
		}).Warn("failed to store idempotent response")
	}

	return resp, false, nil
}

func (g *Guard) replay(record domain.IdempotencyRecord, createErr error) (Response, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, domain.ErrIdempotencyHashMismatch
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			return Response{Code: record.HTTPStatus, Body: record.ResponseBody}, nil
		case domain.IdempotencyStatusFailed:
			return Response{Code: record.HTTPStatus, Body: record.ResponseBody, Failed: true}, nil
		case domain.IdempotencyStatusProcessing:
			return Response{}, domain.ErrIdempotencyInProgress
		default:
			return Response{}, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	default:
		g.logger.WithError(createErr).WithField("idempotency_key", record.Key).Warn("failed to create idempotency record")
		return Response{}, fmt.Errorf("create idempotency record: %w", createErr)
	}
}
