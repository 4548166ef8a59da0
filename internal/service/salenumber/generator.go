// Package salenumber выдаёт номера продаж вида DS-YYYYMMDD-NNNNNN.
package salenumber

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Ширина порядкового номера в пределах дня.
const sequenceWidth = 6

// FallbackRecorder учитывает случаи, когда последний номер за дату не разобран.
type FallbackRecorder interface {
	RecordNumberFallback()
}

// Generator вычисляет следующий номер по последней продаже за дату.
// Уникальность не гарантируется: её обеспечивает хранилище.
type Generator struct {
	repo     domain.SaleRepository
	recorder FallbackRecorder
	logger   *log.Entry
}

type Option func(*Generator)

// WithFallbackRecorder подключает метрику нераспознанных номеров.
func WithFallbackRecorder(recorder FallbackRecorder) Option {
	return func(g *Generator) {
		g.recorder = recorder
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGenerator(repo domain.SaleRepository, opts ...Option) *Generator {
	g := &Generator{
		repo:   repo,
		logger: log.WithField("component", "sale-number-generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate возвращает номер для продажи с датой saleDate.
// Ошибки хранилища, кроме отсутствия продаж за дату, возвращаются вызывающему.
func (g *Generator) Generate(ctx context.Context, saleDate time.Time) (string, error) {
	prefix := domain.SaleNumberDatePrefix(saleDate)

	last, err := g.repo.GetLastForDate(ctx, saleDate)
	if errors.Is(err, domain.ErrSaleNotFound) {
		return format(prefix, 1), nil
	}
	if err != nil {
		return "", fmt.Errorf("load last sale for %s: %w", saleDate.UTC().Format(time.DateOnly), err)
	}

	seq, ok := parseSequence(last.Number())
	if !ok {
		g.logger.WithFields(log.Fields{
			"sale_id":     last.ID,
			"sale_number": last.Number(),
		}).Warn("last sale number is not parsable, restarting sequence at 1")
		if g.recorder != nil {
			g.recorder.RecordNumberFallback()
		}
		return format(prefix, 1), nil
	}

	return format(prefix, seq+1), nil
}

func parseSequence(number string) (int, bool) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		return 0, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func format(prefix string, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, sequenceWidth, seq)
}
