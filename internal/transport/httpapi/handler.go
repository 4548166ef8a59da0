// Package httpapi отдаёт REST API продаж на gin.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/idempotency"
	"github.com/vladislavdragonenkov/sales/internal/service/sales"
	"github.com/vladislavdragonenkov/sales/internal/transport/saledto"
)

const (
	// IdempotencyKeyHeader — необязательный заголовок для мутирующих запросов.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader выставляется, когда ответ взят из кэша идемпотентности.
	ReplayedHeader = "Idempotent-Replayed"

	jsonContentType = "application/json; charset=utf-8"
)

// SalesUseCases перечисляет операции, которые вызывает REST API.
type SalesUseCases interface {
	CreateSale(ctx context.Context, in sales.CreateSaleInput) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, in sales.ListSalesInput) (domain.PaginatedList[*domain.Sale], error)
	UpdateSale(ctx context.Context, in sales.UpdateSaleInput) (*domain.Sale, error)
	CancelSale(ctx context.Context, id string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	Timeline(ctx context.Context, id string) ([]domain.TimelineEvent, error)
}

// Handler обслуживает маршруты /api/sales.
type Handler struct {
	sales  SalesUseCases
	guard  *idempotency.Guard
	logger *log.Entry
}

func NewHandler(useCases SalesUseCases, guard *idempotency.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "sales-http")
	}
	return &Handler{sales: useCases, guard: guard, logger: logger}
}

// NewRouter собирает gin.Engine с маршрутами продаж.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))
	h.Register(router)
	return router
}

func (h *Handler) Register(r gin.IRouter) {
	group := r.Group("/api/sales")
	group.POST("", h.createSale)
	group.GET("", h.listSales)
	group.GET("/all", h.listSales)
	group.GET("/:id", h.getSale)
	group.PUT("/update", h.updateSale)
	group.POST("/:id/cancel", h.cancelSale)
	group.DELETE("/:id", h.deleteSale)
}

type operation func(ctx context.Context) (int, Envelope)

func (h *Handler) createSale(c *gin.Context) {
	body, read := h.readBody(c)
	if !read {
		return
	}
	var req saledto.CreateSaleRequest
	if !h.decode(c, body, &req) {
		return
	}

	h.mutate(c, body, func(ctx context.Context) (int, Envelope) {
		sale, err := h.sales.CreateSale(ctx, req.Input())
		if err != nil {
			return errorResponse(h.logger, "CreateSale", err)
		}
		return http.StatusCreated, ok("Sale created successfully", saledto.FromSale(sale))
	})
}

func (h *Handler) getSale(c *gin.Context) {
	id := c.Param("id")
	sale, err := h.sales.GetSale(c.Request.Context(), id)
	if err != nil {
		c.JSON(errorResponse(h.logger, "GetSale", err))
		return
	}

	details := saledto.SaleDetails{Sale: saledto.FromSale(sale)}
	events, err := h.sales.Timeline(c.Request.Context(), id)
	if err != nil {
		h.logger.WithError(err).WithField("sale_id", id).Warn("failed to load sale timeline")
	} else {
		details.Timeline = saledto.FromTimeline(events)
	}
	c.JSON(http.StatusOK, ok("Sale retrieved successfully", details))
}

func (h *Handler) listSales(c *gin.Context) {
	var req saledto.ListSalesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail("invalid query parameters"))
		return
	}

	page, err := h.sales.ListSales(c.Request.Context(), req.Input())
	if err != nil {
		c.JSON(errorResponse(h.logger, "ListSales", err))
		return
	}
	c.JSON(http.StatusOK, ok("Sales retrieved successfully", saledto.FromPage(page)))
}

func (h *Handler) updateSale(c *gin.Context) {
	body, read := h.readBody(c)
	if !read {
		return
	}
	var req saledto.UpdateSaleRequest
	if !h.decode(c, body, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		c.JSON(http.StatusBadRequest, fail("Validation Failed", domain.ValidationError{Field: "id", Message: "Sale id is required."}))
		return
	}

	h.mutate(c, body, func(ctx context.Context) (int, Envelope) {
		sale, err := h.sales.UpdateSale(ctx, req.Input())
		if err != nil {
			return errorResponse(h.logger, "UpdateSale", err)
		}
		return http.StatusOK, ok("Sale updated successfully", saledto.FromSale(sale))
	})
}

func (h *Handler) cancelSale(c *gin.Context) {
	id := c.Param("id")
	h.mutate(c, nil, func(ctx context.Context) (int, Envelope) {
		sale, err := h.sales.CancelSale(ctx, id)
		if err != nil {
			return errorResponse(h.logger, "CancelSale", err)
		}
		return http.StatusOK, ok("Sale cancelled successfully", saledto.FromSale(sale))
	})
}

func (h *Handler) deleteSale(c *gin.Context) {
	id := c.Param("id")
	h.mutate(c, nil, func(ctx context.Context) (int, Envelope) {
		if err := h.sales.DeleteSale(ctx, id); err != nil {
			return errorResponse(h.logger, "DeleteSale", err)
		}
		return http.StatusOK, ok("Sale deleted successfully", saledto.DeleteResponse{ID: id, Deleted: true})
	})
}

// mutate выполняет операцию, при наличии Idempotency-Key через guard.
func (h *Handler) mutate(c *gin.Context, body []byte, op operation) {
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if h.guard == nil || key == "" {
		c.JSON(op(c.Request.Context()))
		return
	}

	hash := idempotency.RequestHash(c.Request.Method+" "+c.Request.URL.Path, body)
	resp, replayed, err := h.guard.Do(c.Request.Context(), key, hash, func(ctx context.Context) idempotency.Response {
		code, env := op(ctx)
		data, marshalErr := json.Marshal(env)
		if marshalErr != nil {
			h.logger.WithError(marshalErr).Error("failed to encode response")
			code = http.StatusInternalServerError
			data, _ = json.Marshal(fail("internal error"))
		}
		return idempotency.Response{Code: code, Body: data, Failed: code >= http.StatusBadRequest}
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			c.JSON(http.StatusUnprocessableEntity, fail("Idempotency-Key is already used with a different request"))
		case errors.Is(err, domain.ErrIdempotencyInProgress):
			c.JSON(http.StatusConflict, fail("request with the same Idempotency-Key is already processing"))
		default:
			c.JSON(http.StatusInternalServerError, fail("failed to initialize idempotent request"))
		}
		return
	}

	if replayed {
		c.Header(ReplayedHeader, "true")
	}
	c.Data(resp.Code, jsonContentType, resp.Body)
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, fail("failed to read request body"))
		return nil, false
	}
	return body, true
}

func (h *Handler) decode(c *gin.Context, body []byte, dst any) bool {
	if err := json.Unmarshal(body, dst); err != nil {
		h.logger.WithError(err).Debug("failed to decode request body")
		c.JSON(http.StatusBadRequest, fail("invalid request payload"))
		return false
	}
	return true
}
