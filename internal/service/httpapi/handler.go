// Package httpapi, публичный HTTP API витрины на gin.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/reviews"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
)

// Заголовки, которые выставляет внешний сервис аутентификации.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderIdempotency   = "Idempotency-Key"
	HeaderReplayed      = "Idempotent-Replayed"

	RoleAdmin = "admin"
)

const (
	ctxKeyUserID        = "storefront.user_id"
	ctxKeyRole          = "storefront.role"
	ctxKeyCorrelationID = "storefront.correlation_id"
)

// OrderPlacer оформляет заказ из корзины.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req saga.PlaceOrderRequest) (saga.PlaceOrderResult, error)
}

// OrderReader отдаёт заказы и их историю.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// OrderLifecycle меняет статус и удаляет заказы.
type OrderLifecycle interface {
	Transition(ctx context.Context, orderID string, next domain.OrderStatus, opts ...orders.TransitionOption) (domain.Order, error)
	Delete(ctx context.Context, orderID, actor string) error
}

// ReviewGate — отзывы и рейтинг.
type ReviewGate interface {
	LineStatuses(ctx context.Context, order domain.Order) ([]domain.LineReviewState, error)
	RecordReview(ctx context.Context, in reviews.RecordInput) (domain.Review, error)
	EditReview(ctx context.Context, in reviews.EditInput) (domain.Review, error)
	Moderate(ctx context.Context, reviewID string, status domain.ReviewStatus, actor string) (domain.Review, error)
	ProductRating(ctx context.Context, productID string) (domain.RatingSummary, error)
	ApprovedReviews(ctx context.Context, productID string) ([]domain.Review, error)
}

// AccountLedger: аккаунт покупателя и его корзина.
type AccountLedger interface {
	Get(ctx context.Context, userID string) (domain.UserAccount, error)
	SaveCart(ctx context.Context, userID string, cart []domain.CartLine) error
}

// StockEditor: ручная правка склада.
type StockEditor interface {
	Upsert(ctx context.Context, upd inventory.StockUpdate) (domain.Product, error)
}

// Services — зависимости HTTP-слоя.
type Services struct {
	Placement   OrderPlacer
	Orders      OrderReader
	Lifecycle   OrderLifecycle
	Reviews     ReviewGate
	Accounts    AccountLedger
	Stock       StockEditor
	Idempotency *idempotency.Guard
}

// Handler содержит HTTP-обработчики.
type Handler struct {
	svc     Services
	logger  *log.Entry
	metrics *metrics.HTTPMetrics
}

// NewHandler создаёт обработчики поверх сервисов.
func NewHandler(svc Services, logger *log.Entry, m *metrics.HTTPMetrics) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{svc: svc, logger: logger, metrics: m}
}

// Router собирает gin.Engine со всеми маршрутами.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	h.SetupRoutes(router)
	return router
}

// SetupRoutes регистрирует middleware и маршруты API.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(h.correlationMiddleware())
	router.Use(h.metricsMiddleware())

	v1 := router.Group("/api/v1")
	{
		// каталог открыт без аутентификации
		v1.GET("/products/:id/rating", h.productRating)
		v1.GET("/products/:id/reviews", h.productReviews)

		user := v1.Group("", h.requireUser())
		user.POST("/orders", h.placeOrder)
		user.GET("/orders", h.listOrders)
		user.GET("/orders/:id", h.getOrder)
		user.POST("/reviews", h.recordReview)
		user.PATCH("/reviews/:id", h.editReview)
		user.GET("/account", h.getAccount)
		user.PUT("/account/cart", h.saveCart)

		admin := v1.Group("/admin", h.requireUser(), h.requireAdmin())
		admin.PATCH("/orders/:id/status", h.setOrderStatus)
		admin.DELETE("/orders/:id", h.deleteOrder)
		admin.PUT("/products/:id/stock", h.upsertStock)
		admin.PATCH("/reviews/:id/status", h.moderateReview)
	}
}

func (h *Handler) correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyCorrelationID, id)
		c.Header(HeaderCorrelationID, id)
		c.Next()
	}
}

func (h *Handler) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		h.metrics.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
		h.logger.WithFields(log.Fields{
			"method":         c.Request.Method,
			"route":          c.FullPath(),
			"status":         c.Writer.Status(),
			"duration_ms":    duration.Milliseconds(),
			"correlation_id": c.GetString(ctxKeyCorrelationID),
		}).Debug("http request")
	}
}

func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			h.abort(c, http.StatusUnauthorized, errorBody{
				Error:    "authentication required",
				Category: CategoryUnauthorized,
			})
			return
		}
		c.Set(ctxKeyUserID, userID)
		c.Set(ctxKeyRole, strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		c.Next()
	}
}

func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			h.abort(c, http.StatusForbidden, errorBody{
				Error:    "admin role required",
				Category: CategoryForbidden,
			})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(ctxKeyRole) == RoleAdmin
}
