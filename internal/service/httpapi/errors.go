package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

// Категории ошибок в теле ответа.
const (
	CategoryUnauthorized = "unauthorized"
	CategoryForbidden    = "forbidden"
	CategoryValidation   = "validation"
	CategoryNotFound     = "not-found"
	CategoryOutOfStock   = "out-of-stock"
	CategoryConflict     = "conflict"
	CategoryServer       = "server"
)

type errorBody struct {
	Error         string `json:"error"`
	Category      string `json:"category"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// classify сопоставляет доменную ошибку с HTTP-статусом и категорией.
// Всё, что не распознано, считается инфраструктурной ошибкой.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, CategoryOutOfStock
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrReviewNotFound):
		return http.StatusNotFound, CategoryNotFound
	case errors.Is(err, domain.ErrReviewForbidden):
		return http.StatusForbidden, CategoryForbidden
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyReviewed),
		errors.Is(err, domain.ErrNotDelivered),
		errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrQuantityOverflow),
		errors.Is(err, idempotency.ErrInFlight),
		errors.Is(err, idempotency.ErrKeyReused):
		return http.StatusConflict, CategoryConflict
	case errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrUserNameRequired),
		errors.Is(err, domain.ErrTotalRequired),
		errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrProductIDRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrQuantityNegative),
		errors.Is(err, domain.ErrUnknownStatus),
		errors.Is(err, domain.ErrUnknownReviewStatus),
		errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrProductNotInOrder),
		errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, CategoryValidation
	default:
		return http.StatusInternalServerError, CategoryServer
	}
}

// errorDetails достаёт из типизированных ошибок то, что нужно показать покупателю.
func errorDetails(err error) any {
	var oos *domain.OutOfStockError
	if errors.As(err, &oos) {
		return gin.H{"productId": oos.ProductID, "name": oos.Name, "requested": oos.Requested}
	}
	var notFound *domain.ProductNotFoundError
	if errors.As(err, &notFound) {
		return gin.H{"productId": notFound.ProductID, "line": notFound.Line}
	}
	var lineErr *domain.LineError
	if errors.As(err, &lineErr) {
		return gin.H{"line": lineErr.Line}
	}
	var transition *domain.InvalidTransitionError
	if errors.As(err, &transition) {
		return gin.H{"from": transition.From, "to": transition.To}
	}
	return nil
}

// errorResponse строит тело ошибки. Серверные ошибки логируются с деталями,
// а клиенту уходит только correlation id.
func (h *Handler) errorResponse(c *gin.Context, err error) (int, errorBody) {
	status, category := classify(err)
	correlationID := c.GetString(ctxKeyCorrelationID)

	if category == CategoryServer {
		h.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": correlationID,
			"route":          c.FullPath(),
		}).Error("request failed")
		return status, errorBody{
			Error:         "internal server error",
			Category:      category,
			CorrelationID: correlationID,
		}
	}

	return status, errorBody{
		Error:    err.Error(),
		Category: category,
		Details:  errorDetails(err),
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, body := h.errorResponse(c, err)
	h.abort(c, status, body)
}

func (h *Handler) abort(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, body)
}
