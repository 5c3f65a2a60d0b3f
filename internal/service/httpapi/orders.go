package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
)

const jsonContentType = "application/json; charset=utf-8"

// placeOrder оформляет заказ. С заголовком Idempotency-Key повтор того же
// запроса возвращает сохранённый ответ, а не второй заказ.
func (h *Handler) placeOrder(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}
	var body placeOrderBody
	if err := json.Unmarshal(raw, &body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}

	req := saga.PlaceOrderRequest{
		UserID:        userID(c),
		UserName:      body.UserName,
		Cart:          body.CartItems,
		ClientTotal:   body.TotalAmount,
		PaymentMethod: body.PaymentMethod,
		Message:       body.Message,
	}

	scope := c.Request.Method + " " + c.FullPath() + " " + req.UserID
	resp, replayed, err := h.svc.Idempotency.Do(
		c.Request.Context(),
		c.GetHeader(HeaderIdempotency),
		idempotency.RequestHash(scope, raw),
		func(ctx context.Context) idempotency.Response {
			result, err := h.svc.Placement.PlaceOrder(ctx, req)
			if err != nil {
				status, errBody := h.errorResponse(c, err)
				return jsonResponse(status, errBody)
			}
			return jsonResponse(http.StatusCreated, toPlaceOrderResponse(result))
		},
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	if replayed {
		c.Header(HeaderReplayed, "true")
	}
	c.Data(resp.Status, jsonContentType, resp.Body)
}

func (h *Handler) listOrders(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}

	filter := domain.OrderFilter{Page: page, Limit: limit}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		filter.Status = status
	}
	if !isAdmin(c) {
		filter.UserID = userID(c)
	}

	result, err := h.svc.Orders.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	list := make([]orderDTO, 0, len(result.Orders))
	for _, order := range result.Orders {
		list = append(list, toOrderDTO(order))
	}
	c.JSON(http.StatusOK, orderListResponse{
		Orders:     list,
		Page:       result.Page,
		Limit:      result.Limit,
		Total:      result.Total,
		TotalPages: result.TotalPages(),
	})
}

// getOrder отдаёт заказ с историей и состоянием отзывов по позициям.
// Чужой заказ для покупателя выглядит как несуществующий.
func (h *Handler) getOrder(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := h.svc.Orders.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !isAdmin(c) && order.UserID != userID(c) {
		h.fail(c, domain.ErrOrderNotFound)
		return
	}

	events, err := h.svc.Orders.Timeline(ctx, order.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	states, err := h.svc.Reviews.LineStatuses(ctx, order)
	if err != nil {
		h.fail(c, err)
		return
	}

	timeline := make([]timelineEventDTO, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, timelineEventDTO{
			Type:     event.Type,
			Reason:   event.Reason,
			Actor:    event.Actor,
			Occurred: event.Occurred,
		})
	}
	lines := make([]lineReviewDTO, 0, len(states))
	for _, state := range states {
		line := lineReviewDTO{
			ProductID:  state.ProductID,
			Reviewable: state.Reviewable,
			Reviewed:   state.Reviewed,
		}
		if state.Review != nil {
			review := toReviewDTO(*state.Review)
			line.Review = &review
		}
		lines = append(lines, line)
	}

	c.JSON(http.StatusOK, orderDetailResponse{
		Order:    toOrderDTO(order),
		Timeline: timeline,
		Reviews:  lines,
	})
}

func (h *Handler) setOrderStatus(c *gin.Context) {
	var body setStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}
	next, err := domain.ParseOrderStatus(body.Status)
	if err != nil {
		h.fail(c, err)
		return
	}

	order, err := h.svc.Lifecycle.Transition(c.Request.Context(), c.Param("id"), next,
		orders.ByActor(userID(c)),
		orders.WithReason(body.Reason),
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.svc.Lifecycle.Delete(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errMalformedBody, name)
	}
	return v, nil
}

func jsonResponse(status int, v any) idempotency.Response {
	body, err := json.Marshal(v)
	if err != nil {
		return idempotency.Response{
			Status: http.StatusInternalServerError,
			Body:   []byte(`{"error":"internal server error","category":"server"}`),
		}
	}
	return idempotency.Response{Status: status, Body: body}
}
