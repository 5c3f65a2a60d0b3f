package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

const (
	idempotencyMetadataKey = "idempotency-key"
	defaultActor           = "grpc-admin"
)

// OrderReader отдаёт заказы и их ленту событий.
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

// RatingSource считает рейтинг товара по одобренным отзывам.
type RatingSource interface {
	ProductRating(ctx context.Context, productID string) (domain.RatingSummary, error)
}

// AdminService реализует FulfillmentAdmin поверх сервисов заказов и отзывов.
type AdminService struct {
	orders    OrderReader
	lifecycle OrderLifecycle
	ratings   RatingSource
	guard     *idempotency.Guard
	logger    *log.Entry
}

// NewAdminService конструирует сервис. guard может быть nil.
func NewAdminService(reader OrderReader, lifecycle OrderLifecycle, ratings RatingSource, guard *idempotency.Guard, logger *log.Entry) *AdminService {
	if logger == nil {
		logger = log.WithField("component", "grpc-admin")
	}
	return &AdminService{
		orders:    reader,
		lifecycle: lifecycle,
		ratings:   ratings,
		guard:     guard,
		logger:    logger,
	}
}

// GetOrder возвращает заказ и его ленту.
func (s *AdminService) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	events, err := s.orders.Timeline(ctx, order.ID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrderTimeline")
	}

	timeline := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			Actor:    event.Actor,
			Occurred: formatTime(event.Occurred),
		})
	}

	return &GetOrderResponse{Order: toOrder(order), Timeline: timeline}, nil
}

// ListOrders возвращает страницу заказов, новые первыми.
func (s *AdminService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if req == nil {
		req = &ListOrdersRequest{}
	}

	filter := domain.OrderFilter{UserID: req.UserID, Page: req.Page, Limit: req.Limit}
	if req.Status != "" {
		st, err := domain.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		filter.Status = st
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.toStatus(err, "ListOrders")
	}

	result := make([]Order, 0, len(page.Orders))
	for _, order := range page.Orders {
		result = append(result, toOrder(order))
	}

	return &ListOrdersResponse{
		Orders:     result,
		Total:      page.Total,
		Page:       page.Page,
		TotalPages: page.TotalPages(),
	}, nil
}

// SetOrderStatus переводит заказ в новый статус. Отмена возвращает остатки на склад.
func (s *AdminService) SetOrderStatus(ctx context.Context, req *SetOrderStatusRequest) (*SetOrderStatusResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return withIdempotency(s, ctx, methodSetOrderStatus, req, func(ctx context.Context) (*SetOrderStatusResponse, error) {
		order, err := s.lifecycle.Transition(ctx, req.OrderID, next,
			orders.ByActor(actorOrDefault(req.Actor)),
			orders.WithReason(req.Reason),
		)
		if err != nil {
			return nil, s.toStatus(err, "SetOrderStatus")
		}
		return &SetOrderStatusResponse{Order: toOrder(order)}, nil
	})
}

// DeleteOrder удаляет заказ без возврата остатков.
func (s *AdminService) DeleteOrder(ctx context.Context, req *DeleteOrderRequest) (*DeleteOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return withIdempotency(s, ctx, methodDeleteOrder, req, func(ctx context.Context) (*DeleteOrderResponse, error) {
		if err := s.lifecycle.Delete(ctx, req.OrderID, actorOrDefault(req.Actor)); err != nil {
			return nil, s.toStatus(err, "DeleteOrder")
		}
		return &DeleteOrderResponse{OrderID: req.OrderID}, nil
	})
}

// ProductRating возвращает средний рейтинг товара.
func (s *AdminService) ProductRating(ctx context.Context, req *ProductRatingRequest) (*ProductRatingResponse, error) {
	if req == nil || strings.TrimSpace(req.ProductID) == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	summary, err := s.ratings.ProductRating(ctx, req.ProductID)
	if err != nil {
		return nil, s.toStatus(err, "ProductRating")
	}

	return &ProductRatingResponse{
		ProductID: req.ProductID,
		Average:   summary.Average,
		Count:     summary.Count,
	}, nil
}

func (s *AdminService) toStatus(err error, operation string) error {
	switch {
	case errors.Is(err, domain.ErrUnknownStatus),
		errors.Is(err, domain.ErrUnknownReviewStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrQuantityOverflow):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsVersionConflict(err):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}

	s.logger.WithError(err).WithField("operation", operation).Error("admin operation failed")
	return status.Error(codes.Internal, "internal error")
}

// storedReply: ответ мутации, сохранённый под ключом идемпотентности.
// gRPC-код хранится в теле, HTTP-статус записи решает, запомнить ответ или снять ключ.
type storedReply struct {
	Code    uint32          `json:"code"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func withIdempotency[Resp any](
	s *AdminService,
	ctx context.Context,
	method string,
	req any,
	call func(context.Context) (*Resp, error),
) (*Resp, error) {
	key := idempotencyKeyFromContext(ctx)
	if key == "" || s.guard == nil {
		return call(ctx)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "failed to encode request")
	}

	var (
		out     *Resp
		callErr error
	)
	resp, replayed, err := s.guard.Do(ctx, key, idempotency.RequestHash(method, payload), func(ctx context.Context) idempotency.Response {
		out, callErr = call(ctx)
		return encodeReply(out, callErr)
	})
	switch {
	case errors.Is(err, idempotency.ErrInFlight):
		return nil, status.Error(codes.Aborted, err.Error())
	case errors.Is(err, idempotency.ErrKeyReused):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case err != nil:
		s.logger.WithError(err).WithField("idempotency_key", key).Error("idempotency check failed")
		return nil, status.Error(codes.Internal, "idempotency check failed")
	}
	if !replayed {
		return out, callErr
	}

	return decodeReply[Resp](resp.Body)
}

func encodeReply(out any, callErr error) idempotency.Response {
	st := status.Convert(callErr)
	reply := storedReply{Code: uint32(st.Code()), Message: st.Message()}
	httpStatus := http.StatusOK
	if callErr != nil {
		httpStatus = replyHTTPStatus(st.Code())
	} else if payload, err := json.Marshal(out); err == nil {
		reply.Payload = payload
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return idempotency.Response{Status: http.StatusInternalServerError}
	}
	return idempotency.Response{Status: httpStatus, Body: body}
}

// replyHTTPStatus: серверные сбои получают 5xx, и guard не запоминает их ответ.
func replyHTTPStatus(code codes.Code) int {
	switch code {
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss,
		codes.DeadlineExceeded, codes.Canceled:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeReply[Resp any](body []byte) (*Resp, error) {
	var reply storedReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, status.Error(codes.Internal, "failed to decode stored response")
	}
	if code := codes.Code(reply.Code); code != codes.OK {
		return nil, status.Error(code, reply.Message)
	}

	out := new(Resp)
	if len(reply.Payload) > 0 {
		if err := json.Unmarshal(reply.Payload, out); err != nil {
			return nil, status.Error(codes.Internal, "failed to decode stored response")
		}
	}
	return out, nil
}

func idempotencyKeyFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(idempotencyMetadataKey)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func actorOrDefault(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return defaultActor
	}
	return actor
}

func toOrder(order domain.Order) Order {
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.String(),
			Quantity:  item.Quantity,
		})
	}

	return Order{
		ID:            order.ID,
		UserID:        order.UserID,
		UserName:      order.UserName,
		Status:        string(order.Status),
		TotalAmount:   order.TotalAmount.String(),
		PaymentMethod: order.PaymentMethod,
		Items:         items,
		Version:       order.Version,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var _ FulfillmentAdminServer = (*AdminService)(nil)
