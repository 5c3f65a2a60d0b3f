package httpapi

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
)

var errMalformedBody = errors.New("malformed request body")

type placeOrderBody struct {
	CartItems     []domain.CartLine   `json:"cartItems"`
	TotalAmount   decimal.NullDecimal `json:"totalAmount"`
	Message       string              `json:"message"`
	UserName      string              `json:"userName"`
	PaymentMethod string              `json:"paymentMethod"`
}

type handoffDTO struct {
	Queued  bool   `json:"queued"`
	Summary string `json:"summary"`
}

type placeOrderResponse struct {
	Success     bool            `json:"success"`
	OrderID     string          `json:"orderId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Handoff     handoffDTO      `json:"handoff"`
	Warnings    []string        `json:"warnings,omitempty"`
}

func toPlaceOrderResponse(result saga.PlaceOrderResult) placeOrderResponse {
	return placeOrderResponse{
		Success:     true,
		OrderID:     result.Order.ID,
		TotalAmount: result.Order.TotalAmount,
		Handoff: handoffDTO{
			Queued:  result.Handoff.Queued,
			Summary: result.Handoff.Summary,
		},
		Warnings: result.Warnings,
	}
}

type orderItemDTO struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Image     string          `json:"image,omitempty"`
	Variant   map[string]any  `json:"variant,omitempty"`
}

type orderDTO struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	UserName      string          `json:"userName"`
	Items         []orderItemDTO  `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Message       string          `json:"message,omitempty"`
	Status        string          `json:"status"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toOrderDTO(order domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal(),
			Image:     item.Image,
			Variant:   item.Variant,
		})
	}
	return orderDTO{
		ID:            order.ID,
		UserID:        order.UserID,
		UserName:      order.UserName,
		Items:         items,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		Message:       order.Message,
		Status:        string(order.Status),
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

type orderListResponse struct {
	Orders     []orderDTO `json:"orders"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	Total      int        `json:"total"`
	TotalPages int        `json:"totalPages"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type lineReviewDTO struct {
	ProductID  string     `json:"productId"`
	Reviewable bool       `json:"reviewable"`
	Reviewed   bool       `json:"reviewed"`
	Review     *reviewDTO `json:"review,omitempty"`
}

type orderDetailResponse struct {
	Order    orderDTO           `json:"order"`
	Timeline []timelineEventDTO `json:"timeline"`
	Reviews  []lineReviewDTO    `json:"reviews"`
}

type setStatusBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type stockBody struct {
	Name                          *string          `json:"name"`
	Price                         *decimal.Decimal `json:"price"`
	Image                         *string          `json:"image"`
	Quantity                      *int64           `json:"quantity"`
	TrackQuantity                 *bool            `json:"trackQuantity"`
	ContinueSellingWhenOutOfStock *bool            `json:"continueSellingWhenOutOfStock"`
}

type productDTO struct {
	ID                            string          `json:"id"`
	Name                          string          `json:"name"`
	Price                         decimal.Decimal `json:"price"`
	Image                         string          `json:"image,omitempty"`
	Quantity                      int64           `json:"quantity"`
	TrackQuantity                 bool            `json:"trackQuantity"`
	ContinueSellingWhenOutOfStock bool            `json:"continueSellingWhenOutOfStock"`
}

func toProductDTO(p domain.Product) productDTO {
	return productDTO{
		ID:                            p.ID,
		Name:                          p.Name,
		Price:                         p.Price,
		Image:                         p.Image,
		Quantity:                      p.Quantity,
		TrackQuantity:                 p.TrackQuantity,
		ContinueSellingWhenOutOfStock: p.ContinueSellingWhenOutOfStock,
	}
}

type recordReviewBody struct {
	OrderID   string   `json:"orderId"`
	ProductID string   `json:"productId"`
	UserName  string   `json:"userName"`
	Rating    int      `json:"rating"`
	Title     string   `json:"title"`
	Comment   string   `json:"comment"`
	Images    []string `json:"images"`
}

type editReviewBody struct {
	Rating  int      `json:"rating"`
	Title   string   `json:"title"`
	Comment string   `json:"comment"`
	Images  []string `json:"images"`
}

type moderateBody struct {
	Status string `json:"status"`
}

type reviewDTO struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"productId"`
	OrderID          string    `json:"orderId"`
	UserID           string    `json:"userId"`
	UserName         string    `json:"userName"`
	Rating           int       `json:"rating"`
	Title            string    `json:"title,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	Images           []string  `json:"images,omitempty"`
	VerifiedPurchase bool      `json:"verifiedPurchase"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toReviewDTO(r domain.Review) reviewDTO {
	return reviewDTO{
		ID:               r.ID,
		ProductID:        r.ProductID,
		OrderID:          r.OrderID,
		UserID:           r.UserID,
		UserName:         r.UserName,
		Rating:           r.Rating,
		Title:            r.Title,
		Comment:          r.Comment,
		Images:           r.Images,
		VerifiedPurchase: r.VerifiedPurchase,
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt,
	}
}

type ratingResponse struct {
	ProductID string  `json:"productId"`
	Average   float64 `json:"average"`
	Count     int     `json:"count"`
}

type accountResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	TotalOrders   int64             `json:"totalOrders"`
	TotalSpent    decimal.Decimal   `json:"totalSpent"`
	LastOrderDate *time.Time        `json:"lastOrderDate,omitempty"`
	Cart          []domain.CartLine `json:"cart"`
}

type cartBody struct {
	CartItems []domain.CartLine `json:"cartItems"`
}
