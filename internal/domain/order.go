package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа витрины.
type OrderStatus string

const (
	// OrderStatusPending: заказ оформлен, склад зарезервирован.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing: заказ принят в работу.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered: заказ доставлен, открыт для отзывов.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён, остатки возвращены на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Разрешённые переходы. Терминальные статусы в таблице отсутствуют.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// ParseOrderStatus разбирает строковый статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo проверяет переход по таблице.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition возвращает InvalidTransitionError для запрещённых переходов.
func (s OrderStatus) Transition(next OrderStatus) error {
	if !next.Valid() {
		return ErrUnknownStatus
	}
	if !s.CanTransitionTo(next) {
		return &InvalidTransitionError{From: s, To: next}
	}
	return nil
}

// OrderItem — снимок позиции на момент оформления. Не меняется после создания заказа.
type OrderItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int64
	Image     string
	Variant   map[string]any
}

// Subtotal возвращает цену позиции с учётом количества.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	UserID        string
	UserName      string
	Items         []OrderItem
	TotalAmount   decimal.Decimal
	PaymentMethod string
	Message       string
	Status        OrderStatus
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemsTotal считает сумму позиций заказа.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Item ищет позицию по товару.
func (o *Order) Item(productID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}
	if err := CheckAmount(o.TotalAmount); err != nil {
		errs = append(errs, err)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownStatus)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if err := CheckLineQuantity(item.Quantity); err != nil {
			errs = append(errs, err)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	// Итог всегда равен сумме снимков позиций.
	if !o.ItemsTotal().Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// OrderFilter задаёт выборку списка заказов.
type OrderFilter struct {
	UserID string
	Status OrderStatus
	Page   int
	Limit  int
}

const (
	defaultOrderPageLimit = 10
	maxOrderPageLimit     = 100
)

// Normalize приводит страницу и лимит к допустимым значениям.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultOrderPageLimit
	}
	if f.Limit > maxOrderPageLimit {
		f.Limit = maxOrderPageLimit
	}
	return f
}

// Offset возвращает смещение для нормализованного фильтра.
func (f OrderFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.Limit
}

// OrderPage: страница заказов, отсортированных от новых к старым.
type OrderPage struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// TotalPages считает количество страниц.
func (p OrderPage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}
