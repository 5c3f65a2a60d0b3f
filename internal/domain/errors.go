package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего имени покупателя в запросе на оформление.
	ErrUserNameRequired = errors.New("userName is required")
	// Ошибка отсутствующей суммы заказа в запросе клиента.
	ErrTotalRequired = errors.New("totalAmount is required")
	// Ошибка пустой корзины.
	ErrCartEmpty = errors.New("cart must contain at least one item")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrProductIDRequired = errors.New("productId is required")
	// Ошибка при некорректном количестве товара (вне 1..MaxLineQuantity).
	ErrItemQtyInvalid = errors.New("item quantity must be between 1 and 1000000")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("totalAmount must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка суммы, не помещающейся в NUMERIC(14,2).
	ErrAmountTooLarge = errors.New("amount must be less than 1000000000000")
	// Остаток после операции вышел бы за пределы int64.
	ErrQuantityOverflow = errors.New("stock quantity out of range")
	// Ошибка отрицательного остатка для товара без овер-продаж.
	ErrQuantityNegative = errors.New("tracked quantity must be non-negative")

	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — бизнес-ошибка склада: остатка не хватает, овер-продажи запрещены.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUserNotFound возвращается, если аккаунт покупателя не найден.
	ErrUserNotFound = errors.New("user not found")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists: заказ с таким идентификатором уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderPersistenceFailed: заказ не удалось сохранить, резервы сняты.
	ErrOrderPersistenceFailed = errors.New("order persistence failed")
	// ErrInvalidTransition — переход статуса запрещён машиной состояний.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrUnknownStatus: строка не соответствует ни одному статусу заказа.
	ErrUnknownStatus = errors.New("unknown order status")

	// ErrReviewNotFound возвращается, если отзыв не найден.
	ErrReviewNotFound = errors.New("review not found")
	// ErrAlreadyReviewed: отзыв на позицию заказа уже оставлен.
	ErrAlreadyReviewed = errors.New("order line already reviewed")
	// ErrNotDelivered — отзыв возможен только для доставленного заказа.
	ErrNotDelivered = errors.New("order is not delivered")
	// ErrReviewForbidden: заказ или отзыв принадлежит другому пользователю.
	ErrReviewForbidden = errors.New("review action is not allowed for this user")
	// ErrProductNotInOrder: товара нет среди позиций заказа.
	ErrProductNotInOrder = errors.New("product is not part of the order")
	// ErrInvalidRating — оценка вне диапазона 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrUnknownReviewStatus: строка не соответствует статусу модерации.
	ErrUnknownReviewStatus = errors.New("unknown review status")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different payload")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// OutOfStockError описывает отказ резерва с указанием товара для показа покупателю.
type OutOfStockError struct {
	ProductID string
	Name      string
	Requested int64
}

func (e *OutOfStockError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("product %s is out of stock (requested %d)", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("product %q (%s) is out of stock (requested %d)", e.Name, e.ProductID, e.Requested)
}

func (e *OutOfStockError) Unwrap() error { return ErrInsufficientStock }

// ProductNotFoundError указывает строку корзины с неизвестным товаром.
type ProductNotFoundError struct {
	Line      int
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("cartItems[%d]: product %s not found", e.Line, e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// LineError привязывает ошибку валидации к строке корзины.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("cartItems[%d]: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// InvalidTransitionError описывает запрещённый переход статуса.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsBusinessError сообщает, что ошибку можно показать покупателю как есть.
func IsBusinessError(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrCartEmpty),
		errors.Is(err, ErrItemQtyInvalid),
		errors.Is(err, ErrAmountTooLarge),
		errors.Is(err, ErrProductIDRequired):
		return true
	default:
		return false
	}
}
