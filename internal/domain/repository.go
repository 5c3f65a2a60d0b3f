package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает страницу заказов от новых к старым.
	List(ctx context.Context, filter OrderFilter) (OrderPage, error)
	// Save обновляет статус заказа с учётом optimistic locking. Позиции неизменяемы.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ. Склад не затрагивается.
	Delete(ctx context.Context, id string) error
}

// ProductRepository: каталог товаров.
type ProductRepository interface {
	Get(ctx context.Context, id string) (Product, error)
	Upsert(ctx context.Context, product Product) error
	List(ctx context.Context) ([]Product, error)
}

// UserRepository хранит аккаунты покупателей.
type UserRepository interface {
	Get(ctx context.Context, id string) (UserAccount, error)
	Upsert(ctx context.Context, user UserAccount) error
	// ApplyOrderEffects атомарно увеличивает статистику и очищает корзину.
	// Повторный вызов для того же заказа ничего не меняет.
	ApplyOrderEffects(ctx context.Context, userID, orderID string, total decimal.Decimal, at time.Time) error
	// ReplaceCart перезаписывает только серверную копию корзины.
	ReplaceCart(ctx context.Context, userID string, cart []CartLine) error
}

// ReviewRepository хранит отзывы.
type ReviewRepository interface {
	// CreateIfAbsent вставляет отзыв, если по тройке (товар, заказ, пользователь) его ещё нет.
	// Иначе возвращает ErrAlreadyReviewed.
	CreateIfAbsent(ctx context.Context, review Review) (Review, error)
	Get(ctx context.Context, id string) (Review, error)
	Update(ctx context.Context, review Review) error
	ListByOrder(ctx context.Context, orderID, userID string) ([]Review, error)
	ListByProduct(ctx context.Context, productID string, status ReviewStatus) ([]Review, error)
	// RatingSummary считает рейтинг по одобренным отзывам на момент чтения.
	RatingSummary(ctx context.Context, productID string) (RatingSummary, error)
}
