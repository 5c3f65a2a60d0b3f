package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserAccount: аккаунт покупателя со сводной статистикой заказов.
//
// TotalOrders и TotalSpent носят справочный характер: по ним не принимаются решения,
// поэтому сбой обновления не откатывает уже сохранённый заказ.
type UserAccount struct {
	ID            string
	Name          string
	TotalOrders   int64
	TotalSpent    decimal.Decimal
	LastOrderDate time.Time
	// Cart: серверная копия корзины, очищается после успешного оформления.
	Cart      []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyOrder применяет эффект одного заказа к статистике.
func (u *UserAccount) ApplyOrder(total decimal.Decimal, at time.Time) {
	u.TotalOrders++
	u.TotalSpent = u.TotalSpent.Add(total)
	u.LastOrderDate = at
	u.Cart = nil
	u.UpdatedAt = at
}
