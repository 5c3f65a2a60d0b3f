package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Product: товар каталога вместе со складской политикой.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Image string
	// Quantity — доступный остаток. Может уйти в минус только при разрешённых овер-продажах.
	Quantity int64
	// TrackQuantity выключает учёт остатков: резерв всегда успешен и ничего не списывает.
	TrackQuantity bool
	// ContinueSellingWhenOutOfStock разрешает продажу при нулевом остатке.
	ContinueSellingWhenOutOfStock bool
	UpdatedAt                     time.Time
}

// CanReserve проверяет, можно ли зарезервировать qty единиц при текущем остатке.
func (p Product) CanReserve(qty int64) bool {
	if !p.TrackQuantity || p.ContinueSellingWhenOutOfStock {
		return true
	}
	return p.Quantity >= qty
}

// AfterReserve возвращает остаток после списания qty единиц. Овер-продажа
// может увести остаток в минус, но не за пределы int64.
func (p Product) AfterReserve(qty int64) (int64, error) {
	if err := CheckLineQuantity(qty); err != nil {
		return 0, err
	}
	if p.Quantity < math.MinInt64+qty {
		return 0, ErrQuantityOverflow
	}
	return p.Quantity - qty, nil
}

// AfterRelease возвращает остаток после возврата qty единиц.
func (p Product) AfterRelease(qty int64) (int64, error) {
	if err := CheckLineQuantity(qty); err != nil {
		return 0, err
	}
	if p.Quantity > math.MaxInt64-qty {
		return 0, ErrQuantityOverflow
	}
	return p.Quantity + qty, nil
}

// Decrements сообщает, уменьшает ли резерв остаток товара.
func (p Product) Decrements() bool {
	return p.TrackQuantity
}

// Validate проверяет карточку товара перед сохранением.
func (p Product) Validate() []error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if p.TrackQuantity && !p.ContinueSellingWhenOutOfStock && p.Quantity < 0 {
		errs = append(errs, ErrQuantityNegative)
	}
	return errs
}
