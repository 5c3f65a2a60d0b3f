package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity: верхняя граница количества в одной строке корзины.
const MaxLineQuantity int64 = 1_000_000

// MaxOrderAmount: первая сумма, которая уже не помещается в NUMERIC(14,2).
var MaxOrderAmount = decimal.New(1, 12)

// CartLine — строка корзины в том виде, в каком её прислал клиент.
type CartLine struct {
	ProductID string         `json:"productId"`
	Quantity  int64          `json:"quantity"`
	Name      string         `json:"name,omitempty"`
	Image     string         `json:"image,omitempty"`
	Variant   map[string]any `json:"variant,omitempty"`
	// PriceAtAdd: цена на момент добавления в корзину. Только для показа, в расчётах не участвует.
	PriceAtAdd decimal.Decimal `json:"priceAtAdd"`
}

// Validate проверяет строку корзины до обращения к складу.
func (l CartLine) Validate() error {
	if strings.TrimSpace(l.ProductID) == "" {
		return ErrProductIDRequired
	}
	return CheckLineQuantity(l.Quantity)
}

// CheckLineQuantity проверяет количество строки: 1..MaxLineQuantity.
func CheckLineQuantity(qty int64) error {
	if qty < 1 || qty > MaxLineQuantity {
		return ErrItemQtyInvalid
	}
	return nil
}

// CheckAmount проверяет, что сумма помещается в денежную колонку хранилища.
func CheckAmount(amount decimal.Decimal) error {
	if amount.GreaterThanOrEqual(MaxOrderAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// PlannedLine: зарезервированная строка: снимок цены и названия из каталога.
type PlannedLine struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int64
	Image     string
	Variant   map[string]any
}

// ReservationPlan — результат успешной проверки корзины.
type ReservationPlan struct {
	Lines []PlannedLine
}

// Total: серверная сумма заказа по снимкам цен.
func (p ReservationPlan) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range p.Lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return total
}

// Items переводит план в позиции заказа.
func (p ReservationPlan) Items() []OrderItem {
	items := make([]OrderItem, 0, len(p.Lines))
	for _, line := range p.Lines {
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.Price,
			Quantity:  line.Quantity,
			Image:     line.Image,
			Variant:   line.Variant,
		})
	}
	return items
}

// PlanFromItems восстанавливает план резерва по позициям заказа (для возврата на склад при отмене).
func PlanFromItems(items []OrderItem) ReservationPlan {
	lines := make([]PlannedLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, PlannedLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Variant:   item.Variant,
		})
	}
	return ReservationPlan{Lines: lines}
}
