package saga

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FormatSummary готовит текст заказа для передачи во внешний чат.
func FormatSummary(order domain.Order) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Order %s\n", order.ID)
	if order.UserName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", order.UserName)
	}
	for i, item := range order.Items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Name)
		if variant := formatVariant(item.Variant); variant != "" {
			fmt.Fprintf(&b, " (%s)", variant)
		}
		fmt.Fprintf(&b, " x%d = %s\n", item.Quantity, item.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: %s", order.TotalAmount.StringFixed(2))
	if order.PaymentMethod != "" {
		fmt.Fprintf(&b, "\nPayment: %s", order.PaymentMethod)
	}
	if msg := strings.TrimSpace(order.Message); msg != "" {
		fmt.Fprintf(&b, "\nMessage: %s", msg)
	}
	return b.String()
}

func formatVariant(variant map[string]any) string {
	if len(variant) == 0 {
		return ""
	}
	keys := make([]string, 0, len(variant))
	for k := range variant {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, variant[k]))
	}
	return strings.Join(parts, ", ")
}
