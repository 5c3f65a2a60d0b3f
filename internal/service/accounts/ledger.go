package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Ledger ведёт справочную статистику покупателя и серверную копию корзины.
type Ledger struct {
	users   domain.UserRepository
	logger  *log.Entry
	metrics *metrics.PlacementMetrics
	now     func() time.Time
}

// NewLedger создаёт Ledger.
func NewLedger(users domain.UserRepository, logger *log.Entry, m *metrics.PlacementMetrics) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "user-ledger")
	}
	return &Ledger{
		users:   users,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает аккаунт покупателя.
func (l *Ledger) Get(ctx context.Context, userID string) (domain.UserAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserAccount{}, domain.ErrUserRequired
	}
	return l.users.Get(ctx, userID)
}

// ApplyOrderEffects очищает корзину и обновляет счётчики после сохранения заказа.
// Ошибка логируется и возвращается, но заказ из-за неё не откатывается.
func (l *Ledger) ApplyOrderEffects(ctx context.Context, userID, orderID string, total decimal.Decimal) error {
	err := l.users.ApplyOrderEffects(ctx, userID, orderID, total, l.now())
	if err != nil {
		l.metrics.RecordStatsFailure()
		l.logger.WithError(err).WithFields(log.Fields{
			"user_id":  userID,
			"order_id": orderID,
			"total":    total.String(),
		}).Warn("user stats update failed")
		return fmt.Errorf("apply order effects: %w", err)
	}
	return nil
}

// SaveCart заменяет серверную копию корзины. Строки проверяются так же, как при оформлении.
func (l *Ledger) SaveCart(ctx context.Context, userID string, cart []domain.CartLine) error {
	for i, line := range cart {
		if err := line.Validate(); err != nil {
			return &domain.LineError{Line: i, Err: err}
		}
	}
	return l.users.ReplaceCart(ctx, userID, cart)
}
