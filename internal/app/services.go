package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/accounts"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/journal"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/reviews"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
	"github.com/vladislavdragonenkov/storefront/internal/telemetry"
)

// services — доменные сервисы поверх выбранных хранилищ.
type services struct {
	validator *inventory.Validator
	placement *saga.Placement
	reader    *orders.Reader
	lifecycle *orders.Lifecycle
	reviews   *reviews.Gate
	accounts  *accounts.Ledger
	stock     *inventory.StockAdmin
	guard     *idempotency.Guard
}

func buildServices(cfg Config, deps *runtimeDependencies, m *metrics.PlacementMetrics, logger *log.Entry) *services {
	recorder := journal.NewRecorder(deps.outboxRepo, deps.timeline, logger.WithField("layer", "journal"), m)

	validator := inventory.NewValidator(deps.products, deps.stock,
		inventory.WithLogger(logger.WithField("layer", "inventory")),
		inventory.WithMetrics(m),
	)
	writer := orders.NewWriter(deps.orders, validator,
		orders.WithWriterLogger(logger.WithField("layer", "order-writer")),
		orders.WithWriterMetrics(m),
	)
	ledger := accounts.NewLedger(deps.users, logger.WithField("layer", "accounts"), m)

	placement := saga.NewPlacement(validator, writer, ledger, recorder,
		saga.WithLogger(logger.WithField("layer", "placement")),
		saga.WithMetrics(m),
		saga.WithTracer(telemetry.Tracer()),
	)

	return &services{
		validator: validator,
		placement: placement,
		reader:    orders.NewReader(deps.orders, deps.timeline),
		lifecycle: orders.NewLifecycle(deps.orders, validator, recorder,
			orders.WithLifecycleLogger(logger.WithField("layer", "lifecycle")),
			orders.WithLifecycleMetrics(m),
		),
		reviews:  reviews.NewGate(deps.orders, deps.reviews, recorder, logger.WithField("layer", "reviews"), m),
		accounts: ledger,
		stock:    inventory.NewStockAdmin(deps.products, deps.stockMirror, logger.WithField("layer", "stock-admin")),
		guard:    idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("layer", "idempotency")),
	}
}

func (s *services) httpServices() httpapi.Services {
	return httpapi.Services{
		Placement:   s.placement,
		Orders:      s.reader,
		Lifecycle:   s.lifecycle,
		Reviews:     s.reviews,
		Accounts:    s.accounts,
		Stock:       s.stock,
		Idempotency: s.guard,
	}
}
