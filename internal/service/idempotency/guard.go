package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var (
	// ErrInFlight: запрос с тем же ключом ещё выполняется.
	ErrInFlight = errors.New("request with the same idempotency key is already processing")
	// ErrKeyReused — ключ уже использован с другим телом запроса.
	ErrKeyReused = errors.New("idempotency key is already used with different request payload")
)

// Response: сохранённый ответ, который отдаётся при повторе запроса.
type Response struct {
	Status int
	Body   []byte
}

// Guard выполняет обработчик не более одного раза на Idempotency-Key.
type Guard struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
	now    func() time.Time
}

// NewGuard создаёт Guard. Нулевой ttl заменяется на 24 часа.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return &Guard{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RequestHash строит отпечаток запроса по scope (метод и путь) и телу.
func RequestHash(scope string, body []byte) string {
	payload := make([]byte, 0, len(scope)+1+len(body))
	payload = append(payload, scope...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Do выполняет handler, если ключ новый, иначе возвращает сохранённый ответ.
// replayed=true означает, что handler не вызывался. Пустой ключ отключает защиту.
// Ответы 2xx и 4xx повторяются до истечения TTL, после 5xx ключ освобождается.
func (g *Guard) Do(ctx context.Context, key, requestHash string, handler func(context.Context) Response) (resp Response, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if g == nil || g.repo == nil || key == "" {
		return handler(ctx), false, nil
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		resp, err := g.replay(err, record)
		return resp, err == nil, err
	}

	resp = handler(ctx)

	// ответ сохраняется даже если клиент уже отключился
	storeCtx := context.WithoutCancel(ctx)
	switch {
	case resp.Status >= http.StatusInternalServerError:
		// 5xx не кэшируется: повтор с тем же ключом выполнит запрос заново.
		if err := g.repo.Release(storeCtx, key); err != nil {
			g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
		}
	case resp.Status >= http.StatusBadRequest:
		g.store(key, g.repo.MarkFailed(storeCtx, key, resp.Body, resp.Status))
	default:
		g.store(key, g.repo.MarkDone(storeCtx, key, resp.Body, resp.Status))
	}

	return resp, false, nil
}

func (g *Guard) store(key string, err error) {
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

func (g *Guard) replay(createErr error, record domain.IdempotencyRecord) (Response, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, ErrKeyReused
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			status := record.HTTPStatus
			if status == 0 {
				status = http.StatusOK
			}
			return Response{Status: status, Body: record.ResponseBody}, nil
		case domain.IdempotencyStatusProcessing:
			return Response{}, ErrInFlight
		default:
			return Response{}, errors.New("unknown idempotency record status")
		}
	default:
		g.logger.WithError(createErr).Warn("failed to create idempotency record")
		return Response{}, createErr
	}
}
