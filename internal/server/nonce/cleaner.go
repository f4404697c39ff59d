package nonce

import (
	"context"
	"log/slog"
	"time"

	"github.com/iudanet/keywitness/internal/server/authn"
	"github.com/iudanet/keywitness/internal/server/storage"
)

// Записи живут дольше окна timestamp'ов, чтобы replay не прошел
// на границе окна из-за преждевременной очистки
const retentionMargin = 60 * time.Second

// Cleaner периодически удаляет из replay-журнала записи старше окна
type Cleaner struct {
	nonces   storage.NonceStorage
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	stopC    chan struct{}
	doneC    chan struct{}
}

// NewCleaner создает cleaner с дефолтным retention: окно timestamp'ов плюс запас
func NewCleaner(nonces storage.NonceStorage, interval time.Duration, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		nonces:   nonces,
		logger:   logger,
		interval: interval,
		maxAge:   authn.MaxTimestampSkew + retentionMargin,
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
	}
}

// Start запускает периодическую очистку в отдельной goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	defer close(c.doneC)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep(ctx)
		case <-c.stopC:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	deleted, err := c.nonces.DeleteExpired(ctx, c.maxAge)
	if err != nil {
		c.logger.Error("nonce cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		c.logger.Debug("nonce cleanup", "deleted", deleted)
	}
}

// Stop останавливает cleanup goroutine и дожидается ее завершения
func (c *Cleaner) Stop() {
	close(c.stopC)
	<-c.doneC
}
