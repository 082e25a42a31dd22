package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.StockEvent) error {
	p.log.Debug("stock event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("tenant_id", event.TenantID),
		zap.String("item_code", event.ItemCode),
		zap.Int("quantity", event.Quantity))
	return nil
}

// StartWorkers drains queue with n workers until it is closed. The returned
// WaitGroup is done once every worker has exited.
func StartWorkers(n int, queue <-chan domain.StockEvent, pub port.EventPublisher, timeout time.Duration, log *zap.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue, pub, timeout, log)
		}(i)
	}
	return &wg
}

func workerLoop(id int, queue <-chan domain.StockEvent, pub port.EventPublisher, timeout time.Duration, log *zap.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)

		// the ledger is already committed, so a failed publish is only logged
		if err := pub.Publish(ctx, event); err != nil {
			log.Error("failed to publish stock event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.String("reference", event.Reference),
				zap.Error(err))
		}

		cancel()
	}
}
