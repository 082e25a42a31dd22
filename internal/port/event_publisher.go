package port

import (
	"context"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.StockEvent) error
}
