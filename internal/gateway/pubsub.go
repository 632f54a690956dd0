package gateway

import (
	"context"
	"log"
	"time"

	"market-analyzer/internal/store/redis"
)

// PubSubRouter feeds reports published on Redis into the hub.
type PubSubRouter struct {
	hub    *Hub
	reader *redis.Reader
}

// NewPubSubRouter creates a PubSubRouter delivering to hub.
func NewPubSubRouter(hub *Hub, reader *redis.Reader) *PubSubRouter {
	return &PubSubRouter{hub: hub, reader: reader}
}

// Run pattern-subscribes to every report channel and routes messages until
// ctx is cancelled, resubscribing with backoff if the subscription drops.
func (r *PubSubRouter) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := r.runOnce(ctx); err != nil {
			log.Printf("[gateway] pubsub: %v (retry in %s)", err, backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (r *PubSubRouter) runOnce(ctx context.Context) error {
	pubsub, err := r.reader.SubscribeReports(ctx)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	log.Printf("[gateway] subscribed to %s", redis.ReportPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.hub.Broadcaster.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
