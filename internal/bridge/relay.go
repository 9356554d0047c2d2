package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lumenchat/chatd/internal/config"
	"github.com/lumenchat/chatd/internal/hub"
	"github.com/lumenchat/chatd/internal/log"
)

// Envelope wraps an outbound event for the shared channel. Origin carries
// the publishing instance id so subscribers skip their own events.
type Envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// Relay is a Dispatcher that fans out locally through the hub and mirrors
// every fan-out onto a Redis pub/sub channel, so clients attached to other
// instances receive the same events. Targeted sends stay local: the target
// connection only exists on this instance.
type Relay struct {
	local      *hub.Hub
	client     *redis.Client
	channel    string
	instanceID string
	cancel     context.CancelFunc
}

func NewRelay(local *hub.Hub, cfg config.BridgeConfig) (*Relay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Relay{
		local:      local,
		client:     client,
		channel:    cfg.Channel,
		instanceID: uuid.NewString(),
	}, nil
}

// Start subscribes to the shared channel and rebroadcasts foreign events to
// local clients until ctx is cancelled or Close is called.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, r.channel)

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.L().Warn().Err(err).Msg("bridge: dropping malformed envelope")
					continue
				}
				if env.Origin == r.instanceID {
					continue
				}
				r.local.BroadcastRaw(env.Payload)
			}
		}
	}()
	log.L().Info().Str("channel", r.channel).Msg("bridge subscribed")
}

func (r *Relay) BroadcastAll(event interface{}) error {
	if err := r.local.BroadcastAll(event); err != nil {
		return err
	}
	return r.publish(event)
}

func (r *Relay) BroadcastExcept(origin string, event interface{}) error {
	if err := r.local.BroadcastExcept(origin, event); err != nil {
		return err
	}
	// The excluded origin is attached to this instance; remote instances
	// deliver to everyone they hold.
	return r.publish(event)
}

func (r *Relay) SendTo(connID string, event interface{}) error {
	return r.local.SendTo(connID, event)
}

func (r *Relay) publish(event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	env := Envelope{Origin: r.instanceID, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := r.client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		// Local delivery already happened; a bridge hiccup must not fail the op.
		log.L().Warn().Err(err).Msg("bridge publish failed")
	}
	return nil
}

func (r *Relay) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.client.Close()
}
