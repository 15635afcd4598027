// Package relay forwards team broadcasts and user pushes between instances
// over Redis pub/sub. Each instance publishes instead of delivering directly
// and delivers whatever it receives to its local registry.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/models"
)

const (
	scopeTeam      = "team"
	scopeUser      = "user"
	scopeEvict     = "evict"
	scopeEvictTeam = "evict_team"
)

// Local is the in-process registry frames are delivered to.
type Local interface {
	DeliverToTeam(teamID int64, frame []byte) int
	DeliverToUser(userID int64, frame []byte) int
	Evict(teamID, userID int64) int
	EvictTeam(teamID int64) int
}

type envelope struct {
	Origin string          `json:"origin,omitempty"`
	Scope  string          `json:"scope"`
	Target int64           `json:"target"`
	User   int64           `json:"user,omitempty"`
	Frame  json.RawMessage `json:"frame,omitempty"`
}

// Relay publishes fanout envelopes and delivers received ones locally.
type Relay struct {
	id      string
	client  *redis.Client
	channel string
	local   Local
	log     *logger.Logger

	mu     sync.Mutex
	sub    *redis.PubSub
	doneCh chan struct{}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// New creates a relay on channel.
func New(client *redis.Client, channel string, local Local, log *logger.Logger) *Relay {
	return &Relay{id: uuid.NewString(), client: client, channel: channel, local: local, log: log}
}

// BroadcastToTeam publishes ev for every instance's subscribers of teamID.
// The count is the number of instances that received it.
func (r *Relay) BroadcastToTeam(teamID int64, ev models.Event) (int, error) {
	return r.publish(scopeTeam, teamID, ev)
}

// SendToUser publishes ev for every instance's connections of userID.
func (r *Relay) SendToUser(userID int64, ev models.Event) (int, error) {
	return r.publish(scopeUser, userID, ev)
}

// Evict removes userID's connections from a team channel. Local connections
// are evicted before returning; other instances follow when the envelope
// arrives. The echo of our own envelope is ignored.
func (r *Relay) Evict(teamID, userID int64) int {
	n := r.local.Evict(teamID, userID)
	if _, err := r.send(envelope{Scope: scopeEvict, Target: teamID, User: userID}); err != nil {
		r.log.Error("Failed to publish eviction", "error", err, "team_id", teamID, "user_id", userID)
	}
	return n
}

// EvictTeam removes every connection from a team channel on all instances.
func (r *Relay) EvictTeam(teamID int64) int {
	n := r.local.EvictTeam(teamID)
	if _, err := r.send(envelope{Scope: scopeEvictTeam, Target: teamID}); err != nil {
		r.log.Error("Failed to publish team eviction", "error", err, "team_id", teamID)
	}
	return n
}

func (r *Relay) publish(scope string, target int64, ev models.Event) (int, error) {
	frame, err := ev.Encode()
	if err != nil {
		return 0, err
	}
	n, err := r.send(envelope{Scope: scope, Target: target, Frame: frame})
	if err != nil {
		return 0, fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return n, nil
}

func (r *Relay) send(env envelope) (int, error) {
	env.Origin = r.id
	body, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("encode relay envelope: %w", err)
	}
	n, err := r.client.Publish(context.Background(), r.channel, body).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Start subscribes to the channel and delivers messages until ctx ends or
// Close is called. It returns once the subscription is confirmed.
func (r *Relay) Start(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.sub = sub
	r.doneCh = make(chan struct{})
	done := r.doneCh
	r.mu.Unlock()

	go func() {
		defer close(done)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.deliver(msg.Payload)
			}
		}
	}()
	r.log.Info("relay subscribed", "channel", r.channel)
	return nil
}

func (r *Relay) deliver(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("dropping malformed relay envelope", "error", err)
		return
	}
	switch env.Scope {
	case scopeTeam:
		r.local.DeliverToTeam(env.Target, env.Frame)
	case scopeUser:
		r.local.DeliverToUser(env.Target, env.Frame)
	case scopeEvict:
		if env.Origin != r.id {
			r.local.Evict(env.Target, env.User)
		}
	case scopeEvictTeam:
		if env.Origin != r.id {
			r.local.EvictTeam(env.Target)
		}
	default:
		r.log.Warn("dropping relay envelope with unknown scope", "scope", env.Scope)
	}
}

// Close stops the subscription. The Redis client is owned by the caller.
func (r *Relay) Close() error {
	r.mu.Lock()
	sub, done := r.sub, r.doneCh
	r.sub = nil
	r.mu.Unlock()
	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}
