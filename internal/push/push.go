// Package push relays notice notifications to connected view sessions.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/redis/go-redis/v9"
)

// ActionOpenNoticePanel asks a running session to switch to the notice
// feed and scroll it into view.
const ActionOpenNoticePanel = "openNoticePanel"

// openNoticeParam is the query flag a cold-started client carries when
// no running session could receive the signal directly.
const openNoticeParam = "openNotice"

const channel = "libris:push"

// Signal is one push message delivered to view sessions.
type Signal struct {
	Action string `json:"action"`
}

// ShouldOpenNotices reports whether a page-load query string carries
// the deferred open-notices flag.
func ShouldOpenNotices(query url.Values) bool {
	return query.Get(openNoticeParam) == "true"
}

// OpenNoticeURL appends the deferred flag to a landing URL.
func OpenNoticeURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(openNoticeParam, "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// Broker publishes and subscribes to push signals over Redis.
type Broker struct {
	client *redis.Client
}

func NewBroker(redisURL string) (*Broker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Broker{client: client}, nil
}

// NewBrokerWithClient wraps an existing client.
func NewBrokerWithClient(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Publish fans a signal out to every subscribed session.
func (b *Broker) Publish(ctx context.Context, sig Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal push signal: %w", err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish push signal: %w", err)
	}
	return nil
}

// Subscribe delivers incoming signals until ctx is cancelled. Malformed
// payloads are logged and dropped.
func (b *Broker) Subscribe(ctx context.Context) (<-chan Signal, error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to push channel: %w", err)
	}

	out := make(chan Signal)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var sig Signal
				if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
					log.Printf("push: drop malformed signal: %v", err)
					continue
				}
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}
