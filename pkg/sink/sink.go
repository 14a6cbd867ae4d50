// Package sink publishes streamed scan batches to redis.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumasullo/lantz/pkg/stream"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// HistoryLength is the number of batches kept per instrument
const HistoryLength = 1000

// Message is the JSON document published for every batch
type Message struct {
	Instrument string       `json:"instrument"`
	Time       time.Time    `json:"time"`
	Batch      stream.Batch `json:"batch"`
}

// Sink publishes batches on a channel and keeps the latest ones in a list
// per instrument
type Sink struct {
	client  *redis.Client
	channel string
}

// New connects to redis and checks the connection
func New(ctx context.Context, addr, password string, db int, channel string) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		PoolSize:    4,
		DialTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	log.Infof("Publishing stream batches to redis %s channel %s", addr, channel)
	return &Sink{client: client, channel: channel}, nil
}

// ListKey is the redis list holding the history of an instrument
func ListKey(instrument string) string {
	return fmt.Sprintf("lantz:%s:batches", instrument)
}

func encode(instrument string, b stream.Batch) ([]byte, error) {
	return json.Marshal(Message{Instrument: instrument, Time: time.Now().UTC(), Batch: b})
}

// Publish sends one batch
func (s *Sink) Publish(ctx context.Context, instrument string, b stream.Batch) error {
	data, err := encode(instrument, b)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.channel, data)
	pipe.LPush(ctx, ListKey(instrument), data)
	pipe.LTrim(ctx, ListKey(instrument), 0, HistoryLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing batch %d of %s: %w", b.Seq, instrument, err)
	}
	return nil
}

// History returns up to n of the latest batches of instrument, newest first
func (s *Sink) History(ctx context.Context, instrument string, n int64) ([]Message, error) {
	raw, err := s.client.LRange(ctx, ListKey(instrument), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			log.Warnf("Skipping malformed batch in %s: %v", ListKey(instrument), err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}
