// Package redis serves pre-computed resolution tallies written by the
// reporting pipeline, sparing the durable store a daily scan.
package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// Counter implements domain.ResolutionCounter over a Redis hash per project
// and day. Field is the channel uuid, value a JSON tally.
type Counter struct {
	rdb *redis.Client
}

// New constructs a Counter against the given address.
func New(addr string) *Counter {
	return &Counter{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewWithClient constructs a Counter around an existing client, used by
// tests.
func NewWithClient(rdb *redis.Client) *Counter { return &Counter{rdb: rdb} }

type storedCount struct {
	Resolved      int `json:"resolved"`
	Unresolved    int `json:"unresolved"`
	HasChatsRooms int `json:"has_chats_rooms"`
	Unclassified  int `json:"unclassified"`
}

func countsKey(projectUUID string, day time.Time) string {
	return fmt.Sprintf("resolution_counts:%s:%s", projectUUID, day.UTC().Format("2006-01-02"))
}

// AllChannelCounts loads every channel tally recorded for the day.
func (c *Counter) AllChannelCounts(ctx domain.Context, projectUUID string, day time.Time) ([]domain.ChannelResolutionCount, error) {
	fields, err := c.rdb.HGetAll(ctx, countsKey(projectUUID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("op=counter.all_channels: %w", err)
	}
	out := make([]domain.ChannelResolutionCount, 0, len(fields))
	for channel, raw := range fields {
		var sc storedCount
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			return nil, fmt.Errorf("op=counter.all_channels: channel=%s: %w", channel, err)
		}
		out = append(out, domain.ChannelResolutionCount{
			ChannelUUID:   channel,
			Resolved:      sc.Resolved,
			Unresolved:    sc.Unresolved,
			HasChatsRooms: sc.HasChatsRooms,
			Unclassified:  sc.Unclassified,
		})
	}
	return out, nil
}

// ChannelCounts loads the tally of one channel. A missing field is an
// all-zero tally.
func (c *Counter) ChannelCounts(ctx domain.Context, projectUUID, channelUUID string, day time.Time) (domain.ChannelResolutionCount, error) {
	raw, err := c.rdb.HGet(ctx, countsKey(projectUUID, day), channelUUID).Result()
	if err == redis.Nil {
		return domain.ChannelResolutionCount{ChannelUUID: channelUUID}, nil
	}
	if err != nil {
		return domain.ChannelResolutionCount{}, fmt.Errorf("op=counter.channel: %w", err)
	}
	var sc storedCount
	if err := json.Unmarshal([]byte(raw), &sc); err != nil {
		return domain.ChannelResolutionCount{}, fmt.Errorf("op=counter.channel: %w", err)
	}
	return domain.ChannelResolutionCount{
		ChannelUUID:   channelUUID,
		Resolved:      sc.Resolved,
		Unresolved:    sc.Unresolved,
		HasChatsRooms: sc.HasChatsRooms,
		Unclassified:  sc.Unclassified,
	}, nil
}

// Close releases the Redis connection.
func (c *Counter) Close() error { return c.rdb.Close() }
