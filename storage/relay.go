package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// relayMessage wraps a board-scoped frame published between instances.
type relayMessage struct {
	BoardID string          `json:"boardId"`
	Payload json.RawMessage `json:"payload"`
}

// PublishFrame publishes an already-encoded channel frame so every service
// instance, this one included, delivers it to its local board members.
func PublishFrame(ctx context.Context, rc *redis.Client, channel, boardID string, payload []byte) error {
	data, err := json.Marshal(relayMessage{BoardID: boardID, Payload: payload})
	if err != nil {
		return err
	}
	return rc.Publish(ctx, channel, data).Err()
}

// SubscribeFrames listens for relayed frames and hands them to broadcast.
// The subscription is re-established after a dropped pub/sub connection
// until ctx is cancelled.
func SubscribeFrames(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channel string,
	broadcast func(boardID string, data []byte),
) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var rm relayMessage
				if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
					logger.Errorf("unable to parse relayed frame: %v", err)
					continue
				}
				broadcast(rm.BoardID, rm.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
