package realtime

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "room."
	modSuffix     = ".mod"
)

// RoomChannel is the redis pub/sub channel carrying events for one session room.
func RoomChannel(sessionID string) string {
	return channelPrefix + sessionID
}

// ModChannel carries moderator-only events for one session room.
func ModChannel(sessionID string) string {
	return channelPrefix + sessionID + modSuffix
}

func roomFromChannel(channel string) (room string, mod bool) {
	room = strings.TrimPrefix(channel, channelPrefix)
	if strings.HasSuffix(room, modSuffix) {
		return strings.TrimSuffix(room, modSuffix), true
	}
	return room, false
}

// Publish sends a typed event envelope to every subscriber of a session room.
// Fire-and-forget: failures are logged, never returned.
func Publish(ctx context.Context, rdb *redis.Client, sessionID, eventType string, payload any) {
	publish(ctx, rdb, RoomChannel(sessionID), eventType, payload)
}

// PublishMod sends an event to the privileged sub-room only.
func PublishMod(ctx context.Context, rdb *redis.Client, sessionID, eventType string, payload any) {
	publish(ctx, rdb, ModChannel(sessionID), eventType, payload)
}

func publish(ctx context.Context, rdb *redis.Client, channel, eventType string, payload any) {
	if rdb == nil {
		return
	}
	body := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("songvote: marshal event: %v", err)
		return
	}
	if err := rdb.Publish(ctx, channel, string(data)).Err(); err != nil {
		log.Printf("songvote: publish event: %v", err)
	}
}
