package services

import (
	"context"
	"fmt"
	"log"

	"tutorlink_app_echo/internal/models"
)

// Notifier fans out domain events to the teacher and every affected student.
// It owns no state: versions live in Redis, subscriptions are plain pub/sub
// channels (one per user). Delivery is best-effort, at most once; a dropped
// event is recovered by the client's pull-based refresh.
type Notifier struct {
	cache *RedisCache
}

// NewNotifier creates a Notifier. cache may be nil, in which case every
// publish is a no-op and the engines keep working without realtime sync.
func NewNotifier(cache *RedisCache) *Notifier {
	return &Notifier{cache: cache}
}

// UserChannel is the pub/sub channel a client subscribes to for its events
func UserChannel(userID uint) string {
	return fmt.Sprintf("events:user:%d", userID)
}

func entityVersionKey(entityType string, entityID uint) string {
	return fmt.Sprintf("events:version:%s:%d", entityType, entityID)
}

// Notify assigns the event the next version for its entity and publishes it to
// every recipient. Versions are monotonic per entity id only; no ordering is
// promised across entity types. Errors are logged and swallowed.
func (n *Notifier) Notify(ctx context.Context, eventType models.EventType, entityType string, entityID uint, payload interface{}, recipients []uint) {
	if n == nil || n.cache == nil {
		return
	}

	version, err := n.cache.Increment(ctx, entityVersionKey(entityType, entityID))
	if err != nil {
		log.Printf("notifier: version increment failed for %s %d: %v", entityType, entityID, err)
		return
	}

	event := models.Event{
		Type:     eventType,
		EntityID: entityID,
		Payload:  payload,
		Version:  version,
	}

	seen := make(map[uint]bool, len(recipients))
	for _, userID := range recipients {
		if userID == 0 || seen[userID] {
			continue
		}
		seen[userID] = true
		if err := n.cache.Publish(ctx, UserChannel(userID), event); err != nil {
			log.Printf("notifier: publish to user %d failed: %v", userID, err)
		}
	}
}
