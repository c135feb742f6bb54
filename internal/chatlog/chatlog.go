// Package chatlog is the append-only record of chat turns per session.
package chatlog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"juris-rag/internal/model"
)

const (
	DefaultHistoryLimit = 100
	cacheWindow         = 200
)

var ErrEnqueue = errors.New("message enqueue failed")

// Store is the durable message table.
type Store interface {
	Create(ctx context.Context, message *model.Message) error
	// ListBySessionID returns the latest limit messages in ascending time order.
	ListBySessionID(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
}

// Publisher hands a message to the asynchronous persist path.
type Publisher interface {
	Publish(ctx context.Context, message model.Message) error
}

type HistoryCache interface {
	Get(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	Set(ctx context.Context, sessionID string, messages []model.Message) error
	Invalidate(ctx context.Context, sessionID string) error
}

// Log writes through the publisher when one is configured and straight to
// the store otherwise. Reads go through the cache when one is configured.
type Log struct {
	store     Store
	publisher Publisher
	cache     HistoryCache
	now       func() time.Time
}

func New(store Store, publisher Publisher, cache HistoryCache) *Log {
	return &Log{
		store:     store,
		publisher: publisher,
		cache:     cache,
		now:       time.Now,
	}
}

func (l *Log) Append(ctx context.Context, msg model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = l.now()
	}
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, msg.SessionID); err != nil {
			log.Printf("chatlog: invalidate history cache for session %s failed: %v", msg.SessionID, err)
		}
	}
	if l.publisher == nil {
		return l.store.Create(ctx, &msg)
	}
	if err := l.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrEnqueue, err)
	}
	return nil
}

// History returns the latest limit messages of the session, oldest first.
func (l *Log) History(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	cached := l.cache != nil && limit <= cacheWindow
	if cached {
		messages, hit, err := l.cache.Get(ctx, sessionID)
		if err != nil {
			log.Printf("chatlog: read history cache for session %s failed: %v", sessionID, err)
		} else if hit {
			return tail(messages, limit), nil
		}
	}

	fetch := limit
	if cached {
		fetch = cacheWindow
	}
	messages, err := l.store.ListBySessionID(ctx, sessionID, fetch)
	if err != nil {
		return nil, err
	}
	if cached {
		if err := l.cache.Set(ctx, sessionID, messages); err != nil {
			log.Printf("chatlog: write history cache for session %s failed: %v", sessionID, err)
		}
	}
	return tail(messages, limit), nil
}

func tail(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
