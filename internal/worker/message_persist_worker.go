package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"juris-rag/internal/model"
)

type MessageWriter interface {
	Create(ctx context.Context, message *model.Message) error
}

type HistoryEvicter interface {
	Evict(ctx context.Context, sessionID string) error
}

// MessagePersistWorker drains the chat message queue into the database.
// A delivery that fails to persist is requeued once, then dropped.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	repo      MessageWriter
	cache     HistoryEvicter
	queueName string
	prefetch  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, repo MessageWriter, cache HistoryEvicter, queueName string) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		repo:      repo,
		cache:     cache,
		queueName: queueName,
		prefetch:  32,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "juris-message-persist", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Printf("worker: delivery channel closed for queue %s", w.queueName)
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *MessagePersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	var msg model.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Printf("worker: decode message failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.repo.Create(ctx, &msg); err != nil {
		log.Printf("worker: persist message for session %s failed (redelivered=%t): %v", msg.SessionID, d.Redelivered, err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	if w.cache != nil {
		if err := w.cache.Evict(ctx, msg.SessionID); err != nil {
			log.Printf("worker: evict history cache for session %s failed: %v", msg.SessionID, err)
		}
	}
	_ = d.Ack(false)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
