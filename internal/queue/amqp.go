package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/notifyhub/waitlist/internal/domain"
)

// maxPriority is declared on the queue as x-max-priority.
const maxPriority = 9

const (
	defaultRedialDelay = 500 * time.Millisecond
	maxRedialDelay     = 30 * time.Second
)

// AMQPQueue keeps dispatch tasks in a durable RabbitMQ priority queue so a
// backlog survives process restarts. Tasks are acked when dequeued.
//
// A supervisor goroutine watches the connection and both channels. When any
// of them closes it redials with exponential backoff and re-registers the
// consumer; Enqueue and Dequeue wait for the new session meanwhile.
type AMQPQueue struct {
	name        string
	log         *zap.Logger
	dial        func() (*session, error)
	redialDelay time.Duration

	mu    sync.Mutex
	sess  *session      // nil while reconnecting or closed
	ready chan struct{} // closed once sess is set

	pubMu sync.Mutex // serialises publishes on the shared channel

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// session is one live connection with its publish and consume channels.
type session struct {
	conn       *amqp.Connection
	publishCh  *amqp.Channel
	consumeCh  *amqp.Channel
	deliveries <-chan amqp.Delivery

	connClosed    chan *amqp.Error
	publishClosed chan *amqp.Error
	consumeClosed chan *amqp.Error
}

func (s *session) close() error {
	_ = s.consumeCh.Close()
	_ = s.publishCh.Close()
	return s.conn.Close()
}

// lost blocks until the connection or one of its channels shuts down, or
// stop is closed. It reports the broker error, if any, and whether the
// session was lost.
func (s *session) lost(stop <-chan struct{}) (*amqp.Error, bool) {
	select {
	case err := <-s.connClosed:
		return err, true
	case err := <-s.publishClosed:
		return err, true
	case err := <-s.consumeClosed:
		return err, true
	case <-stop:
		return nil, false
	}
}

// DialAMQP connects to url, declares the durable queue and starts a
// consumer with the given prefetch. The first dial must succeed; later
// connection losses are redialled in the background.
func DialAMQP(url, name string, prefetch int, log *zap.Logger) (*AMQPQueue, error) {
	q := newAMQPQueue(name, log, func() (*session, error) {
		return openSession(url, name, prefetch)
	})

	s, err := q.dial()
	if err != nil {
		return nil, err
	}
	q.install(s)

	q.wg.Add(1)
	go q.supervise(s)
	return q, nil
}

func newAMQPQueue(name string, log *zap.Logger, dial func() (*session, error)) *AMQPQueue {
	return &AMQPQueue{
		name:        name,
		log:         log,
		dial:        dial,
		redialDelay: defaultRedialDelay,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func openSession(url, name string, prefetch int) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	s, err := setupSession(conn, name, prefetch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func setupSession(conn *amqp.Connection, name string, prefetch int) (*session, error) {
	publishCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	_, err = publishCh.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-max-priority": int32(maxPriority)},
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}

	consumeCh, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := consumeCh.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	return &session{
		conn:          conn,
		publishCh:     publishCh,
		consumeCh:     consumeCh,
		deliveries:    deliveries,
		connClosed:    conn.NotifyClose(make(chan *amqp.Error, 1)),
		publishClosed: publishCh.NotifyClose(make(chan *amqp.Error, 1)),
		consumeClosed: consumeCh.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

func (q *AMQPQueue) install(s *session) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sess = s
	close(q.ready)
}

// invalidate marks the queue as reconnecting.
func (q *AMQPQueue) invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sess != nil {
		q.sess = nil
		q.ready = make(chan struct{})
	}
}

func (q *AMQPQueue) supervise(s *session) {
	defer q.wg.Done()

	for {
		amqpErr, lost := s.lost(q.done)
		q.invalidate()
		if err := s.close(); err != nil && lost {
			q.log.Debug("closing lost amqp session", zap.Error(err))
		}
		if !lost {
			return
		}

		fields := []zap.Field{zap.String("queue", q.name)}
		if amqpErr != nil {
			fields = append(fields, zap.Int("code", amqpErr.Code), zap.String("reason", amqpErr.Reason))
		}
		q.log.Warn("amqp connection lost, redialling", fields...)

		next, ok := q.redial()
		if !ok {
			return
		}
		q.install(next)
		s = next
	}
}

// redial dials until it succeeds or the queue is closed, doubling the delay
// between attempts up to maxRedialDelay.
func (q *AMQPQueue) redial() (*session, bool) {
	delay := q.redialDelay
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-q.done:
			timer.Stop()
			return nil, false
		}

		s, err := q.dial()
		if err == nil {
			q.log.Info("amqp connection restored", zap.String("queue", q.name), zap.Int("attempt", attempt))
			return s, true
		}
		q.log.Warn("amqp redial failed", zap.Int("attempt", attempt), zap.Duration("next_in", delay*2), zap.Error(err))

		delay *= 2
		if delay > maxRedialDelay {
			delay = maxRedialDelay
		}
	}
}

// current returns the live session, waiting while the supervisor redials.
func (q *AMQPQueue) current(ctx context.Context) (*session, error) {
	for {
		select {
		case <-q.done:
			return nil, domain.ErrQueueClosed
		default:
		}

		q.mu.Lock()
		s, ready := q.sess, q.ready
		q.mu.Unlock()
		if s != nil {
			return s, nil
		}

		select {
		case <-ready:
		case <-q.done:
			return nil, domain.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pause gives the supervisor time to notice a dead session. It reports
// false when ctx is done or the queue is closed.
func (q *AMQPQueue) pause(ctx context.Context) bool {
	timer := time.NewTimer(q.redialDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Enqueue publishes t. While the broker is unreachable it waits for the
// reconnect; a ctx that ends first yields domain.ErrQueueFull and a closed
// queue yields domain.ErrQueueClosed.
func (q *AMQPQueue) Enqueue(ctx context.Context, t Task) error {
	pub, err := encodeTask(t)
	if err != nil {
		return err
	}

	for {
		s, err := q.current(ctx)
		switch {
		case errors.Is(err, domain.ErrQueueClosed):
			return err
		case err != nil:
			return fmt.Errorf("%w: %w", domain.ErrQueueFull, err)
		}

		q.pubMu.Lock()
		err = s.publishCh.Publish("", q.name, false, false, pub)
		q.pubMu.Unlock()
		if err == nil {
			return nil
		}
		if !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("publish task: %w", err)
		}

		q.log.Debug("publish hit a closed channel, waiting for reconnect", zap.String("task_id", t.ID))
		if !q.pause(ctx) {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", domain.ErrQueueFull, ctx.Err())
			}
			return domain.ErrQueueClosed
		}
	}
}

// Dequeue returns the next decodable task. Payloads that cannot be decoded
// are rejected without requeue. It returns false once ctx is done or the
// queue is closed; a lost connection only makes it wait.
func (q *AMQPQueue) Dequeue(ctx context.Context) (Task, bool) {
	for {
		s, err := q.current(ctx)
		if err != nil {
			return Task{}, false
		}

		select {
		case d, ok := <-s.deliveries:
			if !ok {
				if !q.pause(ctx) {
					return Task{}, false
				}
				continue
			}
			t, err := decodeTask(d.Body)
			if err != nil {
				q.log.Error("dropping undecodable task", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := d.Ack(false); err != nil {
				q.log.Warn("ack failed", zap.String("task_id", t.ID), zap.Error(err))
			}
			return t, true
		case <-ctx.Done():
			return Task{}, false
		case <-q.done:
			return Task{}, false
		}
	}
}

// Close stops the supervisor and shuts down the live session. Blocked
// Enqueue and Dequeue calls return.
func (q *AMQPQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	q.wg.Wait()
	return nil
}

func encodeTask(t Task) (amqp.Publishing, error) {
	if !t.Priority.IsValid() {
		return amqp.Publishing{}, fmt.Errorf("unknown priority %q", t.Priority)
	}
	body, err := json.Marshal(t)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal task: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     amqpPriority(t.Priority),
		MessageId:    t.ID,
		Timestamp:    t.EnqueuedAt,
		Body:         body,
	}, nil
}

func decodeTask(body []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}
	if !t.Kind.IsValid() || t.MemberID == "" {
		return Task{}, fmt.Errorf("invalid task %q", t.ID)
	}
	return t, nil
}

func amqpPriority(p domain.Priority) uint8 {
	switch p {
	case domain.PriorityHigh:
		return maxPriority
	case domain.PriorityNormal:
		return 5
	default:
		return 1
	}
}

var _ Queue = (*AMQPQueue)(nil)
