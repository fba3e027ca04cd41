package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/medvoice/internal/core/domain"
	"github.com/kirillkom/medvoice/internal/infrastructure/resilience"
)

const (
	defaultStream          = "MEDVOICE_JOBS"
	defaultDurable         = "workers"
	defaultAckWait         = 35 * time.Minute
	defaultRedeliveryDelay = 30 * time.Second
	defaultFetchWait       = 5 * time.Second
)

// Queue carries job messages over a JetStream work-queue stream. Every
// message stays in the stream until a worker acks it, so delivery is at
// least once.
type Queue struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	subject  string
	stream   string
	durable  string
	executor *resilience.Executor
	logger   *slog.Logger

	ackWait         time.Duration
	maxInFlight     int
	redeliveryDelay time.Duration
	fetchWait       time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger

	// Stream and Durable name the work-queue stream and its shared
	// worker consumer.
	Stream          string
	Durable         string
	// AckWait must exceed the longest job run, or a running job is
	// delivered a second time.
	AckWait         time.Duration
	MaxInFlight     int
	RedeliveryDelay time.Duration
	Replicas        int
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := options.Name
	if name == "" {
		name = "medvoice"
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}

	q := &Queue{
		conn:            conn,
		js:              js,
		subject:         subject,
		stream:          withDefault(options.Stream, defaultStream),
		durable:         withDefault(options.Durable, defaultDurable),
		executor:        options.ResilienceExecutor,
		logger:          logger,
		ackWait:         options.AckWait,
		maxInFlight:     options.MaxInFlight,
		redeliveryDelay: options.RedeliveryDelay,
		fetchWait:       defaultFetchWait,
	}
	if q.ackWait <= 0 {
		q.ackWait = defaultAckWait
	}
	if q.maxInFlight <= 0 {
		q.maxInFlight = 1
	}
	if q.redeliveryDelay <= 0 {
		q.redeliveryDelay = defaultRedeliveryDelay
	}
	replicas := options.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	if err := q.ensureStream(replicas); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (q *Queue) ensureStream(replicas int) error {
	_, err := q.js.StreamInfo(q.stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:        q.stream,
			Description: "audio processing jobs",
			Subjects:    []string{q.subject},
			Retention:   nats.WorkQueuePolicy,
			Storage:     nats.FileStorage,
			Replicas:    replicas,
		})
	}
	if err != nil {
		return fmt.Errorf("open job stream %s: %w", q.stream, err)
	}
	return nil
}

func (q *Queue) ensureConsumer() error {
	_, err := q.js.ConsumerInfo(q.stream, q.durable)
	if errors.Is(err, nats.ErrConsumerNotFound) {
		_, err = q.js.AddConsumer(q.stream, &nats.ConsumerConfig{
			Durable:       q.durable,
			Description:   "medvoice workers",
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       q.ackWait,
			DeliverPolicy: nats.DeliverAllPolicy,
			FilterSubject: q.subject,
		})
	}
	if err != nil {
		return fmt.Errorf("open job consumer %s: %w", q.durable, err)
	}
	return nil
}

// Conn exposes the connection so the upload stager can share it.
func (q *Queue) Conn() *nats.Conn {
	return q.conn
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishJob stores the message in the job stream. The job id doubles as
// the message id, so a retried publish is deduplicated by the server.
func (q *Queue) PublishJob(ctx context.Context, msg domain.JobMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode job message: %w", err)
	}

	call := func(callCtx context.Context) error {
		if _, err := q.js.Publish(q.subject, payload, nats.MsgId(msg.JobID), nats.Context(callCtx)); err != nil {
			return fmt.Errorf("jetstream publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// delivery is the acknowledgement side of a fetched message.
type delivery interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// SubscribeJobs pulls jobs from the shared durable consumer, running up to
// MaxInFlight handlers at once. A message is acked when its handler returns
// nil and delivered again after a delay otherwise. It blocks until ctx is
// done, then waits for running handlers.
func (q *Queue) SubscribeJobs(ctx context.Context, handler func(context.Context, domain.JobMessage) error) error {
	if err := q.ensureConsumer(); err != nil {
		return err
	}
	sub, err := q.js.PullSubscribe("", q.durable, nats.Bind(q.stream, q.durable))
	if err != nil {
		return fmt.Errorf("jetstream pull subscribe: %w", err)
	}

	slots := semaphore.NewWeighted(int64(q.maxInFlight))
	var inFlight errgroup.Group
	for {
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		msgs, err := q.fetch(ctx, sub)
		if err != nil || len(msgs) == 0 {
			slots.Release(1)
			if ctx.Err() != nil {
				break
			}
			if err != nil && !isFetchTimeout(err) {
				q.logger.Warn("nats_fetch_failed", "error", err)
				sleepContext(ctx, time.Second)
			}
			continue
		}
		msg := msgs[0]
		inFlight.Go(func() error {
			defer slots.Release(1)
			q.dispatch(ctx, msg.Data, msg, handler)
			return nil
		})
	}

	_ = inFlight.Wait()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("jetstream unsubscribe: %w", err)
	}
	return nil
}

func (q *Queue) fetch(ctx context.Context, sub *nats.Subscription) ([]*nats.Msg, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, q.fetchWait)
	defer cancel()
	return sub.Fetch(1, nats.Context(fetchCtx))
}

func isFetchTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (q *Queue) dispatch(ctx context.Context, data []byte, d delivery, handler func(context.Context, domain.JobMessage) error) {
	msg, err := DecodeJobMessage(data)
	if err != nil {
		q.logger.Error("job_message_invalid", "error", err, "size", len(data))
		q.settle("term", d.Term())
		return
	}
	if ctx.Err() != nil {
		q.settle("nak", d.NakWithDelay(0))
		return
	}
	if err := handler(ctx, msg); err != nil {
		q.logger.Error("job_handler_failed", "job_id", msg.JobID, "error", err)
		q.settle("nak", d.NakWithDelay(q.redeliveryDelay))
		return
	}
	q.settle("ack", d.Ack())
}

func (q *Queue) settle(action string, err error) {
	if err != nil {
		q.logger.Warn("nats_settle_failed", "action", action, "error", err)
	}
}

func DecodeJobMessage(data []byte) (domain.JobMessage, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.JobMessage{}, fmt.Errorf("decode job message: %w", err)
	}
	if msg.JobID == "" {
		return domain.JobMessage{}, errors.New("decode job message: job id is empty")
	}
	return msg, nil
}
