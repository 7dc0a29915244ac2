package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkwell/account-service/internal/api/metrics"
	"github.com/inkwell/account-service/internal/core/ports"
)

const (
	defaultWorkers     = 4
	channelBuffer      = 256
	defaultSendTimeout = 30 * time.Second
)

var (
	// ErrQueueFull is returned when the recipient's worker channel is full.
	ErrQueueFull = errors.New("mail queue full")
	// ErrStopped is returned once Shutdown has been called.
	ErrStopped = errors.New("mail dispatcher stopped")
)

// SentGuard claims a message's dedup key before delivery. A false claim means
// a message with the same key was already handed to the transport.
type SentGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// Dispatcher delivers mail asynchronously through a fixed set of workers.
// Messages are sharded by recipient so mails to one address keep their order.
type Dispatcher struct {
	workers     []chan ports.MailMessage
	sender      ports.MailSender
	guard       SentGuard
	sendTimeout time.Duration
	log         zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	runCtx context.Context
	abort  context.CancelFunc
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used. guard may be nil.
func NewDispatcher(numWorkers int, sender ports.MailSender, guard SentGuard, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:     make([]chan ports.MailMessage, numWorkers),
		sender:      sender,
		guard:       guard,
		sendTimeout: defaultSendTimeout,
		log:         log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.MailMessage, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers inherit ctx's values but not
// its cancellation: they run until Shutdown has closed and drained their
// channels, so queued mail survives the caller's context being cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.runCtx, d.abort = context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Unlock()

	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(d.runCtx, i, ch)
	}
}

// Enqueue hands msg to the worker responsible for its recipient. It never
// blocks: a full channel drops the message.
func (d *Dispatcher) Enqueue(msg ports.MailMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		metrics.MailEnqueuedTotal.WithLabelValues(msg.Kind, "dropped").Inc()
		return ErrStopped
	}

	idx := d.shardIndex(msg.To)
	select {
	case d.workers[idx] <- msg:
		metrics.MailEnqueuedTotal.WithLabelValues(msg.Kind, "queued").Inc()
		metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	default:
		metrics.MailEnqueuedTotal.WithLabelValues(msg.Kind, "dropped").Inc()
		d.log.Warn().
			Str("message_id", msg.ID).
			Str("kind", msg.Kind).
			Int("worker_id", idx).
			Msg("mail queue full, message dropped")
		return ErrQueueFull
	}
}

// Shutdown stops accepting messages and waits for queued ones to be
// delivered. If ctx expires first, in-flight sends are aborted, whatever is
// still queued is dropped and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	abort := d.abort
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if abort != nil {
			abort()
		}
		return ctx.Err()
	}
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.MailMessage) {
	defer d.wg.Done()
	depth := metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(id))
	for msg := range ch {
		depth.Set(float64(len(ch)))
		if ctx.Err() != nil {
			metrics.MailDeliveriesTotal.WithLabelValues(msg.Kind, "aborted").Inc()
			d.log.Warn().
				Str("message_id", msg.ID).
				Str("kind", msg.Kind).
				Int("worker_id", id).
				Msg("dispatcher aborted, queued mail dropped")
			continue
		}
		d.deliver(ctx, id, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, workerID int, msg ports.MailMessage) {
	log := d.log.With().
		Str("message_id", msg.ID).
		Str("kind", msg.Kind).
		Int("worker_id", workerID).
		Logger()

	if d.guard != nil {
		first, err := d.guard.Claim(ctx, dedupKey(msg))
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("sent guard unavailable, delivering anyway")
		case !first:
			metrics.MailDeliveriesTotal.WithLabelValues(msg.Kind, "duplicate").Inc()
			log.Debug().Msg("mail already delivered, skipping")
			return
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	if err := d.sender.Send(sendCtx, msg); err != nil {
		metrics.MailDeliveriesTotal.WithLabelValues(msg.Kind, "failed").Inc()
		metrics.MailDeliveryDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		log.Error().Err(err).Msg("mail delivery failed")
		return
	}
	metrics.MailDeliveriesTotal.WithLabelValues(msg.Kind, "sent").Inc()
	metrics.MailDeliveryDuration.WithLabelValues("sent").Observe(time.Since(start).Seconds())
	log.Debug().Msg("mail delivered")
}

// dedupKey is the content-derived key when the producer set one, otherwise
// the per-message id.
func dedupKey(msg ports.MailMessage) string {
	if msg.Key != "" {
		return msg.Key
	}
	return msg.ID
}
