package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// ErrAsyncDisabled is returned by Enqueue when no queue is configured.
var ErrAsyncDisabled = errors.New("dispatch: asynchronous turns are not configured")

// TurnHandler runs one turn against persisted session state.
type TurnHandler interface {
	Turn(ctx context.Context, sessionID, utterance string) (triage.Reply, error)
}

// ResultListener is told the outcome of every queued turn.
type ResultListener interface {
	TurnCompleted(ctx context.Context, sessionID, jobID string, reply triage.Reply, err error)
}

// DepthGauge receives the in-process queue depth.
type DepthGauge interface {
	SetQueueDepth(n int)
}

// Dispatcher guarantees that at most one turn per session runs at a time.
// Synchronous turns wait on a per-session lock; queued turns are routed to
// a fixed lane per session so they also run in arrival order.
type Dispatcher struct {
	handler   TurnHandler
	queue     queueClient
	locks     *sessionLocks
	logger    *logging.Logger
	workers   int
	waitSecs  int
	retryable func(error) bool
	gauge     DepthGauge
	listener  ResultListener
	backoff   time.Duration
	maxWait   time.Duration
	wg        sync.WaitGroup
}

type Option func(*Dispatcher)

// WithQueue enables Enqueue and the background workers.
func WithQueue(q queueClient) Option {
	return func(d *Dispatcher) { d.queue = q }
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithReceiveWait sets the long-poll wait used when receiving.
func WithReceiveWait(seconds int) Option {
	return func(d *Dispatcher) {
		if seconds >= 0 {
			d.waitSecs = seconds
		}
	}
}

// WithRetryable marks handler errors whose message should stay on the
// queue for redelivery instead of being deleted. On a queue that does not
// redeliver the listener is told of the failure and the message is dropped.
func WithRetryable(fn func(error) bool) Option {
	return func(d *Dispatcher) { d.retryable = fn }
}

// WithReceiveBackoff sets the initial and maximum pause after a failed
// receive. The pause doubles on each consecutive failure.
func WithReceiveBackoff(initial, max time.Duration) Option {
	return func(d *Dispatcher) {
		if initial > 0 {
			d.backoff = initial
		}
		if max >= initial && max > 0 {
			d.maxWait = max
		}
	}
}

func WithDepthGauge(g DepthGauge) Option {
	return func(d *Dispatcher) { d.gauge = g }
}

// WithResultListener registers a listener for queued turn results.
func WithResultListener(l ResultListener) Option {
	return func(d *Dispatcher) { d.listener = l }
}

func New(handler TurnHandler, logger *logging.Logger, opts ...Option) *Dispatcher {
	if handler == nil {
		panic("dispatch: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		handler:   handler,
		locks:     newSessionLocks(),
		logger:    logger,
		workers:   4,
		waitSecs:  20,
		retryable: func(error) bool { return false },
		backoff:   time.Second,
		maxWait:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit runs a turn synchronously once no other turn for the session is
// in flight.
func (d *Dispatcher) Submit(ctx context.Context, sessionID, utterance string) (triage.Reply, error) {
	release, err := d.locks.acquire(ctx, sessionID)
	if err != nil {
		return triage.Reply{}, err
	}
	defer release()
	return d.handler.Turn(ctx, sessionID, utterance)
}

// Enqueue queues a turn and returns its job id.
func (d *Dispatcher) Enqueue(ctx context.Context, sessionID, utterance string) (string, error) {
	if d.queue == nil {
		return "", ErrAsyncDisabled
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("dispatch: session id required")
	}
	job, body, err := encodeJob(turnJob{SessionID: sessionID, Utterance: utterance})
	if err != nil {
		return "", err
	}
	if err := d.queue.Send(ctx, job, body); err != nil {
		return "", err
	}
	d.observeDepth()
	return job.ID, nil
}

// Start launches the receiver and lane workers. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.queue == nil {
		return
	}
	lanes := make([]chan queueMessageJob, d.workers)
	for i := range lanes {
		lanes[i] = make(chan queueMessageJob, 16)
		d.wg.Add(1)
		go d.runLane(ctx, i+1, lanes[i])
	}
	d.wg.Add(1)
	go d.receive(ctx, lanes)
}

// Wait blocks until all workers exit after ctx cancellation.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

type queueMessageJob struct {
	msg queueMessage
	job turnJob
}

func (d *Dispatcher) receive(ctx context.Context, lanes []chan queueMessageJob) {
	defer d.wg.Done()
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
	}()

	backoff := d.backoff
	for ctx.Err() == nil {
		messages, err := d.queue.Receive(ctx, 10, d.waitSecs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("failed to receive turns", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < d.maxWait {
				backoff = min(backoff*2, d.maxWait)
			}
			continue
		}
		backoff = d.backoff
		d.observeDepth()
		for _, msg := range messages {
			var job turnJob
			if err := json.Unmarshal([]byte(msg.Body), &job); err != nil || job.SessionID == "" {
				d.logger.Error("dropping undecodable turn", "error", err, "message_id", msg.ID)
				d.delete(ctx, msg.ReceiptHandle)
				continue
			}
			select {
			case lanes[laneFor(job.SessionID, len(lanes))] <- queueMessageJob{msg: msg, job: job}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher) runLane(ctx context.Context, laneID int, lane <-chan queueMessageJob) {
	defer d.wg.Done()
	d.logger.Debug("dispatch lane started", "lane", laneID)
	for item := range lane {
		if ctx.Err() != nil {
			// Shutting down; queued messages stay for redelivery.
			continue
		}
		reply, err := d.Submit(ctx, item.job.SessionID, item.job.Utterance)
		redeliver := err != nil && d.retryable(err) && d.redelivers()
		if d.listener != nil && !redeliver {
			d.listener.TurnCompleted(ctx, item.job.SessionID, item.job.ID, reply, err)
		}
		switch {
		case err == nil:
			d.delete(ctx, item.msg.ReceiptHandle)
		case redeliver:
			d.logger.Warn("turn failed, leaving for redelivery", "error", err, "session_id", item.job.SessionID, "job_id", item.job.ID)
		default:
			d.logger.Error("turn failed", "error", err, "session_id", item.job.SessionID, "job_id", item.job.ID)
			d.delete(ctx, item.msg.ReceiptHandle)
		}
	}
}

func (d *Dispatcher) delete(ctx context.Context, receiptHandle string) {
	if err := d.queue.Delete(context.WithoutCancel(ctx), receiptHandle); err != nil {
		d.logger.Error("failed to delete turn message", "error", err)
	}
}

// redelivers reports whether a message that is not deleted comes back.
// The in-memory queue hands each message out once.
func (d *Dispatcher) redelivers() bool {
	r, ok := d.queue.(interface{ Redelivers() bool })
	return ok && r.Redelivers()
}

func sleepCtx(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) observeDepth() {
	if d.gauge == nil {
		return
	}
	if q, ok := d.queue.(interface{ Len() int }); ok {
		d.gauge.SetQueueDepth(q.Len())
	}
}

func laneFor(sessionID string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(lanes))
}
