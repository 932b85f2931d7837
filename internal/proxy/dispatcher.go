package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"checkout-proxy/internal/logger"
	"checkout-proxy/internal/metrics"
	"checkout-proxy/internal/signature"

	"go.uber.org/zap"
)

type DispatcherOptions struct {
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	Workers    int
	QueueSize  int
}

type delivery struct {
	url       string
	body      []byte
	requestID string
}

// Dispatcher delivers signed callbacks in the background so the request
// that produced them never waits on the peer. Deliveries are retried on
// transport errors, 429 and 5xx with a linear backoff, then dropped.
type Dispatcher struct {
	opts       DispatcherOptions
	httpClient *http.Client

	mu     sync.RWMutex
	closed bool
	queue  chan delivery
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	delivered *metrics.Counter
	failed    *metrics.Counter
	dropped   *metrics.Counter
}

func NewDispatcher(opts DispatcherOptions, reg *metrics.Registry) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		queue:     make(chan delivery, opts.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		delivered: reg.Counter("callback_delivered"),
		failed:    reg.Counter("callback_failed"),
		dropped:   reg.Counter("callback_dropped"),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue schedules body for signed delivery to url. It never blocks and
// reports false when the delivery was dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, url string, body []byte) bool {
	log := logger.FromCtx(ctx).With(zap.String("layer", "dispatcher"), zap.String("url", url))

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Inc()
		log.Warn("callback dropped: dispatcher closed")
		return false
	}

	select {
	case d.queue <- delivery{url: url, body: body, requestID: logger.RequestIDFrom(ctx)}:
		return true
	default:
		d.dropped.Inc()
		log.Error("callback dropped: queue full", zap.Int("queue_size", d.opts.QueueSize))
		return false
	}
}

// Close stops intake and waits for queued deliveries. When ctx expires the
// remaining deliveries are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	ctx := logger.WithRequestID(d.ctx, job.requestID)
	log := logger.FromCtx(ctx).With(zap.String("layer", "dispatcher"), zap.String("url", job.url))
	timer := metrics.StartTimer()

	var lastErr error
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if !d.sleep(ctx, time.Duration(attempt)*d.opts.Backoff) {
				lastErr = ctx.Err()
				break
			}
			log.Info("retrying callback", zap.Int("attempt", attempt+1))
		}

		retry, err := d.send(ctx, job)
		if err == nil {
			d.delivered.Inc()
			log.Info("callback delivered",
				zap.Int("attempts", attempt+1),
				zap.Duration("took", timer.Duration()),
			)
			return
		}

		lastErr = err
		log.Warn("callback attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if !retry {
			break
		}
	}

	d.failed.Inc()
	log.Error("callback abandoned", zap.Error(lastErr))
}

func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) bool {
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// send reports whether a failure is worth retrying.
func (d *Dispatcher) send(ctx context.Context, job delivery) (bool, error) {
	if d.opts.Secret == "" {
		return false, signature.ErrMissingSecret
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.url, bytes.NewReader(job.body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, signature.Sign(job.body, d.opts.Secret))
	if job.requestID != "" {
		req.Header.Set(logger.RequestIDHeader, job.requestID)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, signature.MaxBodyBytes))
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("callback returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("callback rejected with status %d", resp.StatusCode)
	}
}
