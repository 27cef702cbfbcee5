// Package runner drains several independent search streams concurrently.
// Streams share nothing but the request counter and, optionally, a limiter.
package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/ratelimit"
	"searchtweets/pkg/storage"
	"searchtweets/pkg/stream"
)

// Job is one stream to drain.
type Job struct {
	// ID is assigned on Submit when empty.
	ID     string
	Config stream.Config
	// Sink receives every message; nil discards them.
	Sink    storage.RecordWriter
	Options []stream.Option
}

// Result reports how a job ended.
type Result struct {
	Job      Job
	Stats    stream.Stats
	Emitted  int
	Error    error
	Duration time.Duration
}

// Option configures a Pool
type Option func(*Pool)

// WithLogger sets the pool logger
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithLimiter paces every request of every job through l.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(p *Pool) { p.limiter = l }
}

// WithContext makes the pool stop when parent is cancelled.
func WithContext(parent context.Context) Option {
	return func(p *Pool) { p.parent = parent }
}

// Pool manages concurrent stream workers
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	parent      context.Context
	ctx         context.Context
	cancel      context.CancelFunc
	requests    atomic.Int64
	limiter     ratelimit.Limiter
	logger      logger.Logger
	stopOnce    sync.Once
}

// NewPool creates a pool of numWorkers workers (at least one).
func NewPool(numWorkers int, opts ...Option) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	p := &Pool{numWorkers: numWorkers, parent: context.Background()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrGlobal(p.logger).WithField("component", "runner")
	p.ctx, p.cancel = context.WithCancel(p.parent)
	p.jobQueue = make(chan Job, numWorkers*2)
	p.resultQueue = make(chan Result, numWorkers)
	return p
}

// Start launches the workers.
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops accepting jobs, waits for running ones and closes Results.
// Results must be drained concurrently or Stop can block.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Debug("Stopping worker pool")
		close(p.jobQueue)
		p.wg.Wait()
		close(p.resultQueue)
		p.cancel()
		p.logger.InfoWithFields("Worker pool stopped", map[string]interface{}{
			"requests_issued": p.requests.Load(),
		})
	})
}

// Cancel aborts running streams. A Stop is still needed to release workers.
func (p *Pool) Cancel() {
	p.cancel()
}

// Submit queues job and returns its id. It must not race with Stop.
func (p *Pool) Submit(job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	select {
	case <-p.ctx.Done():
		return "", fmt.Errorf("worker pool is shutting down")
	default:
	}
	select {
	case p.jobQueue <- job:
		p.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"job_id":   job.ID,
			"endpoint": job.Config.Endpoint,
		})
		return job.ID, nil
	case <-p.ctx.Done():
		return "", fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the result channel
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

// Requests is the number of requests issued across all jobs so far.
func (p *Pool) Requests() int64 {
	return p.requests.Load()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		result := p.run(job, id)
		// Results are always delivered; Stop closes the channel only after
		// every worker returns.
		p.resultQueue <- result
	}
}

// run drains one stream. A cancelled pool context ends the stream with the
// context error.
func (p *Pool) run(job Job, workerID int) Result {
	start := time.Now()
	log := p.logger.WithFields(map[string]interface{}{
		"worker_id": workerID,
		"job_id":    job.ID,
	})

	opts := []stream.Option{stream.WithLogger(log), stream.WithRequestCounter(&p.requests)}
	if p.limiter != nil {
		opts = append(opts, stream.WithLimiter(p.limiter))
	}
	s := stream.New(job.Config, append(opts, job.Options...)...)

	result := Result{Job: job}
	for msg, err := range s.All(p.ctx) {
		if err != nil {
			result.Error = err
			break
		}
		if job.Sink != nil {
			if err := job.Sink.Write(msg); err != nil {
				result.Error = fmt.Errorf("write failed: %w", err)
				break
			}
		}
		result.Emitted++
	}
	result.Stats = s.Stats()
	result.Duration = time.Since(start)

	fields := map[string]interface{}{
		"emitted":  result.Emitted,
		"requests": result.Stats.RequestsIssued,
		"duration": result.Duration,
	}
	if result.Error != nil {
		log.WithError(result.Error).ErrorWithFields("Job failed", fields)
	} else {
		log.DebugWithFields("Job completed", fields)
	}
	return result
}
