// Package workerpool provides a bounded pool for processing dictated-note
// messages. Bounds how many notes are extracted and reconciled at once so a
// burst of dictations cannot saturate the oracle endpoint or the database.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one dictated-note message to process. Payload is the raw message
// value; it rides through to the Result so a failed note can be
// dead-lettered with its original bytes.
type Task struct {
	ID      string
	Payload []byte
	Context context.Context
}

// Result is the outcome of processing one note.
type Result struct {
	TaskID  string
	Success bool
	Error   error
	Payload []byte
}

// WorkerFunc processes a single note task.
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// MaxRetries is the maximum number of retries for failed tasks
	MaxRetries int
	// RetryDelay is the base delay between retries, scaled linearly per attempt
	RetryDelay time.Duration
	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults for note processing. Extraction
// is oracle-bound, so a handful of workers saturates the useful concurrency.
func DefaultConfig() Config {
	return Config{
		Workers:                 8,
		QueueSize:               512,
		MaxRetries:              3,
		RetryDelay:              100 * time.Millisecond,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs note tasks through a fixed set of workers, retrying transient
// failures and emitting every terminal outcome on the result channel.
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	taskChan   chan *Task
	resultChan chan *Result
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	notesSubmitted int64
	notesCompleted int64
	notesFailed    int64
	notesRetried   int64
	queueDepth     int64
}

// New creates a new worker pool
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		taskChan:   make(chan *Task, cfg.QueueSize),
		resultChan: make(chan *Result, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("note worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a note task. Returns an error when the pool is shutting
// down or the queue is full; the caller decides whether to block the
// consumer or drop.
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("pool is shutting down")
	default:
	}

	select {
	case p.taskChan <- task:
		atomic.AddInt64(&p.notesSubmitted, 1)
		atomic.AddInt64(&p.queueDepth, 1)
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Results returns the result channel. Failed results carry the original
// payload for dead-lettering.
func (p *Pool) Results() <-chan *Result {
	return p.resultChan
}

// Stop gracefully shuts down the pool
func (p *Pool) Stop() error {
	p.logger.Info("stopping note worker pool")

	p.cancel()
	close(p.taskChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("note worker pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("note worker pool shutdown timed out")
	}

	close(p.resultChan)
	return nil
}

// worker drains the task queue until it is closed.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		atomic.AddInt64(&p.queueDepth, -1)
		p.emit(id, p.runWithRetries(task))
	}
}

// runWithRetries executes one task, retrying on failure with a linearly
// growing delay. Context cancellation ends the attempt loop immediately.
func (p *Pool) runWithRetries(task *Task) *Result {
	ctx := task.Context
	if ctx == nil {
		ctx = p.ctx
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return &Result{TaskID: task.ID, Error: ctx.Err(), Payload: task.Payload}
		default:
		}

		result := p.workerFunc(ctx, task)
		if result.Success {
			return result
		}
		lastErr = result.Error

		if attempt == p.config.MaxRetries {
			break
		}
		atomic.AddInt64(&p.notesRetried, 1)
		p.logger.Debug("retrying note",
			zap.String("note_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return &Result{TaskID: task.ID, Error: ctx.Err(), Payload: task.Payload}
		case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
		}
	}

	return &Result{
		TaskID:  task.ID,
		Error:   fmt.Errorf("note failed after %d retries: %w", p.config.MaxRetries, lastErr),
		Payload: task.Payload,
	}
}

// emit records the outcome and hands it to the result channel without
// blocking the worker.
func (p *Pool) emit(workerID int, result *Result) {
	if result.Success {
		atomic.AddInt64(&p.notesCompleted, 1)
	} else {
		atomic.AddInt64(&p.notesFailed, 1)
		p.logger.Error("note processing failed",
			zap.String("note_id", result.TaskID),
			zap.Int("worker_id", workerID),
			zap.Error(result.Error))
	}

	select {
	case p.resultChan <- result:
	default:
		p.logger.Warn("result channel full, dropping result",
			zap.String("note_id", result.TaskID))
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	NotesSubmitted int64
	NotesCompleted int64
	NotesFailed    int64
	NotesRetried   int64
	QueueDepth     int64
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		NotesSubmitted: atomic.LoadInt64(&p.notesSubmitted),
		NotesCompleted: atomic.LoadInt64(&p.notesCompleted),
		NotesFailed:    atomic.LoadInt64(&p.notesFailed),
		NotesRetried:   atomic.LoadInt64(&p.notesRetried),
		QueueDepth:     atomic.LoadInt64(&p.queueDepth),
	}
}
