package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skapxd/image-optimization-service/internal/entities"
	"github.com/skapxd/image-optimization-service/internal/transformer"
)

var (
	ErrQueueFull  = errors.New("task queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Kind selects which transformation a task performs.
type Kind int

const (
	KindOptimize Kind = iota
	KindBlurPlaceholder
)

// Task is one unit of CPU-bound image work.
type Task struct {
	Kind         Kind
	Bytes        []byte
	Options      entities.OptimizationOptions
	Blur         transformer.BlurOptions
	OriginalName string
}

// Result is the outcome of a task. A failing task yields Success=false with
// empty Bytes; the pool itself never errors on execution, only on submission.
type Result struct {
	Bytes         []byte
	OriginalName  string
	OriginalSize  int
	OptimizedSize int
	Success       bool
	Err           error
}

// Runner executes the transformation for one task.
type Runner func(Task) ([]byte, error)

// Config bounds the pool.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	IdleTimeout time.Duration
	QueueSize   int
}

func (c Config) withDefaults() Config {
	if c.MinWorkers <= 0 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5000 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10000
	}
	return c
}

type submission struct {
	task Task
	out  chan Result
}

// Pool executes tasks on a bounded set of workers pulling FIFO from a shared
// queue. Workers above MinWorkers retire after IdleTimeout without work.
type Pool struct {
	run Runner
	cfg Config

	mu     sync.Mutex
	closed bool
	queue  chan submission
	wg     sync.WaitGroup

	workers int64
	active  int64
}

func New(cfg Config, run Runner) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		run:   run,
		cfg:   cfg,
		queue: make(chan submission, cfg.QueueSize),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawn(true)
	}
	return p
}

// Submit queues one task. It fails fast with ErrQueueFull when the queue is
// at capacity and ErrPoolClosed after shutdown.
func (p *Pool) Submit(task Task) (*Future, error) {
	out := make(chan Result, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.queue <- submission{task: task, out: out}:
	default:
		p.mu.Unlock()
		return nil, ErrQueueFull
	}
	if len(p.queue) > 0 && atomic.LoadInt64(&p.workers) < int64(p.cfg.MaxWorkers) {
		p.spawn(false)
	}
	p.mu.Unlock()

	return &Future{out: out}, nil
}

// SubmitMany queues all tasks and returns a future that resolves positionally
// once every task has settled. A task rejected at submission settles as a
// failed result without affecting its siblings.
func (p *Pool) SubmitMany(tasks []Task) (*ManyFuture, error) {
	if len(tasks) == 0 {
		return nil, errors.New("no tasks submitted")
	}
	futures := make([]*Future, len(tasks))
	for i, task := range tasks {
		f, err := p.Submit(task)
		if err != nil {
			f = settledFuture(Result{
				OriginalName: task.OriginalName,
				OriginalSize: len(task.Bytes),
				Err:          err,
			})
		}
		futures[i] = f
	}
	return &ManyFuture{futures: futures}, nil
}

// Stats reports the live shape of the pool.
type Stats struct {
	QueueDepth    int `json:"queueDepth"`
	ActiveWorkers int `json:"activeWorkers"`
	Workers       int `json:"workers"`
	MinWorkers    int `json:"minWorkers"`
	MaxWorkers    int `json:"maxWorkers"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		QueueDepth:    len(p.queue),
		ActiveWorkers: int(atomic.LoadInt64(&p.active)),
		Workers:       int(atomic.LoadInt64(&p.workers)),
		MinWorkers:    p.cfg.MinWorkers,
		MaxWorkers:    p.cfg.MaxWorkers,
	}
}

// QueueDepth is a cheap accessor for backpressure checks at accept time.
func (p *Pool) QueueDepth() int { return len(p.queue) }

// QueueCapacity returns the configured ceiling.
func (p *Pool) QueueCapacity() int { return p.cfg.QueueSize }

// Shutdown rejects new submissions and waits for queued and in-flight tasks
// to drain, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) spawn(core bool) {
	atomic.AddInt64(&p.workers, 1)
	p.wg.Add(1)
	go p.worker(core)
}

func (p *Pool) worker(core bool) {
	defer p.wg.Done()
	defer atomic.AddInt64(&p.workers, -1)

	for {
		if core {
			sub, ok := <-p.queue
			if !ok {
				return
			}
			p.execute(sub)
			continue
		}
		select {
		case sub, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(sub)
		case <-time.After(p.cfg.IdleTimeout):
			// surplus worker retires after idling
			return
		}
	}
}

func (p *Pool) execute(sub submission) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	res := Result{
		OriginalName: sub.task.OriginalName,
		OriginalSize: len(sub.task.Bytes),
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		out, err := p.run(sub.task)
		if err != nil {
			res.Err = err
			return
		}
		res.Bytes = out
		res.OptimizedSize = len(out)
		res.Success = true
	}()
	if res.Err != nil {
		log.Printf("[worker-pool] task %q failed: %v", sub.task.OriginalName, res.Err)
	}
	sub.out <- res
}

// Future resolves to the result of a single task.
type Future struct {
	out chan Result
}

func settledFuture(res Result) *Future {
	out := make(chan Result, 1)
	out <- res
	return &Future{out: out}
}

// Wait blocks until the task settles or ctx expires.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-f.out:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// ManyFuture resolves once all constituent tasks settle, preserving
// submission order.
type ManyFuture struct {
	futures []*Future
}

// Wait blocks until every task settles or ctx expires.
func (m *ManyFuture) Wait(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(m.futures))
	for i, f := range m.futures {
		res, err := f.Wait(ctx)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}
