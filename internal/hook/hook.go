// Package hook runs best-effort side effects after a primary write has
// committed. Hook failures never reach the caller of the write; they are
// reported to a diagnostics Sink instead.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("hook queue full")

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Sink interface {
	Report(name string, err error)
}

type LogSink struct{}

func (LogSink) Report(name string, err error) {
	log.Printf("hook %s: %v", name, err)
}

type Diagnostic struct {
	Name string
	Err  error
	At   time.Time
}

// MemorySink keeps every report; used by tests and the readiness probe.
type MemorySink struct {
	mu      sync.Mutex
	entries []Diagnostic
}

func (s *MemorySink) Report(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Diagnostic{Name: name, Err: err, At: time.Now()})
}

func (s *MemorySink) Entries() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.entries))
	copy(out, s.entries)
	return out
}

// Runner executes tasks on a fixed worker pool fed by a bounded queue. When
// the queue is full the task is dropped and reported. A Runner built with
// NewSyncRunner executes each task inline inside Submit.
type Runner struct {
	queue   chan Task
	sink    Sink
	timeout time.Duration
	inline  bool

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(workers, queueSize int, sink Sink) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if sink == nil {
		sink = LogSink{}
	}
	r := &Runner{
		queue:   make(chan Task, queueSize),
		sink:    sink,
		timeout: 30 * time.Second,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func NewSyncRunner(sink Sink) *Runner {
	if sink == nil {
		sink = LogSink{}
	}
	return &Runner{sink: sink, timeout: 30 * time.Second, inline: true}
}

func (r *Runner) Submit(task Task) {
	if r.inline {
		r.execute(task)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.sink.Report(task.Name, errors.New("runner closed"))
		return
	}
	select {
	case r.queue <- task:
	default:
		r.sink.Report(task.Name, ErrQueueFull)
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (r *Runner) Close() {
	if r.inline {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for task := range r.queue {
		r.execute(task)
	}
}

func (r *Runner) execute(task Task) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.sink.Report(task.Name, fmt.Errorf("panic: %v", recovered))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := task.Run(ctx); err != nil {
		r.sink.Report(task.Name, err)
	}
}
