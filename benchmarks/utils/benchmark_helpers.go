package utils

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// BenchmarkRunner collects wall time, allocations and goroutine counts around a run.
type BenchmarkRunner struct {
	startTime      time.Time
	endTime        time.Time
	memStatsStart  runtime.MemStats
	memStatsEnd    runtime.MemStats
	goroutineStart int
	goroutineEnd   int

	operationCount int64
	errorCount     int64

	mu sync.RWMutex
}

// NewBenchmarkRunner creates a new benchmark runner
func NewBenchmarkRunner() *BenchmarkRunner {
	return &BenchmarkRunner{}
}

// Start begins the measurement.
func (br *BenchmarkRunner) Start() {
	br.mu.Lock()
	defer br.mu.Unlock()

	br.startTime = time.Now()
	br.goroutineStart = runtime.NumGoroutine()
	runtime.GC()
	runtime.ReadMemStats(&br.memStatsStart)
}

// Stop ends the measurement.
func (br *BenchmarkRunner) Stop() {
	br.mu.Lock()
	defer br.mu.Unlock()

	br.endTime = time.Now()
	br.goroutineEnd = runtime.NumGoroutine()
	runtime.GC()
	runtime.ReadMemStats(&br.memStatsEnd)
}

// IncrementOperations increments the operation counter
func (br *BenchmarkRunner) IncrementOperations(count int64) {
	atomic.AddInt64(&br.operationCount, count)
}

// IncrementErrors increments the error counter
func (br *BenchmarkRunner) IncrementErrors(count int64) {
	atomic.AddInt64(&br.errorCount, count)
}

// GetResults returns the benchmark results
func (br *BenchmarkRunner) GetResults() *BenchmarkResults {
	br.mu.RLock()
	defer br.mu.RUnlock()

	duration := br.endTime.Sub(br.startTime)
	operations := atomic.LoadInt64(&br.operationCount)

	var opsPerSecond float64
	if duration.Seconds() > 0 {
		opsPerSecond = float64(operations) / duration.Seconds()
	}

	return &BenchmarkResults{
		Duration:            duration,
		Operations:          operations,
		Errors:              atomic.LoadInt64(&br.errorCount),
		OperationsPerSecond: opsPerSecond,
		MemoryAllocated:     br.memStatsEnd.TotalAlloc - br.memStatsStart.TotalAlloc,
		GoroutineLeak:       br.goroutineEnd - br.goroutineStart,
	}
}

// BenchmarkResults holds the results of a benchmark run
type BenchmarkResults struct {
	Duration            time.Duration `json:"duration_ns"`
	Operations          int64         `json:"operations"`
	Errors              int64         `json:"errors"`
	OperationsPerSecond float64       `json:"operations_per_second"`
	MemoryAllocated     uint64        `json:"memory_allocated_bytes"`
	GoroutineLeak       int           `json:"goroutine_leak"`
}

// String returns a human-readable representation of the results
func (r *BenchmarkResults) String() string {
	return fmt.Sprintf("Duration: %v, Ops: %d, Errors: %d, Ops/sec: %.2f, Memory: %d bytes, Goroutine leak: %d",
		r.Duration, r.Operations, r.Errors, r.OperationsPerSecond, r.MemoryAllocated, r.GoroutineLeak)
}

// ThreadShape describes a synthetic comment thread.
type ThreadShape struct {
	Roots   int // top-level comments
	Fanout  int // replies per comment
	Depth   int // deepest reply level, 0 means roots only
	BodyLen int
}

// PredefinedThreadShapes are the thread sizes the benchmarks sweep over.
var PredefinedThreadShapes = map[string]ThreadShape{
	"small":  {Roots: 10, Fanout: 2, Depth: 2, BodyLen: 80},
	"medium": {Roots: 50, Fanout: 3, Depth: 3, BodyLen: 200},
	"large":  {Roots: 200, Fanout: 3, Depth: 3, BodyLen: 400},
}

// ThreadGenerator builds comment trees with unique ids.
type ThreadGenerator struct {
	counter int64
	base    time.Time
}

// NewThreadGenerator creates a new thread generator
func NewThreadGenerator() *ThreadGenerator {
	return &ThreadGenerator{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Comment returns a single comment with a fresh id.
func (g *ThreadGenerator) Comment(bodyLen int) *domain.CommentNode {
	n := atomic.AddInt64(&g.counter, 1)
	body := make([]byte, bodyLen)
	for i := range body {
		body[i] = 'a' + byte((int(n)+i)%26)
	}
	return &domain.CommentNode{
		ID:        fmt.Sprintf("c%d", n),
		AuthorID:  fmt.Sprintf("user_%d", n%50),
		Body:      string(body),
		CreatedAt: g.base.Add(time.Duration(n) * time.Second),
		LikeCount: int(n % 7),
	}
}

// Thread returns the roots of a tree with the given shape.
func (g *ThreadGenerator) Thread(shape ThreadShape) []*domain.CommentNode {
	roots := make([]*domain.CommentNode, shape.Roots)
	for i := range roots {
		roots[i] = g.subtree(shape, 0)
	}
	return roots
}

func (g *ThreadGenerator) subtree(shape ThreadShape, depth int) *domain.CommentNode {
	n := g.Comment(shape.BodyLen)
	if depth < shape.Depth {
		n.Replies = make([]*domain.CommentNode, shape.Fanout)
		for i := range n.Replies {
			n.Replies[i] = g.subtree(shape, depth+1)
		}
	}
	return n
}

// InvalidationEventGenerator creates invalidation events in a fixed rotation.
type InvalidationEventGenerator struct {
	eventCounter int64
}

// NewInvalidationEventGenerator creates a new event generator
func NewInvalidationEventGenerator() *InvalidationEventGenerator {
	return &InvalidationEventGenerator{}
}

// Next returns a user.updated or thread.changed event, alternating between them.
func (g *InvalidationEventGenerator) Next(users, threads int) domain.InvalidationEvent {
	n := atomic.AddInt64(&g.eventCounter, 1)
	ev := domain.InvalidationEvent{
		EventID:   fmt.Sprintf("evt_%d", n),
		EventTime: time.Now(),
	}
	if n%2 == 0 {
		ev.Kind = domain.InvalidateUser
		ev.UserID = fmt.Sprintf("user_%d", int(n)%users)
		return ev
	}
	ev.Kind = domain.InvalidateThread
	ev.Thread = &domain.ThreadRef{Kind: domain.ThreadDiscussion, ID: fmt.Sprintf("d%d", int(n)%threads)}
	return ev
}
