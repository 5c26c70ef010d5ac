package surge

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/jtolds/gls"
)

// workerContext tags goroutines running inside an Executor's pool so
// Dispatch can tell whether the caller is already one of its workers.
// Go has no native goroutine-local storage; gls is the pack's own answer
// to that gap (pulled in transitively by niceyeti-tabular's test stack)
// and is the only non-hacky option available that doesn't require
// threading a handle through every Task signature.
var workerContext = gls.NewContextManager()

const workerContextKey = "surge.executor"

// Task is a unit of work posted to an Executor or a strand.
type Task func()

// Executor is a process-wide concurrent task scheduler over a fixed pool
// of worker goroutines. It is the Go realization of the framework's async
// I/O runtime: accept completions, timer expirations, and user-posted work
// all flow through here.
//
// Executor is safe for concurrent use. A failing task never terminates a
// worker: panics are recovered, reported through the configured ErrorSink,
// and the worker resumes draining the queue.
type Executor struct {
	tasks   chan Task
	workers int
	logger  *slog.Logger
	sink    ErrorSink

	wg      sync.WaitGroup // worker goroutines
	work    sync.WaitGroup // outstanding work guard
	stopped chan struct{}
	once    sync.Once

	id string // this executor's gls tag value, distinguishes nested executors
}

// NewExecutor creates an Executor with the given worker count. A
// workerCount < 1 is treated as 1.
func NewExecutor(workerCount int, sink ErrorSink, logger *slog.Logger) *Executor {
	if workerCount < 1 {
		workerCount = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NopErrorSink{}
	}
	e := &Executor{
		tasks:   make(chan Task, 1024),
		workers: workerCount,
		logger:  logger,
		sink:    sink,
		stopped: make(chan struct{}),
		id:      nextIdentifier().String(),
	}
	for i := 0; i < workerCount; i++ {
		e.wg.Add(1)
		go e.run()
	}
	return e
}

// WorkGuard prevents the Executor's workers from being considered idle
// while outstanding work exists. The Listener holds one for its lifetime,
// and each live session holds one, so WaitForWork only returns once the
// accept loop has ended and every session has torn down. Stop does not
// consult work guards.
type WorkGuard struct {
	e        *Executor
	released bool
	mu       sync.Mutex
}

// HoldWork returns a new WorkGuard, marking one more piece of outstanding
// work.
func (e *Executor) HoldWork() *WorkGuard {
	e.work.Add(1)
	return &WorkGuard{e: e}
}

// Release drops the held work guard. Idempotent: calling it twice is a
// no-op the second time.
func (g *WorkGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.e.work.Done()
}

// run is the worker loop: execute tasks until the task channel is closed.
func (e *Executor) run() {
	defer e.wg.Done()
	workerContext.SetValues(gls.Values{workerContextKey: e.id}, func() {
		for task := range e.tasks {
			e.runTask(task)
		}
	})
}

func (e *Executor) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("recovered panic in posted task", "panic", r, "stack", string(debug.Stack()))
			e.sink.OnException(NewError(KindInternal, "panic in posted task").withCause(panicAsError(r)))
		}
	}()
	task()
}

// Post enqueues task for later execution on some worker goroutine. It
// returns immediately.
func (e *Executor) Post(task Task) {
	select {
	case e.tasks <- task:
	case <-e.stopped:
	}
}

// Dispatch runs task inline if the caller is already executing on one of
// this Executor's worker goroutines; otherwise it behaves like Post. This
// mirrors Asio's dispatch-vs-post distinction and is what lets a strand's
// drain loop avoid an extra scheduling round-trip when it is already
// running on a worker.
func (e *Executor) Dispatch(task Task) {
	if id, ok := workerContext.GetValue(workerContextKey); ok && id == e.id {
		e.runTask(task)
		return
	}
	e.Post(task)
}

// PollOne runs at most one ready task on the calling goroutine and reports
// whether one ran. It is used by shutdown loops (Registry.Block) that
// must drain remaining work without blocking forever on a channel that
// may never receive again.
func (e *Executor) PollOne() bool {
	select {
	case task, ok := <-e.tasks:
		if !ok {
			return false
		}
		e.runTask(task)
		return true
	default:
		return false
	}
}

// Stop requests all workers to drain and exit once the task queue empties.
// Idempotent.
func (e *Executor) Stop() {
	e.once.Do(func() {
		close(e.stopped)
		close(e.tasks)
	})
}

// Wait blocks until every worker goroutine has exited. Call after Stop.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// WaitForWork blocks until no WorkGuard remains outstanding. Distinct from
// Wait: this observes session/listener liveness, not worker-goroutine exit.
func (e *Executor) WaitForWork() {
	e.work.Wait()
}

func panicAsError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errString(r)
}

type errString struct{ v interface{} }

func (e errString) Error() string { return toString(e.v) }

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "panic: non-error value"
}
