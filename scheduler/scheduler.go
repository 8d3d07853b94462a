package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/registry"
	"github.com/codai-ecosystem/codai/stream"
)

// Config defines retry, timeout and buffering behaviour.
type Config struct {
	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	MaxRetries int

	// BaseBackoff is the delay before the first retry; each further retry
	// doubles it up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// DefaultTimeout applies to tasks submitted without a timeout.
	DefaultTimeout time.Duration

	// EventBufferSize is the subscriber buffer used when Subscribe is called
	// with a non-positive size.
	EventBufferSize int
}

// DefaultConfig provides the default scheduling policy.
var DefaultConfig = Config{
	MaxRetries:      3,
	BaseBackoff:     500 * time.Millisecond,
	MaxBackoff:      30 * time.Second,
	DefaultTimeout:  5 * time.Minute,
	EventBufferSize: 256,
}

// Backoff returns the delay before retry n (1-based).
func (c Config) Backoff(n int) time.Duration {
	d := c.BaseBackoff
	for i := 1; i < n && d < c.MaxBackoff; i++ {
		d *= 2
	}
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// Recorder writes task provenance into the knowledge graph. Each method
// returns the id of the node it created. A non-empty id returned together
// with an error means the node exists but was not persisted.
type Recorder interface {
	// RecordIntent creates the intent node for a task submitted without one.
	RecordIntent(ctx context.Context, task core.Task) (string, error)
	// RecordResult creates the node holding a successful task's outputs.
	RecordResult(ctx context.Context, task core.Task) (string, error)
	// RecordFailure creates the node documenting a terminal failure.
	RecordFailure(ctx context.Context, task core.Task) (string, error)
}

// AcceptRecorder is implemented by recorders that also note admitted tasks,
// for example as a conversation message. RecordAccepted runs after the task
// is registered and before it can be dispatched.
type AcceptRecorder interface {
	RecordAccepted(ctx context.Context, task core.Task) error
}

// IntentDiscarder is implemented by recorders able to remove the intent node
// written by RecordIntent when the task is then refused.
type IntentDiscarder interface {
	DiscardIntent(ctx context.Context, task core.Task) error
}

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("scheduler is shut down")

// Options configures a Scheduler.
type Options struct {
	Config   Config
	Recorder Recorder
	Logger   logging.Logger
	Clock    func() time.Time
}

type taskState struct {
	task            core.Task
	done            chan struct{}
	cancel          context.CancelFunc
	cancelRequested bool
	inBackoff       bool
	// settling is set once the outcome is decided and the result or failure
	// is being recorded.
	settling bool
}

type agentQueue struct {
	agentID string
	pending []string
	running string
	wake    chan struct{}
}

// Scheduler owns all task state transitions.
type Scheduler struct {
	// gate is held shared by Submit and exclusively by Shutdown.
	gate sync.RWMutex

	mu     sync.Mutex
	tasks  map[string]*taskState
	order  []string
	queues map[string]*agentQueue
	closed bool
	seq    uint64

	events *stream.Broadcaster[core.TaskEvent]

	reg      *registry.Registry
	recorder Recorder
	config   Config
	logger   logging.Logger
	clock    func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New creates a scheduler dispatching to agents of reg.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
		Clock:  core.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, stop := context.WithCancel(context.Background())

	s := &Scheduler{
		tasks:    make(map[string]*taskState),
		queues:   make(map[string]*agentQueue),
		events:   stream.NewBroadcaster[core.TaskEvent](),
		reg:      reg,
		recorder: opts.Recorder,
		config:   opts.Config,
		logger:   logging.Scoped(opts.Logger, "scheduler"),
		clock:    opts.Clock,
		ctx:      ctx,
		stop:     stop,
	}

	// Agents becoming available again pick up their pending work.
	reg.OnChange(s.wake)

	return s
}

// Handle refers to a submitted task.
type Handle struct {
	ID string
	s  *Scheduler
}

// Task returns the current state of the task.
func (h *Handle) Task() core.Task {
	t, _ := h.s.Get(h.ID)
	return t
}

// Wait blocks until the task is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) (core.Task, error) { return h.s.Wait(ctx, h.ID) }

// Cancel requests cancellation of the task.
func (h *Handle) Cancel() (bool, error) { return h.s.Cancel(h.ID) }

// Submit validates the target agent and enqueues the task as pending. An
// unavailable agent fails fast with core.ErrAgentUnavailable and nothing is
// created.
func (s *Scheduler) Submit(ctx context.Context, task core.Task) (*Handle, error) {
	// Shutdown waits for submissions in flight, so no intent is recorded for
	// a task the scheduler then refuses for being closed.
	s.gate.RLock()
	defer s.gate.RUnlock()

	if err := s.reg.CheckAvailable(task.AgentID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	_, dup := s.tasks[task.ID]
	s.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}

	if task.ID != "" && dup {
		return nil, fmt.Errorf("task %s already submitted", task.ID)
	}

	task = s.prepare(task)

	recorded := false
	if task.IntentID == "" && s.recorder != nil {
		id, err := s.recorder.RecordIntent(ctx, task)
		if id == "" && err != nil {
			return nil, fmt.Errorf("record intent: %w", err)
		}
		if err != nil {
			s.logger.Warn("Intent node not persisted", "task_id", task.ID, "node_id", id, "error", err)
		}
		task.IntentID = id
		recorded = true
	}

	s.mu.Lock()
	if err := s.admitLocked(task); err != nil {
		s.mu.Unlock()
		if recorded {
			s.discardIntent(ctx, task)
		}
		return nil, err
	}

	st := &taskState{task: task, done: make(chan struct{})}
	s.tasks[task.ID] = st
	s.order = append(s.order, task.ID)
	s.publishLocked(st, core.TaskEventSubmitted, nil)
	s.mu.Unlock()

	// The task is registered but not yet queued: accept hooks run before any
	// dispatch loop can pick it up.
	if ar, ok := s.recorder.(AcceptRecorder); ok {
		if err := ar.RecordAccepted(ctx, task); err != nil {
			s.logger.Warn("Accepted task not recorded", "task_id", task.ID, "error", err)
		}
	}

	s.mu.Lock()
	q := s.queueLocked(task.AgentID)
	if st.task.Status == core.TaskPending {
		q.pending = append(q.pending, task.ID)
	}
	s.mu.Unlock()

	s.logger.Info("Task submitted", "task_id", task.ID, "agent_id", task.AgentID, "priority", task.Priority)
	s.signal(q)

	return &Handle{ID: task.ID, s: s}, nil
}

// admitLocked is the final admission check, atomic with registering the
// task. Caller holds mu.
func (s *Scheduler) admitLocked(task core.Task) error {
	if s.closed {
		return ErrClosed
	}
	if _, dup := s.tasks[task.ID]; dup {
		return fmt.Errorf("task %s already submitted", task.ID)
	}
	return s.reg.CheckAvailable(task.AgentID)
}

// discardIntent removes an intent recorded for a task that was not admitted.
func (s *Scheduler) discardIntent(ctx context.Context, task core.Task) {
	d, ok := s.recorder.(IntentDiscarder)
	if !ok {
		s.logger.Warn("Intent of rejected task left in place", "task_id", task.ID, "node_id", task.IntentID)
		return
	}
	if err := d.DiscardIntent(ctx, task); err != nil {
		s.logger.Error("Intent of rejected task not removed", "task_id", task.ID, "node_id", task.IntentID, "error", err)
	}
}

func (s *Scheduler) prepare(t core.Task) core.Task {
	t = t.Clone()
	if t.ID == "" {
		t.ID = core.NewID()
	}
	if t.Priority == "" {
		t.Priority = core.PriorityMedium
	}
	if t.Timeout <= 0 {
		t.Timeout = s.config.DefaultTimeout
	}
	if t.Title == "" {
		t.Title = truncate(t.UserInput(), 80)
	}
	t.Status = core.TaskPending
	t.Progress = 0
	t.Attempts = 0
	t.Outputs = nil
	t.Error = ""
	t.ErrorKind = ""
	t.ResultNodeID = ""
	t.CreatedAt = s.clock()
	t.StartedAt = nil
	t.CompletedAt = nil
	return t
}

// Cancel cancels a task. A pending task is removed from its queue and
// cancelled. An in-flight task is cancelled only if its agent supports
// cooperative cancellation or it is waiting between retries; otherwise the
// request is a no-op and false is returned. Terminal tasks return false.
func (s *Scheduler) Cancel(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}

	switch st.task.Status {
	case core.TaskPending:
		if q, ok := s.queues[st.task.AgentID]; ok {
			q.pending = slices.DeleteFunc(q.pending, func(v string) bool { return v == id })
		}
		if err := s.finishLocked(st, core.TaskCancelled, nil); err != nil {
			return false, err
		}
		return true, nil

	case core.TaskInProgress:
		if st.settling {
			s.logger.Info("Cancellation too late, task is finishing", "task_id", id, "agent_id", st.task.AgentID)
			return false, nil
		}
		if st.cancelRequested {
			return true, nil
		}

		agent, _ := s.reg.Agent(st.task.AgentID)
		if !st.inBackoff && !core.SupportsCancellation(agent) {
			s.logger.Info("Cancellation ignored by non-cooperative agent", "task_id", id, "agent_id", st.task.AgentID)
			return false, nil
		}

		st.cancelRequested = true
		if st.cancel != nil {
			st.cancel()
		}
		return true, nil

	default:
		return false, nil
	}
}

// Get returns a copy of the task.
func (s *Scheduler) Get(id string) (core.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[id]
	if !ok {
		return core.Task{}, false
	}
	return st.task.Clone(), true
}

// List returns every task in submission order.
func (s *Scheduler) List() []core.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].task.Clone())
	}
	return out
}

// QueueLength reports the number of pending tasks for an agent.
func (s *Scheduler) QueueLength(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[agentID]; ok {
		return len(q.pending)
	}
	return 0
}

// Wait blocks until the task reaches a terminal state or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, id string) (core.Task, error) {
	s.mu.Lock()
	st, ok := s.tasks[id]
	s.mu.Unlock()

	if !ok {
		return core.Task{}, fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}

	select {
	case <-st.done:
		t, _ := s.Get(id)
		return t, nil
	case <-ctx.Done():
		t, _ := s.Get(id)
		return t, ctx.Err()
	}
}

// Subscribe returns a task event subscription. buffer <= 0 selects the
// configured buffer size.
func (s *Scheduler) Subscribe(buffer int) *stream.Subscription[core.TaskEvent] {
	if buffer <= 0 {
		buffer = s.config.EventBufferSize
	}
	return s.events.Subscribe(buffer)
}

// DroppedEvents reports the number of task events discarded for slow subscribers.
func (s *Scheduler) DroppedEvents() uint64 { return s.events.Dropped() }

// Shutdown cancels pending tasks, abandons in-flight ones and waits for the
// dispatch loops to exit or ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.gate.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.gate.Unlock()
		return nil
	}
	s.closed = true

	for _, id := range s.order {
		st := s.tasks[id]
		switch st.task.Status {
		case core.TaskPending:
			_ = s.finishLocked(st, core.TaskCancelled, nil)
		case core.TaskInProgress:
			st.cancelRequested = true
		}
	}
	for _, q := range s.queues {
		q.pending = nil
	}
	s.mu.Unlock()
	s.gate.Unlock()

	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.events.Close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wake nudges the dispatch loop of agentID.
func (s *Scheduler) wake(agentID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	q := s.queueLocked(agentID)
	s.mu.Unlock()

	s.signal(q)
}

func (s *Scheduler) signal(q *agentQueue) {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// queueLocked returns the queue of agentID, starting its dispatch loop on
// first use. Caller holds mu.
func (s *Scheduler) queueLocked(agentID string) *agentQueue {
	q, ok := s.queues[agentID]
	if ok {
		return q
	}

	q = &agentQueue{agentID: agentID, wake: make(chan struct{}, 1)}
	s.queues[agentID] = q

	s.wg.Add(1)
	go s.loop(q)

	return q
}

// publishLocked emits a lifecycle event. Caller holds mu, which keeps the
// events of one task in issuance order.
func (s *Scheduler) publishLocked(st *taskState, typ core.TaskEventType, err error) {
	s.seq++
	ev := core.TaskEvent{
		Seq:       s.seq,
		Type:      typ,
		TaskID:    st.task.ID,
		AgentID:   st.task.AgentID,
		Status:    st.task.Status,
		Progress:  st.task.Progress,
		Attempt:   st.task.Attempts,
		Timestamp: s.clock(),
	}
	if err != nil {
		ev.Error = err.Error()
		ev.ErrorKind = core.ErrorKind(err)
	}
	s.events.Publish(ev)
}

// transitionLocked moves st to status to. Caller holds mu.
func (s *Scheduler) transitionLocked(st *taskState, to core.TaskStatus) error {
	from := st.task.Status
	if !from.CanTransitionTo(to) {
		err := &core.TransitionError{TaskID: st.task.ID, From: from, To: to}
		logging.LogTaskTransition(s.logger, st.task.ID, st.task.AgentID, string(from), string(to), err)
		return err
	}
	st.task.Status = to
	logging.LogTaskTransition(s.logger, st.task.ID, st.task.AgentID, string(from), string(to), nil)
	return nil
}

// finishLocked moves st to a terminal status, publishes the matching event
// and releases waiters. Caller holds mu.
func (s *Scheduler) finishLocked(st *taskState, to core.TaskStatus, cause error) error {
	if err := s.transitionLocked(st, to); err != nil {
		return err
	}

	now := s.clock()
	st.task.CompletedAt = &now
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}

	var typ core.TaskEventType
	switch to {
	case core.TaskCompleted:
		st.task.Progress = 100
		typ = core.TaskEventCompleted
	case core.TaskFailed:
		st.task.Error = cause.Error()
		st.task.ErrorKind = core.ErrorKind(cause)
		typ = core.TaskEventFailed
	default:
		if cause != nil {
			st.task.Error = cause.Error()
			st.task.ErrorKind = core.KindCancelled
		}
		typ = core.TaskEventCancelled
	}

	s.publishLocked(st, typ, cause)
	close(st.done)

	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
