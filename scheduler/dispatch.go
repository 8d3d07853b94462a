package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/logging"
)

type attemptResult struct {
	outputs map[string]any
	err     error
}

// loop is the dispatch goroutine of one agent queue.
func (s *Scheduler) loop(q *agentQueue) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-q.wake:
		}

		for {
			st, runCtx, ok := s.next(q)
			if !ok {
				break
			}
			s.run(q, st, runCtx)
		}
	}
}

// next pops the head of q and marks it in_progress, provided the agent is
// idle, enabled and healthy.
func (s *Scheduler) next(q *agentQueue) (*taskState, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || q.running != "" || len(q.pending) == 0 {
		return nil, nil, false
	}

	if err := s.reg.CheckAvailable(q.agentID); err != nil {
		s.logger.Debug("Dispatch deferred", "agent_id", q.agentID, "reason", err)
		return nil, nil, false
	}

	id := q.pending[0]
	q.pending = q.pending[1:]
	st := s.tasks[id]

	if err := s.transitionLocked(st, core.TaskInProgress); err != nil {
		return nil, nil, false
	}

	now := s.clock()
	st.task.StartedAt = &now
	q.running = id

	runCtx, cancel := context.WithCancel(s.ctx)
	st.cancel = cancel

	s.publishLocked(st, core.TaskEventStarted, nil)

	return st, runCtx, true
}

// run drives one in-progress task to a terminal state.
func (s *Scheduler) run(q *agentQueue, st *taskState, runCtx context.Context) {
	defer s.release(q, st)

	agent, ok := s.reg.Agent(st.task.AgentID)
	if !ok {
		s.fail(st, &core.AgentUnavailableError{AgentID: st.task.AgentID, Reason: "not registered"})
		return
	}

	s.mu.Lock()
	timeout := st.task.Timeout
	s.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	timeoutErr := fmt.Errorf("%w: exceeded %s", core.ErrTaskTimeout, timeout)

	for attempt := 1; ; attempt++ {
		req := s.beginAttempt(st, attempt)
		started := time.Now()

		results := make(chan attemptResult, 1)
		go execute(runCtx, agent, req, results)

		var res attemptResult
		select {
		case res = <-results:
		case <-deadline.C:
			s.fail(st, timeoutErr)
			return
		case <-s.ctx.Done():
			s.cancelled(st, s.ctx.Err())
			return
		}

		s.logAttempt(st, attempt, time.Since(started), res.err)

		retry := res.err != nil && core.IsTransient(res.err) && attempt <= s.config.MaxRetries

		if !retry {
			if !s.settle(st) {
				s.cancelled(st, context.Canceled)
				return
			}
			if res.err == nil {
				s.complete(st, res.outputs)
			} else {
				s.fail(st, res.err)
			}
			return
		}

		if s.cancelRequested(st) {
			s.cancelled(st, context.Canceled)
			return
		}

		if !s.backoff(st, attempt, res.err, deadline.C, runCtx) {
			if s.cancelRequested(st) || s.ctx.Err() != nil {
				s.cancelled(st, context.Canceled)
			} else {
				s.fail(st, timeoutErr)
			}
			return
		}
	}
}

// execute calls the agent, converting panics into permanent errors.
func execute(ctx context.Context, agent core.Agent, req *core.TaskRequest, results chan<- attemptResult) {
	defer func() {
		if r := recover(); r != nil {
			results <- attemptResult{err: core.Permanent(fmt.Errorf("agent %s panicked: %v", agent.ID(), r))}
		}
	}()

	out, err := agent.Execute(ctx, req)
	results <- attemptResult{outputs: out, err: err}
}

func (s *Scheduler) beginAttempt(st *taskState, attempt int) *core.TaskRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.task.Attempts = attempt
	st.inBackoff = false

	return core.NewTaskRequest(st.task, attempt, func(p int) { s.progress(st, attempt, p) })
}

// backoff waits before the next attempt. It returns false when the wait was
// interrupted by the deadline or by cancellation.
func (s *Scheduler) backoff(st *taskState, attempt int, cause error, deadline <-chan time.Time, runCtx context.Context) bool {
	delay := s.config.Backoff(attempt)

	s.mu.Lock()
	st.inBackoff = true
	s.publishLocked(st, core.TaskEventRetrying, cause)
	s.mu.Unlock()

	s.logger.Warn("Retrying task", "task_id", st.task.ID, "agent_id", st.task.AgentID, "attempt", attempt, "delay", delay, "error", cause)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-deadline:
		return false
	case <-runCtx.Done():
		return false
	}
}

// progress records a progress report from the given attempt. Reports from
// abandoned attempts are ignored.
func (s *Scheduler) progress(st *taskState, attempt, p int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.task.Status != core.TaskInProgress || st.task.Attempts != attempt || st.task.Progress == p {
		return
	}

	st.task.Progress = p
	s.publishLocked(st, core.TaskEventProgress, nil)
}

// settle accepts the attempt result as final unless a cancellation is
// already pending. Once settled, Cancel reports false.
func (s *Scheduler) settle(st *taskState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.cancelRequested {
		return false
	}
	st.settling = true
	return true
}

func (s *Scheduler) cancelRequested(st *taskState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return st.cancelRequested
}

func (s *Scheduler) complete(st *taskState, outputs map[string]any) {
	s.mu.Lock()
	st.task.Outputs = outputs
	if st.task.Outputs == nil {
		st.task.Outputs = map[string]any{}
	}
	snapshot := st.task.Clone()
	s.mu.Unlock()

	nodeID := s.record(snapshot, s.recordResult)

	s.mu.Lock()
	st.task.ResultNodeID = nodeID
	_ = s.finishLocked(st, core.TaskCompleted, nil)
	s.mu.Unlock()

	s.reg.MarkActivity(st.task.AgentID, true)
	s.logger.Info("Task completed", "task_id", snapshot.ID, "agent_id", snapshot.AgentID, "result_node", nodeID)
}

func (s *Scheduler) fail(st *taskState, cause error) {
	s.mu.Lock()
	st.settling = true
	st.task.Error = cause.Error()
	st.task.ErrorKind = core.ErrorKind(cause)
	snapshot := st.task.Clone()
	s.mu.Unlock()

	nodeID := s.record(snapshot, s.recordFailure)

	s.mu.Lock()
	st.task.ResultNodeID = nodeID
	_ = s.finishLocked(st, core.TaskFailed, cause)
	s.mu.Unlock()

	s.reg.MarkActivity(st.task.AgentID, false)
	s.logger.Warn("Task failed", "task_id", snapshot.ID, "agent_id", snapshot.AgentID, "kind", snapshot.ErrorKind, "error", cause)
}

func (s *Scheduler) cancelled(st *taskState, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.finishLocked(st, core.TaskCancelled, cause)
	s.logger.Info("Task cancelled", "task_id", st.task.ID, "agent_id", st.task.AgentID)
}

// release frees the agent slot so the loop can pick the next task.
func (s *Scheduler) release(q *agentQueue, st *taskState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.running == st.task.ID {
		q.running = ""
	}
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

func (s *Scheduler) recordResult(t core.Task) (string, error) {
	return s.recorder.RecordResult(context.Background(), t)
}

func (s *Scheduler) recordFailure(t core.Task) (string, error) {
	return s.recorder.RecordFailure(context.Background(), t)
}

// record runs a recorder call, logging errors. Recording never changes the
// task outcome.
func (s *Scheduler) record(t core.Task, fn func(core.Task) (string, error)) string {
	if s.recorder == nil {
		return ""
	}

	id, err := fn(t)
	if err != nil {
		s.logger.Error("Provenance not recorded", "task_id", t.ID, "node_id", id, "error", err)
	}

	return id
}

func (s *Scheduler) logAttempt(st *taskState, attempt int, dur time.Duration, err error) {
	logging.LogAgentCall(s.logger, st.task.AgentID, st.task.ID, attempt, dur, err)
}
