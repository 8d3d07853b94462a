package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors forming the error taxonomy. Typed errors below wrap them so
// callers can match with errors.Is.
var (
	// ErrAgentUnavailable reports an unknown, disabled or unhealthy agent.
	ErrAgentUnavailable = errors.New("agent unavailable")
	// ErrTaskTimeout reports a task that exceeded its execution budget.
	ErrTaskTimeout = errors.New("task timeout")
	// ErrTransientAgent marks an agent failure worth retrying.
	ErrTransientAgent = errors.New("transient agent error")
	// ErrPermanentAgent marks an agent failure that must not be retried.
	ErrPermanentAgent = errors.New("permanent agent error")
	// ErrGraphReference reports an edge referencing a missing node.
	ErrGraphReference = errors.New("graph reference error")
	// ErrStorage reports a persistence read or write failure.
	ErrStorage = errors.New("storage error")
	// ErrInvalidTransition reports a task state transition outside the state machine.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrTaskNotFound reports an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidNodeType reports a node type outside the closed set.
	ErrInvalidNodeType = errors.New("invalid node type")
	// ErrInvalidWeight reports an edge weight outside [0,1].
	ErrInvalidWeight = errors.New("invalid edge weight")
)

// AgentUnavailableError carries the agent id and the reason it cannot take work.
type AgentUnavailableError struct {
	AgentID string
	Reason  string
}

func (e *AgentUnavailableError) Error() string {
	return fmt.Sprintf("agent %s unavailable: %s", e.AgentID, e.Reason)
}

// Is matches ErrAgentUnavailable.
func (e *AgentUnavailableError) Is(target error) bool { return target == ErrAgentUnavailable }

// AgentError wraps an error returned by an agent together with its retry class.
type AgentError struct {
	AgentID   string
	Transient bool
	Err       error
}

func (e *AgentError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	if e.AgentID == "" {
		return fmt.Sprintf("%s agent error: %v", class, e.Err)
	}
	return fmt.Sprintf("%s error from agent %s: %v", class, e.AgentID, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// Is matches ErrTransientAgent or ErrPermanentAgent depending on the class.
func (e *AgentError) Is(target error) bool {
	if e.Transient {
		return target == ErrTransientAgent
	}
	return target == ErrPermanentAgent
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &AgentError{Transient: true, Err: err}
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &AgentError{Transient: false, Err: err}
}

// IsTransient classifies an agent failure. Explicitly classified errors win;
// otherwise upstream deadlines and network timeouts are transient and
// everything else is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Transient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return false
}

// GraphReferenceError reports an edge whose endpoint does not exist or is invalid.
type GraphReferenceError struct {
	From, To string
	Missing  string
	Reason   string
}

func (e *GraphReferenceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("edge %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("edge %s -> %s: node %s does not exist", e.From, e.To, e.Missing)
}

// Is matches ErrGraphReference.
func (e *GraphReferenceError) Is(target error) bool { return target == ErrGraphReference }

// StorageError reports a failed persistence operation. The in-memory graph is
// not rolled back when a write fails.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// TransitionError reports an attempted transition outside the task state machine.
type TransitionError struct {
	TaskID   string
	From, To TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot transition from %s to %s", e.TaskID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Error kinds recorded on failed tasks and failure nodes.
const (
	KindAgentUnavailable = "AgentUnavailable"
	KindTaskTimeout      = "TaskTimeout"
	KindTransient        = "TransientAgentError"
	KindPermanent        = "PermanentAgentError"
	KindGraphReference   = "GraphReferenceError"
	KindStorage          = "StorageError"
	KindCancelled        = "Cancelled"
)

// ErrorKind maps err to its taxonomy name.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAgentUnavailable):
		return KindAgentUnavailable
	case errors.Is(err, ErrTaskTimeout):
		return KindTaskTimeout
	case errors.Is(err, ErrGraphReference):
		return KindGraphReference
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case IsTransient(err):
		return KindTransient
	default:
		return KindPermanent
	}
}
