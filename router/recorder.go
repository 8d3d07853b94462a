package router

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/codai-ecosystem/codai/conversation"
	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/graph"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/scheduler"
)

// Node metadata keys written by the router.
const (
	MetaConversationTurn = "conversation_turn"
	MetaRole             = "role"
	MetaConversationID   = "conversation_id"
	MetaAgent            = "agent"
	MetaTaskID           = "task_id"
	MetaErrorKind        = "error_kind"
	MetaError            = "error"
	MetaFailure          = "failure"
)

// DefaultResultTypes maps roster agents to the node type of their replies.
var DefaultResultTypes = map[string]core.NodeType{
	"planner":  core.NodeFeature,
	"builder":  core.NodeFeature,
	"designer": core.NodeDecision,
	"tester":   core.NodeDecision,
	"deployer": core.NodeDecision,
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// ResultTypes overrides DefaultResultTypes per agent.
	ResultTypes map[string]core.NodeType
	Logger      logging.Logger
}

// Recorder is the scheduler.Recorder writing task provenance into the graph
// and replies into conversations.
type Recorder struct {
	// mu orders threading and user messages of conversation tasks.
	mu     sync.Mutex
	g      *graph.Store
	conv   conversation.Store
	types  map[string]core.NodeType
	logger logging.Logger
}

var (
	_ scheduler.Recorder        = (*Recorder)(nil)
	_ scheduler.AcceptRecorder  = (*Recorder)(nil)
	_ scheduler.IntentDiscarder = (*Recorder)(nil)
)

// NewRecorder creates a Recorder. conv may be nil when replies need not be
// kept as conversation messages.
func NewRecorder(g *graph.Store, conv conversation.Store, optFns ...func(o *RecorderOptions)) *Recorder {
	opts := RecorderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	types := maps.Clone(DefaultResultTypes)
	maps.Copy(types, opts.ResultTypes)

	return &Recorder{
		g:      g,
		conv:   conv,
		types:  types,
		logger: logging.Scoped(opts.Logger, "recorder"),
	}
}

// RecordIntent creates the intent node for a task submitted without one.
// Tasks carrying a conversation id become a turn of that conversation,
// derived from the previous turn.
func (r *Recorder) RecordIntent(_ context.Context, task core.Task) (string, error) {
	if task.ConversationID != "" {
		r.mu.Lock()
		defer r.mu.Unlock()
		return threadIntent(r.g, r.conv, r.logger, task.ConversationID, task.AgentID, task.ID, task.UserInput())
	}

	return r.g.AddNode(core.NodeIntent, task.UserInput(), core.Metadata{
		MetaAgent:  core.String(task.AgentID),
		MetaTaskID: core.String(task.ID),
	})
}

// RecordAccepted appends the user message of an accepted conversation task,
// parented to the last message of the conversation.
func (r *Recorder) RecordAccepted(_ context.Context, task core.Task) error {
	if task.ConversationID == "" || r.conv == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conv, err := r.conv.Get(task.ConversationID)
	if err != nil {
		return err
	}

	var parentID string
	if m, ok := conv.Last(); ok {
		parentID = m.ID
	}

	_, err = r.conv.Append(task.ConversationID, conversation.Message{
		Role:     conversation.RoleUser,
		Content:  task.UserInput(),
		AgentID:  task.AgentID,
		ParentID: parentID,
		NodeID:   task.IntentID,
		TaskID:   task.ID,
	})

	return err
}

// DiscardIntent removes the intent node of a task the scheduler refused.
func (r *Recorder) DiscardIntent(_ context.Context, task core.Task) error {
	if task.IntentID == "" {
		return nil
	}
	_, err := r.g.RemoveNode(task.IntentID)
	return err
}

// RecordResult writes the reply of a completed task. The node type comes
// from outputs.nodeType when valid, then the agent's result type, then
// decision. Features implement the intent; other types relate to it.
func (r *Recorder) RecordResult(_ context.Context, task core.Task) (string, error) {
	nodeType := r.resultType(task)
	reply := Reply(task)

	md := core.Metadata{
		MetaAgent:  core.String(task.AgentID),
		MetaTaskID: core.String(task.ID),
	}
	r.markTurn(md, task, conversation.RoleAssistant)

	id, err := r.g.AddNode(nodeType, reply, md, func(o *graph.NodeOptions) {
		o.Description = task.Title
	})
	if id == "" {
		return "", err
	}

	edgeType := core.EdgeRelatesTo
	if nodeType == core.NodeFeature {
		edgeType = core.EdgeImplements
	}

	err = errors.Join(err, r.link(id, task.IntentID, edgeType))
	err = errors.Join(err, r.appendReply(task, conversation.RoleAssistant, reply, id))

	r.logger.Debug("Result recorded", "task_id", task.ID, "node_id", id, "node_type", nodeType)

	return id, err
}

// RecordFailure writes a decision node describing a failed task.
func (r *Recorder) RecordFailure(_ context.Context, task core.Task) (string, error) {
	content := fmt.Sprintf("Task %q failed on agent %s: %s", task.Title, task.AgentID, task.Error)

	md := core.Metadata{
		MetaAgent:     core.String(task.AgentID),
		MetaTaskID:    core.String(task.ID),
		MetaFailure:   core.Bool(true),
		MetaErrorKind: core.String(task.ErrorKind),
		MetaError:     core.String(task.Error),
	}
	r.markTurn(md, task, conversation.RoleSystem)

	id, err := r.g.AddNode(core.NodeDecision, content, md)
	if id == "" {
		return "", err
	}

	err = errors.Join(err, r.link(id, task.IntentID, core.EdgeRelatesTo))
	err = errors.Join(err, r.appendReply(task, conversation.RoleSystem, content, id))

	r.logger.Debug("Failure recorded", "task_id", task.ID, "node_id", id, "kind", task.ErrorKind)

	return id, err
}

// Reply returns the reply text of a completed task: outputs.reply when set,
// otherwise a rendering of the outputs.
func Reply(task core.Task) string {
	if s, ok := task.Outputs[core.OutputReply].(string); ok && s != "" {
		return s
	}

	if len(task.Outputs) == 0 {
		return fmt.Sprintf("Task %q completed", task.Title)
	}

	keys := make([]string, 0, len(task.Outputs))
	for k := range task.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := fmt.Sprintf("Task %q completed:", task.Title)
	for _, k := range keys {
		out += fmt.Sprintf(" %s=%v", k, task.Outputs[k])
	}

	return out
}

func (r *Recorder) resultType(task core.Task) core.NodeType {
	if s, ok := task.Outputs[core.OutputNodeType].(string); ok {
		if t := core.NodeType(s); t.Valid() && t != core.NodeIntent {
			return t
		}
	}
	if t, ok := r.types[task.AgentID]; ok {
		return t
	}
	return core.NodeDecision
}

func (r *Recorder) markTurn(md core.Metadata, task core.Task, role conversation.Role) {
	if task.ConversationID == "" {
		return
	}
	md[MetaConversationTurn] = core.Bool(true)
	md[MetaRole] = core.String(string(role))
	md[MetaConversationID] = core.String(task.ConversationID)
}

func (r *Recorder) link(from, intentID string, t core.EdgeType) error {
	if intentID == "" {
		return nil
	}
	_, err := r.g.AddEdge(from, intentID, t)
	return err
}

// appendReply adds the reply to the task's conversation, parented to the
// user message that produced the intent.
func (r *Recorder) appendReply(task core.Task, role conversation.Role, content, nodeID string) error {
	if task.ConversationID == "" || r.conv == nil {
		return nil
	}

	conv, err := r.conv.Get(task.ConversationID)
	if err != nil {
		return err
	}

	var parentID string
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if m := conv.Messages[i]; m.Role == conversation.RoleUser && m.NodeID == task.IntentID && task.IntentID != "" {
			parentID = m.ID
			break
		}
	}

	_, err = r.conv.Append(task.ConversationID, conversation.Message{
		Role:     role,
		Content:  content,
		AgentID:  task.AgentID,
		ParentID: parentID,
		NodeID:   nodeID,
		TaskID:   task.ID,
	})

	return err
}
