package router

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/codai-ecosystem/codai/conversation"
	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/graph"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/registry"
	"github.com/codai-ecosystem/codai/scheduler"
)

// DefaultConversationID names the conversation used when none is given.
const DefaultConversationID = "default"

// ErrEmptyMessage is returned for blank messages.
var ErrEmptyMessage = errors.New("message is empty")

// Options configures a Router.
type Options struct {
	// DefaultAgent receives messages that name no agent.
	DefaultAgent string
	// ContextDepth is the neighbourhood depth around the intent handed to the
	// agent as context.
	ContextDepth int
	// Conversations stores the message threads. It must be the store given
	// to the Recorder, which appends both user messages and replies.
	Conversations conversation.Store
	Logger        logging.Logger
}

// MessageOptions configures a single HandleMessage call.
type MessageOptions struct {
	AgentID        string
	ConversationID string
	Priority       core.Priority
	Timeout        time.Duration
}

// Router routes conversation messages to agents.
type Router struct {
	g      *graph.Store
	s      *scheduler.Scheduler
	reg    *registry.Registry
	conv   conversation.Store
	opts   Options
	logger logging.Logger

	// turnMu serialises threading and submission so consecutive turns of
	// one conversation chain in order.
	turnMu sync.Mutex
}

// New creates a Router.
func New(g *graph.Store, s *scheduler.Scheduler, reg *registry.Registry, optFns ...func(o *Options)) *Router {
	opts := Options{
		DefaultAgent: "planner",
		ContextDepth: 2,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Conversations == nil {
		opts.Conversations = conversation.NewInMemoryStore()
	}

	return &Router{
		g:      g,
		s:      s,
		reg:    reg,
		conv:   opts.Conversations,
		opts:   opts,
		logger: logging.Scoped(opts.Logger, "router"),
	}
}

// Conversations returns the conversation store.
func (r *Router) Conversations() conversation.Store { return r.conv }

// DefaultAgent returns the agent receiving messages that name none.
func (r *Router) DefaultAgent() string { return r.opts.DefaultAgent }

// HandleMessage records text as an intent and submits it to the target agent.
//
// The target is the explicit agent id or the default agent. An unavailable
// target fails with core.ErrAgentUnavailable before anything is written. The
// intent is linked to the previous turn of the conversation with a
// derived_from edge, and the task carries the text as userInput and the
// neighbourhood of the intent as context. The user message is appended by
// the scheduler's Recorder once the task is accepted. When Submit refuses
// the task the intent is removed again.
func (r *Router) HandleMessage(ctx context.Context, text string, optFns ...func(o *MessageOptions)) (*scheduler.Handle, error) {
	opts := MessageOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	agentID := opts.AgentID
	if agentID == "" {
		agentID = r.opts.DefaultAgent
	}

	convID := opts.ConversationID
	if convID == "" {
		convID = DefaultConversationID
	}

	if err := r.reg.CheckAvailable(agentID); err != nil {
		return nil, err
	}

	r.turnMu.Lock()
	defer r.turnMu.Unlock()

	taskID := core.NewID()

	intentID, err := threadIntent(r.g, r.conv, r.logger, convID, agentID, taskID, text)
	if err != nil {
		return nil, err
	}

	task := core.Task{
		ID:          taskID,
		AgentID:     agentID,
		Description: text,
		Priority:    opts.Priority,
		Timeout:     opts.Timeout,
		Inputs: map[string]any{
			core.InputUserInput: text,
			core.InputContext:   r.g.Subgraph(intentID, r.opts.ContextDepth),
		},
		IntentID:       intentID,
		ConversationID: convID,
	}

	h, err := r.s.Submit(ctx, task)
	if err != nil {
		if _, rerr := r.g.RemoveNode(intentID); rerr != nil {
			r.logger.Error("Intent of refused message not removed", "intent_id", intentID, "error", rerr)
		}
		r.logger.Warn("Message not scheduled", "conversation_id", convID, "agent_id", agentID, "error", err)
		return nil, err
	}

	r.logger.Info("Message routed", "conversation_id", convID, "agent_id", agentID, "task_id", h.ID, "intent_id", intentID)

	return h, nil
}

// threadIntent writes the intent node of a conversation turn and links it to
// the node of the previous turn with a derived_from edge.
func threadIntent(g *graph.Store, conv conversation.Store, logger logging.Logger, convID, agentID, taskID, text string) (string, error) {
	var prevNodeID string
	if conv != nil {
		c, err := conv.Get(convID)
		if err != nil {
			return "", err
		}
		if m, ok := c.Last(); ok {
			if _, exists := g.GetNode(m.NodeID); exists {
				prevNodeID = m.NodeID
			}
		}
	}

	md := core.Metadata{
		MetaConversationTurn: core.Bool(true),
		MetaRole:             core.String(string(conversation.RoleUser)),
		MetaConversationID:   core.String(convID),
		MetaAgent:            core.String(agentID),
	}
	if taskID != "" {
		md[MetaTaskID] = core.String(taskID)
	}

	intentID, err := g.AddNode(core.NodeIntent, text, md)
	if intentID == "" {
		return "", err
	}
	if err != nil {
		logger.Error("Intent not persisted", "intent_id", intentID, "error", err)
	}

	if prevNodeID != "" {
		if _, err := g.AddEdge(intentID, prevNodeID, core.EdgeDerivedFrom); err != nil {
			logger.Warn("Turn not threaded", "intent_id", intentID, "previous", prevNodeID, "error", err)
		}
	}

	return intentID, nil
}

// HistoryEntry is one exported conversation turn.
type HistoryEntry struct {
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Agent          string    `json:"agent,omitempty"`
	ConversationID string    `json:"conversationId"`
	NodeID         string    `json:"nodeId"`
	Timestamp      time.Time `json:"timestamp"`
}

// ExportHistory derives the conversation history from the graph: every node
// marked as a conversation turn, oldest first. An empty conversationID
// exports all conversations.
func (r *Router) ExportHistory(conversationID string) []HistoryEntry {
	nodes := r.g.Nodes(func(n core.Node) bool {
		turn, _ := n.Metadata.GetBool(MetaConversationTurn)
		if !turn {
			return false
		}
		if conversationID == "" {
			return true
		}
		id, _ := n.Metadata.GetString(MetaConversationID)
		return id == conversationID
	})

	slices.SortStableFunc(nodes, func(a, b core.Node) int { return a.Timestamp.Compare(b.Timestamp) })

	entries := make([]HistoryEntry, 0, len(nodes))
	for _, n := range nodes {
		role, _ := n.Metadata.GetString(MetaRole)
		agent, _ := n.Metadata.GetString(MetaAgent)
		conv, _ := n.Metadata.GetString(MetaConversationID)
		entries = append(entries, HistoryEntry{
			Role:           role,
			Content:        n.Content,
			Agent:          agent,
			ConversationID: conv,
			NodeID:         n.ID,
			Timestamp:      n.Timestamp,
		})
	}

	return entries
}
