package agent

import (
	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/model"
)

// Roster agent ids.
const (
	Planner  = "planner"
	Builder  = "builder"
	Designer = "designer"
	Tester   = "tester"
	Deployer = "deployer"
)

// Role describes one member of the default roster.
type Role struct {
	ID           string
	Description  string
	Capabilities []string
	NodeType     core.NodeType
	Instruction  string
}

// Roles lists the default roster in registration order.
var Roles = []Role{
	{
		ID:           Planner,
		Description:  "Breaks requests down into features and plans",
		Capabilities: []string{"planning", "requirements", "architecture"},
		NodeType:     core.NodeFeature,
		Instruction: "You are the planner of a software project. Break the request " +
			"down into concrete features and a short plan.{{if .contextNodes}} " +
			"Take the {{.contextNodes}} known project items into account.{{end}}",
	},
	{
		ID:           Builder,
		Description:  "Implements features as code",
		Capabilities: []string{"implementation", "code-generation", "refactoring"},
		NodeType:     core.NodeFeature,
		Instruction: "You are the builder of a software project. Describe the " +
			"implementation of the requested feature.",
	},
	{
		ID:           Designer,
		Description:  "Designs screens, flows and visual style",
		Capabilities: []string{"ui-design", "ux", "styling"},
		NodeType:     core.NodeDecision,
		Instruction: "You are the designer of a software project. Propose the " +
			"user interface and interaction design for the request.",
	},
	{
		ID:           Tester,
		Description:  "Plans and reviews tests",
		Capabilities: []string{"testing", "quality-assurance"},
		NodeType:     core.NodeDecision,
		Instruction: "You are the tester of a software project. Propose the tests " +
			"needed to verify the request.",
	},
	{
		ID:           Deployer,
		Description:  "Plans releases and infrastructure",
		Capabilities: []string{"deployment", "infrastructure", "release"},
		NodeType:     core.NodeDecision,
		Instruction: "You are the deployer of a software project. Describe how " +
			"the request is released and operated.",
	},
}

// RoleByID returns the roster entry for id.
func RoleByID(id string) (Role, bool) {
	for _, r := range Roles {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// DefaultRoster builds one ModelAgent per roster role, all backed by m.
func DefaultRoster(m model.Model, logger logging.Logger) []core.Agent {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	agents := make([]core.Agent, 0, len(Roles))
	for _, r := range Roles {
		agents = append(agents, NewModelAgent(r.ID, m, func(o *ModelAgentOptions) {
			o.Instruction = NewInstructionFromText(r.Instruction)
			o.Capabilities = r.Capabilities
			o.Description = r.Description
			o.NodeType = r.NodeType
			o.Logger = logging.Scoped(logger, "agent."+r.ID)
		}))
	}

	return agents
}
