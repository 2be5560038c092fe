// Package subagent provides the run_task tool: it spins up a scoped
// child agent, runs one task to completion, persists a resumable
// snapshot, and returns a formatted report to the parent.
package subagent

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarryhq/quarry/pkg/models"
)

// ErrResumeNotFound is returned when resume_id names no stored
// snapshot.
var ErrResumeNotFound = errors.New("resume snapshot not found")

// AgentRunner is the slice of the agent loop the runner depends on.
// Injected as a factory so the tool layer does not import the loop.
type AgentRunner interface {
	Send(ctx context.Context, prompt string) (string, error)
	History() []models.Message
	Usage() models.Usage
}

// NewAgentFunc builds a child agent with the given selection and seed
// history.
type NewAgentFunc func(ctx context.Context, sel models.ModelSelection, history []models.Message) (AgentRunner, error)

// SubType describes one built-in sub-agent flavor.
type SubType struct {
	Name      string
	Directive string
	// ModelHint overrides the parent model when the caller does not
	// pick one explicitly. Empty means inherit.
	ModelHint string
}

// builtinTypes is the sub-agent catalog.
var builtinTypes = map[string]SubType{
	"general-purpose": {
		Name: "general-purpose",
		Directive: `You are a sub-agent handling a delegated task. Work it end to end
with the tools available, then reply with your findings. Your final
message is the only thing the delegating agent sees.`,
	},
	"explore": {
		Name: "explore",
		Directive: `You are an exploration sub-agent. Survey and read; do not modify
anything. Report what exists, where it lives, and how the pieces
connect, with file references.`,
	},
	"plan": {
		Name: "plan",
		Directive: `You are a planning sub-agent. Produce a concrete, ordered plan for
the task: steps, files to touch, and risks. Do not execute the plan.`,
	},
}

// TypeNames returns the built-in sub-agent type names.
func TypeNames() []string {
	return []string{"general-purpose", "explore", "plan"}
}

func lookupType(name string) (SubType, error) {
	st, ok := builtinTypes[name]
	if !ok {
		return SubType{}, fmt.Errorf("unknown subagent_type %q (have: general-purpose, explore, plan)", name)
	}
	return st, nil
}
