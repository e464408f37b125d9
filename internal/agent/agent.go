// Package agent defines task-specific agents: a named instruction prefix
// plus host tools exposed inside the execution environment.
package agent

import (
	"github.com/rand/rlm/internal/repl"
)

// Agent augments a session with extra instructions and sandbox tools.
type Agent struct {
	// Name identifies the agent in logs and stored sessions.
	Name string

	// Instructions are prepended to the session query.
	Instructions string

	// Tools are injected into the sandbox under their map keys.
	Tools map[string]repl.Tool
}

// Prompt combines the agent's instructions with the user query.
func (a *Agent) Prompt(query string) string {
	if a == nil || a.Instructions == "" {
		return query
	}
	return a.Instructions + "\n\n" + query
}
