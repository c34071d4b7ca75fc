package agentregistry

import "errors"

var (
	ErrMissingAgentName = errors.New("agent name is required")
	ErrAgentNotFound    = errors.New("agent not found")
)
