package outbox

import (
	"fmt"

	"github.com/nicdavidson/homestead/pkg/agentregistry"
)

// SelfAgentName is the reserved agent_name for the bot's own conversational
// agent; its messages are delivered verbatim rather than prefixed.
const SelfAgentName = "assistant"

// FormatDelivery renders body for delivery on behalf of agentName, per
// spec.md §4.2's agent identity formatting rule: the bot's own agent is
// verbatim, anyone else gets "<emoji> **<display name>**\n\n<body>".
func FormatDelivery(registry *agentregistry.Registry, agentName, body string) string {
	if agentName == "" || agentName == SelfAgentName {
		return body
	}
	entry := registry.Lookup(agentName)
	prefix := fmt.Sprintf("**%s**", entry.DisplayName)
	if entry.Emoji != "" {
		prefix = entry.Emoji + " " + prefix
	}
	return prefix + "\n\n" + body
}
