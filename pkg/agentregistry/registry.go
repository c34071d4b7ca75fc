package agentregistry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nicdavidson/homestead/pkg/shared/stringutil"
)

// Entry is one agent's entry in the registry: who they display as when
// an outbox message is formatted on their behalf (spec.md §4.2).
type Entry struct {
	Name              string
	DisplayName       string
	Emoji             string
	PreferredModelTag string
}

// Registry is the static, startup-loaded agent mapping. It is read-only
// after Load; concurrent Lookup calls are safe.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry builds a registry directly from entries, for tests; the
// composition root builds its registry with Load.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[strings.ToLower(e.Name)] = e
	}
	return r
}

// Load walks dir for one IDENTITY.md per agent subdirectory
// (dir/<agent_name>/IDENTITY.md) and builds a registry from them. A
// subdirectory with no parseable identity fields is skipped rather than
// failing the whole load, since identity files are free-form and
// user-edited.
func Load(dir string) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry)}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		content, err := os.ReadFile(filepath.Join(dir, name, "IDENTITY.md"))
		if err != nil {
			continue
		}
		identity := ParseIdentityMarkdown(string(content))
		if !IdentityHasValues(identity) {
			continue
		}
		display := stringutil.FirstNonEmpty(identity.Name, name)
		r.entries[strings.ToLower(name)] = Entry{
			Name:        name,
			DisplayName: display,
			Emoji:       identity.Emoji,
		}
	}
	return r, nil
}

// Lookup returns the entry for name, or a synthesized fallback entry
// (display name = name, no emoji) when the agent is unregistered — the
// outbox formats unknown agents plainly rather than rejecting them.
func (r *Registry) Lookup(name string) Entry {
	if r != nil {
		if e, ok := r.entries[strings.ToLower(name)]; ok {
			return e
		}
	}
	return Entry{Name: name, DisplayName: name}
}

// Names returns every registered agent name, sorted, for status/listing
// surfaces.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
