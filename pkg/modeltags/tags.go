// Package modeltags implements the enumerated model-tag allow-list
// spec.md §6 requires: a closed set of opaque tags, each bound to a
// backend and optional backend-specific model identifier.
package modeltags

import "github.com/nicdavidson/homestead/pkg/apierr"

// BackendKind names the two dispatcher backend shapes spec.md §4.1
// describes.
type BackendKind string

const (
	BackendSubprocess BackendKind = "subprocess"
	BackendHTTP       BackendKind = "http"
)

// Binding is one model tag's configuration: which backend handles it and
// what backend-specific model identifier (if any) to pass along.
type Binding struct {
	Tag             string
	Backend         BackendKind
	BackendModelRef string // e.g. the CLI's --model flag value, or the HTTP API's model name
}

// Registry is the closed, startup-loaded set of allowed tags.
type Registry struct {
	bindings map[string]Binding
}

// NewRegistry builds a registry from configured bindings. An empty
// registry rejects every tag, matching the "unknown tags are rejected"
// rule in spec.md §6.
func NewRegistry(bindings []Binding) *Registry {
	r := &Registry{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		r.bindings[b.Tag] = b
	}
	return r
}

// Resolve validates tag against the allow-list, returning its binding or
// a validation error for callers at the session create/model-change
// boundary, per spec.md §6.
func (r *Registry) Resolve(tag string) (Binding, error) {
	if r != nil {
		if b, ok := r.bindings[tag]; ok {
			return b, nil
		}
	}
	return Binding{}, apierr.Validation("unknown model tag %q", tag)
}

// Tags returns every allowed tag, for status/listing surfaces.
func (r *Registry) Tags() []string {
	if r == nil {
		return nil
	}
	tags := make([]string, 0, len(r.bindings))
	for t := range r.bindings {
		tags = append(tags, t)
	}
	return tags
}
