// Package allowlist implements the trusted-user-identifier gate spec.md
// §6 requires of both the channel driver (inbound messages) and the
// outbox (enqueue targets). There is no cryptographic authentication;
// membership is the whole of the trust model (spec.md §1 Non-goals).
package allowlist

// List is a configured set of allow-listed chat/user identifiers.
type List struct {
	ids map[int64]struct{}
}

func New(ids []int64) *List {
	l := &List{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	return l
}

// Allowed reports whether id is on the list. A nil or empty list allows
// nothing, per the fail-closed default.
func (l *List) Allowed(id int64) bool {
	if l == nil {
		return false
	}
	_, ok := l.ids[id]
	return ok
}
