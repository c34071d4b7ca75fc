// Package session implements the session store (SS): per-chat named
// conversation sessions, per spec.md §3 and §4.5.
package session

// Session is one (chat_id, name) row.
type Session struct {
	ChatID               int64
	Name                 string
	UserID               int64
	BackendSessionHandle string
	Model                string
	IsActive             bool
	CreatedAt            int64
	LastActiveAt         int64
	MessageCount         int64
}

// DefaultName is the session name the channel driver binds a chat to on
// its first turn, per spec.md §4.4.
const DefaultName = "default"
