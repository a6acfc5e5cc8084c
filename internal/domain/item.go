package domain

import "time"

// ItemRole describes where an item sits in a conversation thread.
type ItemRole string

const (
	RoleTopLevel ItemRole = "top_level"
	RoleReply    ItemRole = "reply"
)

// Item is one unit of text submitted for moderation classification.
// Items are immutable once received; the pipeline invocation that
// processes an item owns it exclusively.
type Item struct {
	ID              string    `json:"id"`
	Body            string    `json:"body"`
	Role            ItemRole  `json:"role"`
	ParentBody      string    `json:"parent_body,omitempty"`
	GrandparentBody string    `json:"grandparent_body,omitempty"`
	Author          string    `json:"author"`
	Community       string    `json:"community"`
	CreatedAt       time.Time `json:"created_at"`
	Permalink       string    `json:"permalink,omitempty"`
}

// IsReply reports whether the item is a reply to another participant.
func (i *Item) IsReply() bool {
	return i.Role == RoleReply
}
