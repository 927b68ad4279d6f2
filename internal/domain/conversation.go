package domain

// Message is a single conversation turn as exchanged with clients and the
// personalization service. Timestamp is RFC 3339 and may be empty.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Conversation is an ordered, append-only sequence of messages.
type Conversation []Message

// Turns strips timestamps, keeping role and content only.
func (c Conversation) Turns() []ChatMessage {
	out := make([]ChatMessage, 0, len(c))
	for _, m := range c {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// WithTimestamps returns a copy where every message lacking a timestamp gets ts.
func (c Conversation) WithTimestamps(ts string) Conversation {
	out := make(Conversation, len(c))
	for i, m := range c {
		if m.Timestamp == "" {
			m.Timestamp = ts
		}
		out[i] = m
	}
	return out
}
