package client

import "github.com/mcdev12/focushub/go/internal/focus/protocol"

// ChatLog is the append-only, arrival-ordered chat stream of one room
type ChatLog struct {
	messages []protocol.ChatPayload
}

// Append adds a message at the end. Messages are never reordered or deduplicated.
func (c *ChatLog) Append(msg protocol.ChatPayload) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the log
func (c *ChatLog) Messages() []protocol.ChatPayload {
	out := make([]protocol.ChatPayload, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *ChatLog) Len() int { return len(c.messages) }
