// Package conversation provides the ordered message log shared by graph nodes.
package conversation

// Role identifies the author of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// Tag marks messages that carry replaceable content.
type Tag string

const (
	TagFileSnapshot Tag = "file_snapshot" // Carries the current contents of tracked files
	TagScreenshots  Tag = "screenshots"   // Carries visual capture results
)

// Image is an image attachment on a message.
type Image struct {
	Path      string `json:"path,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

// ToolCall is a structured action declared by the model.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Message is a single entry in the conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Images     []Image    `json:"images,omitempty"`
	Tags       []Tag      `json:"tags,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // ai messages only
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages only
}

// HasTag reports whether the message carries the given tag.
func (m Message) HasTag(tag Tag) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// System creates a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Human creates a human message.
func Human(content string, tags ...Tag) Message {
	return Message{Role: RoleHuman, Content: content, Tags: tags}
}

// ToolResult creates a tool message answering the call with the given id.
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// Conversation is the ordered message log for one task instance.
// It has exactly one writer: the executor step loop.
type Conversation struct {
	messages []Message
}

// New creates a conversation seeded with the given messages.
func New(seed ...Message) *Conversation {
	c := &Conversation{}
	for _, m := range seed {
		c.Append(m)
	}
	return c
}

// Append adds a message to the end of the log.
func (c *Conversation) Append(m Message) {
	c.messages = append(c.messages, clone(m))
}

// LatestOfRole returns the most recent message with the given role.
func (c *Conversation) LatestOfRole(role Role) (Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == role {
			return clone(c.messages[i]), true
		}
	}
	return Message{}, false
}

// Last returns the final message in the log.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return clone(c.messages[len(c.messages)-1]), true
}

// PurgeTagged removes every message carrying the tag and returns how many were removed.
// Relative order of the remaining messages is preserved.
func (c *Conversation) PurgeTagged(tag Tag) int {
	kept := c.messages[:0:0]
	removed := 0
	for _, m := range c.messages {
		if m.HasTag(tag) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	c.messages = kept
	return removed
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = clone(m)
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// clone copies the slices of a message so callers cannot mutate stored entries.
func clone(m Message) Message {
	if m.Images != nil {
		m.Images = append([]Image(nil), m.Images...)
	}
	if m.Tags != nil {
		m.Tags = append([]Tag(nil), m.Tags...)
	}
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = tc
			if tc.Args != nil {
				args := make(map[string]interface{}, len(tc.Args))
				for k, v := range tc.Args {
					args[k] = v
				}
				calls[i].Args = args
			}
		}
		m.ToolCalls = calls
	}
	return m
}
