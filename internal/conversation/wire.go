package conversation

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
)

// ToLLM converts the conversation into provider messages.
// Human messages map to "user", ai to "assistant". Image attachments are
// referenced by path since providers differ in how they accept binary content.
func (c *Conversation) ToLLM() []llm.Message {
	out := make([]llm.Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, toLLM(m))
	}
	return out
}

func toLLM(m Message) llm.Message {
	content := m.Content
	if len(m.Images) > 0 {
		var sb strings.Builder
		sb.WriteString(content)
		for _, img := range m.Images {
			sb.WriteString(fmt.Sprintf("\n[image: %s]", img.Path))
		}
		content = sb.String()
	}

	switch m.Role {
	case RoleSystem:
		return llm.Message{Role: "system", Content: content}
	case RoleAI:
		msg := llm.Message{Role: "assistant", Content: content}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCallResponse{
				ID:   tc.ID,
				Name: tc.Name,
				Args: tc.Args,
			})
		}
		return msg
	case RoleTool:
		return llm.Message{Role: "tool", Content: content, ToolCallID: m.ToolCallID}
	default:
		return llm.Message{Role: "user", Content: content}
	}
}

// FromResponse builds the ai message for a provider response.
func FromResponse(resp *llm.ChatResponse) Message {
	msg := Message{Role: RoleAI}
	if resp == nil {
		return msg
	}
	msg.Content = resp.Content
	for _, tc := range resp.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Name,
			Args: tc.Args,
		})
	}
	return msg
}
