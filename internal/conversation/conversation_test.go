package conversation

import (
	"testing"

	"github.com/vinayprograms/agentkit/llm"
)

func TestConversation_AppendAndLatest(t *testing.T) {
	c := New(System("sys"), Human("task"))
	c.Append(Message{Role: RoleAI, Content: "first"})
	c.Append(Message{Role: RoleAI, Content: "second"})

	if c.Len() != 4 {
		t.Fatalf("expected 4 messages, got %d", c.Len())
	}
	m, ok := c.LatestOfRole(RoleAI)
	if !ok || m.Content != "second" {
		t.Errorf("expected latest ai 'second', got %q (ok=%v)", m.Content, ok)
	}
	if _, ok := c.LatestOfRole(RoleTool); ok {
		t.Error("expected no tool message")
	}
}

func TestConversation_PurgeTaggedPreservesOrder(t *testing.T) {
	c := New(
		System("sys"),
		Human("task"),
		Human("old shot", TagScreenshots),
		Message{Role: RoleAI, Content: "a"},
		Human("snapshot", TagFileSnapshot),
		Human("older shot", TagScreenshots),
	)

	removed := c.PurgeTagged(TagScreenshots)
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	want := []string{"sys", "task", "a", "snapshot"}
	got := c.Messages()
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("message %d: expected %q, got %q", i, w, got[i].Content)
		}
	}
}

func TestConversation_PurgeTaggedNoMatch(t *testing.T) {
	c := New(Human("task"))
	if n := c.PurgeTagged(TagScreenshots); n != 0 {
		t.Errorf("expected 0 removed, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 message, got %d", c.Len())
	}
}

func TestConversation_MessagesAreCopies(t *testing.T) {
	c := New()
	c.Append(Message{Role: RoleAI, ToolCalls: []ToolCall{{ID: "1", Name: "x", Args: map[string]interface{}{"k": "v"}}}})

	msgs := c.Messages()
	msgs[0].ToolCalls[0].Args["k"] = "changed"

	last, _ := c.Last()
	if last.ToolCalls[0].Args["k"] != "v" {
		t.Error("stored message was mutated through a returned copy")
	}
}

func TestConversation_ToLLM(t *testing.T) {
	c := New(
		System("sys"),
		Human("look", TagScreenshots),
		Message{Role: RoleAI, ToolCalls: []ToolCall{{ID: "c1", Name: "see_file", Args: map[string]interface{}{"filename": "a.go"}}}},
		ToolResult("c1", "contents"),
	)
	c.messages[1].Images = []Image{{Path: "shot.png"}}

	out := c.ToLLM()
	roles := []string{"system", "user", "assistant", "tool"}
	for i, r := range roles {
		if out[i].Role != r {
			t.Errorf("message %d: expected role %q, got %q", i, r, out[i].Role)
		}
	}
	if out[1].Content != "look\n[image: shot.png]" {
		t.Errorf("unexpected image rendering: %q", out[1].Content)
	}
	if len(out[2].ToolCalls) != 1 || out[2].ToolCalls[0].Name != "see_file" {
		t.Errorf("tool calls not carried: %+v", out[2].ToolCalls)
	}
	if out[3].ToolCallID != "c1" {
		t.Errorf("expected tool call id c1, got %q", out[3].ToolCallID)
	}
}

func TestFromResponse(t *testing.T) {
	msg := FromResponse(&llm.ChatResponse{
		Content:   "thinking",
		ToolCalls: []llm.ToolCallResponse{{ID: "x", Name: "list_dir", Args: map[string]interface{}{}}},
	})
	if msg.Role != RoleAI || msg.Content != "thinking" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "x" {
		t.Errorf("unexpected tool calls: %+v", msg.ToolCalls)
	}
}
