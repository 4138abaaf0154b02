package domain

import (
	"encoding/json"
	"testing"
)

func TestMessageTextPrefersContent(t *testing.T) {
	t.Parallel()

	msg := Message{Role: RoleAssistant, Content: "hello", Parts: []ContentPart{{Type: "text", Text: "ignored"}}}
	if got := msg.Text(); got != "hello" {
		t.Fatalf("Text() = %q, want %q", got, "hello")
	}

	msg = Message{Role: RoleAssistant, Parts: []ContentPart{{Type: "image"}, {Type: "text", Text: "a"}, {Type: "text", Text: "b"}}}
	if got := msg.Text(); got != "a\nb" {
		t.Fatalf("Text() = %q, want %q", got, "a\nb")
	}
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"user", NewUserMessage("hi"), false},
		{"assistant with call", NewAssistantMessage("", ToolInvocation{ID: "c1", Name: "add_to_cart"}), false},
		{"assistant call without id", NewAssistantMessage("", ToolInvocation{Name: "add_to_cart"}), true},
		{"tool without call id", Message{Role: RoleTool, Content: "x"}, true},
		{"tool", NewToolMessage("c1", "ok", false), false},
		{"user with calls", Message{Role: RoleUser, ToolCalls: []ToolInvocation{{ID: "c", Name: "n"}}}, true},
		{"bad role", Message{Role: "robot"}, true},
	}

	for _, tt := range tests {
		err := tt.msg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestRoleUnmarshalRejectsUnknown(t *testing.T) {
	t.Parallel()

	var m Message
	if err := json.Unmarshal([]byte(`{"role":"robot","content":"x"}`), &m); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if err := json.Unmarshal([]byte(`{"role":"tool","content":"x","tool_call_id":"c"}`), &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckpointCloneIsIndependent(t *testing.T) {
	t.Parallel()

	cp := NewCheckpoint("s1", "u1")
	cp.Messages = append(cp.Messages, NewUserMessage("one"))
	cp.Suspend(ToolInvocation{ID: "c1", Name: "add_to_cart"})

	clone := cp.Clone()
	clone.Messages = append(clone.Messages, NewUserMessage("two"))
	clone.Messages[0].Content = "changed"
	clone.Pending.Name = "remove_from_cart"

	if len(cp.Messages) != 1 || cp.Messages[0].Content != "one" {
		t.Fatalf("source messages mutated: %+v", cp.Messages)
	}
	if cp.Pending.Name != "add_to_cart" {
		t.Fatalf("source pending mutated: %+v", cp.Pending)
	}
}

func TestCheckpointLastAssistant(t *testing.T) {
	t.Parallel()

	cp := NewCheckpoint("s1", "u1")
	if _, ok := cp.LastAssistant(); ok {
		t.Fatal("expected no assistant message")
	}
	cp.Messages = []Message{
		NewUserMessage("q"),
		NewAssistantMessage("first"),
		NewToolMessage("c", "r", false),
		NewAssistantMessage("second"),
		NewUserMessage("q2"),
	}
	got, ok := cp.LastAssistant()
	if !ok || got.Content != "second" {
		t.Fatalf("LastAssistant() = %+v, %v", got, ok)
	}
}
