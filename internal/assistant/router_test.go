package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

func TestRouter(t *testing.T) {
	known := func(name string) bool { return name == "search" || name == "add_to_cart" }

	tests := []struct {
		name       string
		failClosed bool
		msg        domain.Message
		want       Route
		wantTool   string
	}{
		{"text only", false, text("hi"), RouteTerminate, ""},
		{"plain tool", false, calls(call("1", "search", nil)), RouteDispatch, "search"},
		{"confirmation tool", false, calls(call("1", "add_to_cart", nil)), RouteSuspend, "add_to_cart"},
		{"first call wins", false, calls(call("1", "search", nil), call("2", "add_to_cart", nil)), RouteDispatch, "search"},
		{"unknown fails open", false, calls(call("1", "mystery", nil)), RouteDispatch, "mystery"},
		{"unknown fails closed", true, calls(call("1", "mystery", nil)), RouteSuspend, "mystery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter([]string{"add_to_cart"}, known, tt.failClosed)
			got := r.Route(tt.msg)
			assert.Equal(t, tt.want, got.Route)
			assert.Equal(t, tt.wantTool, got.Invocation.Name)
		})
	}
}

func TestUsable(t *testing.T) {
	assert.False(t, Usable(text("")))
	assert.False(t, Usable(text(" \n")))
	assert.False(t, Usable(domain.Message{Parts: []domain.ContentPart{{Type: "tool_use"}}}))
	assert.True(t, Usable(domain.Message{Parts: []domain.ContentPart{{Type: "text", Text: "ok"}}}))
	assert.True(t, Usable(calls(call("1", "search", nil))))
}

func TestMessageFormats(t *testing.T) {
	assert.Equal(t, "Error: boom. Please fix your mistakes.", ErrorMessage(errString("boom.")))
	assert.Equal(t,
		"API call denied by user. Reasoning: 'no'. Continue assisting, accounting for the user's input.",
		DenialMessage("no"))
}

type errString string

func (e errString) Error() string { return string(e) }
