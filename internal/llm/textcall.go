package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

const textCallPrefix = "Tool:"

var toolNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseTextCall parses a "Tool: name(k=v,...)" line. ok is false when the
// content does not use the text protocol at all.
func ParseTextCall(content string) (inv domain.ToolInvocation, ok bool, err error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, textCallPrefix) {
		return domain.ToolInvocation{}, false, nil
	}
	body := strings.TrimSpace(strings.TrimPrefix(trimmed, textCallPrefix))
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = strings.TrimSpace(body[:i])
	}

	open := strings.IndexByte(body, '(')
	if open < 0 {
		return domain.ToolInvocation{}, true, fmt.Errorf("missing '(' in %q", body)
	}
	if !strings.HasSuffix(body, ")") {
		return domain.ToolInvocation{}, true, fmt.Errorf("missing ')' in %q", body)
	}

	name := strings.TrimSpace(body[:open])
	if !toolNamePattern.MatchString(name) {
		return domain.ToolInvocation{}, true, fmt.Errorf("invalid tool name %q", name)
	}

	args, err := parseTextArgs(body[open+1 : len(body)-1])
	if err != nil {
		return domain.ToolInvocation{}, true, err
	}
	return domain.ToolInvocation{ID: "call_" + uuid.NewString(), Name: name, Args: args}, true, nil
}

// ApplyTextProtocol turns a text-protocol reply into a native tool call.
// Malformed syntax replaces the content with an error so the turn ends.
func ApplyTextProtocol(msg domain.Message) domain.Message {
	if msg.HasToolCalls() {
		return msg
	}
	inv, ok, err := ParseTextCall(msg.Text())
	if !ok {
		return msg
	}
	if err != nil {
		msg.Content = fmt.Sprintf("Error while processing tool call: %v", err)
		msg.Parts = nil
		return msg
	}
	msg.ToolCalls = []domain.ToolInvocation{inv}
	return msg
}

func parseTextArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	for _, pair := range splitArgs(raw) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		key = strings.TrimSpace(key)
		if !toolNamePattern.MatchString(key) {
			return nil, fmt.Errorf("invalid argument name %q", key)
		}
		if v, keep := parseTextValue(strings.TrimSpace(value)); keep {
			args[key] = v
		}
	}
	return args, nil
}

// splitArgs splits on commas outside quotes.
func splitArgs(raw string) []string {
	var parts []string
	var quote rune
	start := 0
	for i, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ',':
			parts = append(parts, raw[start:i])
			start = i + 1
		}
	}
	return append(parts, raw[start:])
}

func parseTextValue(v string) (any, bool) {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1], true
	}
	switch strings.ToLower(v) {
	case "none", "null", "":
		return nil, false
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, true
	}
	return v, true
}
