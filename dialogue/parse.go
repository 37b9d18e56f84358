package dialogue

import (
	"encoding/json"
	"strings"

	"github.com/Reverse-Call-Center/voice-playbook/types"
)

// StructuredResponse is the JSON shape the brain may return instead of (or
// wrapped around) plain text: a spoken text, per-turn control overrides and
// a list of external tool invocations.
type StructuredResponse struct {
	Text             string     `json:"text"`
	WaitInputTimeout int        `json:"waitInputTimeout"` // milliseconds
	AllowInterrupt   *bool      `json:"allowInterrupt"`
	Tools            []ToolSpec `json:"tools"`
}

type ToolSpec struct {
	Name   string          `json:"name"`
	URL    string          `json:"url"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

func (t ToolSpec) Request() types.ToolRequest {
	body := ""
	if len(t.Body) > 0 && string(t.Body) != "null" {
		if unquoted, err := strconvUnquote(t.Body); err == nil {
			body = unquoted
		} else {
			body = string(t.Body)
		}
	}
	return types.ToolRequest{Name: t.Name, URL: t.URL, Method: t.Method, Body: body}
}

func strconvUnquote(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// ParseStructured extracts a structured response from raw model output,
// accepting bare JSON or a fenced ```json block.
func ParseStructured(raw string) (*StructuredResponse, bool) {
	payload, ok := extractJSONBlock(raw)
	if !ok {
		return nil, false
	}
	var resp StructuredResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func extractJSONBlock(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		end := strings.LastIndex(trimmed, "```")
		if end <= 3 {
			return "", false
		}
		inner := strings.TrimSpace(trimmed[3:end])
		if len(inner) >= 4 && strings.EqualFold(inner[:4], "json") {
			inner = strings.TrimSpace(inner[4:])
		}
		return inner, inner != ""
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, true
	}
	return "", false
}

// TagCommand converts a recognized inline marker into a command. The second
// return is false for a marker with missing attributes; the handler reports
// those back to the model instead of crashing the call.
func TagCommand(tag Tag) (types.Command, bool) {
	switch tag.Name {
	case "hangup":
		return types.HangupCall(), true
	case "transfer":
		if to := tag.Attrs["to"]; to != "" {
			return types.Transfer(to), true
		}
	case "play":
		if file := tag.Attrs["file"]; file != "" {
			return types.Play(file), true
		}
	case "goto":
		if scene := tag.Attrs["scene"]; scene != "" {
			return types.GotoScene(scene), true
		}
	case "collect":
		typ, varName := tag.Attrs["type"], tag.Attrs["var"]
		if typ != "" && varName != "" {
			return types.StartCollect(typ, varName, tag.Attrs["prompt"]), true
		}
	}
	return types.Command{}, false
}
