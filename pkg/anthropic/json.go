package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// DecodeJSON unmarshals the first JSON value in text into out. Models often
// wrap JSON in a ```json fence or add a sentence before it; both are
// tolerated.
func DecodeJSON(text string, out any) error {
	body := stripFence(text)
	start := strings.IndexAny(body, "[{")
	if start < 0 {
		return eris.New("anthropic: no JSON found in response")
	}
	open := body[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(body, closer)
	if end < start {
		return eris.New("anthropic: unterminated JSON in response")
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), out); err != nil {
		return eris.Wrap(err, "anthropic: decode JSON response")
	}
	return nil
}

func stripFence(text string) string {
	t := strings.TrimSpace(text)
	i := strings.Index(t, "```")
	if i < 0 {
		return t
	}
	rest := t[i+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if j := strings.Index(rest, "```"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}
