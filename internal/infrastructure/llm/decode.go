package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/booklens/backend/internal/domain"
)

// fencedReply matches a whole reply wrapped in a markdown code fence
var fencedReply = regexp.MustCompile("(?s)^```[A-Za-z]*\\s*(.*?)\\s*```$")

// replySnippetLen caps how much of a bad reply goes into an error
const replySnippetLen = 160

// checkedReply is implemented by reply types with required fields
type checkedReply interface {
	check() error
}

// decodeReply reads the first JSON object of a model reply into T. Models
// wrap objects in code fences or surround them with prose; both are
// skipped. Every failure wraps domain.ErrProviderMalformedResponse.
func decodeReply[T any](content string) (T, error) {
	var reply T

	payload, ok := objectStart(content)
	if !ok {
		return reply, malformedReply("no JSON object", content)
	}
	// Decode stops after the first value, so trailing prose is ignored.
	if err := json.NewDecoder(strings.NewReader(payload)).Decode(&reply); err != nil {
		return reply, malformedReply(err.Error(), content)
	}
	if c, ok := any(&reply).(checkedReply); ok {
		if err := c.check(); err != nil {
			return reply, malformedReply(err.Error(), content)
		}
	}
	return reply, nil
}

// objectStart returns the reply from its first '{' onwards
func objectStart(content string) (string, bool) {
	body := strings.TrimSpace(content)
	if m := fencedReply.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	idx := strings.IndexByte(body, '{')
	if idx < 0 {
		return "", false
	}
	return body[idx:], true
}

func malformedReply(reason, content string) error {
	snippet := strings.Join(strings.Fields(content), " ")
	if runes := []rune(snippet); len(runes) > replySnippetLen {
		snippet = string(runes[:replySnippetLen]) + "..."
	}
	if snippet == "" {
		snippet = "<empty>"
	}
	return fmt.Errorf("%w: %s (reply: %s)", domain.ErrProviderMalformedResponse, reason, snippet)
}
