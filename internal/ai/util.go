package ai

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxReply keeps a reply inside one Discord message.
const maxReply = 1900

var ErrUnusableReply = errors.New("unusable reply")

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// quotePairs are the wrappers some models put around a whole answer.
var quotePairs = map[string]string{`"`: `"`, `'`: `'`, "“": "”", "‘": "’"}

// statusError reports a non-2xx answer with the start of its body.
func statusError(service string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	return fmt.Errorf("%s http %d: %s", service, status, snippet)
}

// usable rejects block pages and empty answers.
func usable(reply string) bool {
	if len(reply) < 2 {
		return false
	}
	l := strings.ToLower(reply)
	return !strings.Contains(l, "<html") && !strings.Contains(l, "not allowed")
}

func cleanReply(reply string) string {
	reply = strings.TrimSpace(thinkBlock.ReplaceAllString(reply, ""))

	for open, closing := range quotePairs {
		inner, ok := strings.CutPrefix(reply, open)
		if !ok {
			continue
		}
		if inner, ok = strings.CutSuffix(inner, closing); ok {
			reply = strings.TrimSpace(inner)
			break
		}
	}

	if len(reply) <= maxReply {
		return reply
	}
	cut := maxReply
	for cut > 0 && !utf8.RuneStart(reply[cut]) {
		cut--
	}
	return reply[:cut] + "\n\n[truncated]"
}
