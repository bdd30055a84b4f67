package engine

import "github.com/tidwall/gjson"

// extractBlockedPrompt pulls the "prompt" field out of a blocked
// response's content when it's JSON, falling back to the raw content
// for agents that just wrote plain text.
func extractBlockedPrompt(content string) string {
	if v := gjson.Get(content, "prompt"); v.Exists() && v.Type == gjson.String {
		return v.String()
	}
	return content
}
