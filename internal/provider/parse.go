package provider

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseCLIOutput extracts the content string and session id from one
// provider CLI's JSON wrapper. Providers wrap their
// answer in one of a few conventional fields (structured_output,
// result, content); when the wrapper itself isn't valid JSON — mixed
// stdout/stderr, warnings printed before the payload — fall back to
// locating the outermost {...} span.
func ParseCLIOutput(raw []byte) (content, sessionID string) {
	output := string(raw)

	root := gjson.ParseBytes(raw)
	if !root.Exists() || !root.IsObject() {
		return braceScan(output), ""
	}

	sessionID = root.Get("session_id").String()

	if so := root.Get("structured_output"); so.Exists() && so.IsObject() && len(so.Map()) > 0 {
		return so.Raw, sessionID
	}
	if r := root.Get("result"); r.Exists() && r.Type == gjson.String {
		return r.String(), sessionID
	}
	if c := root.Get("content"); c.Exists() && c.Type == gjson.String {
		return c.String(), sessionID
	}

	if scanned := braceScan(output); scanned != "" {
		return scanned, sessionID
	}
	return "", sessionID
}

// braceScan recovers a JSON object embedded in otherwise free-form
// text by taking the span between the first "{" and the last "}".
func braceScan(output string) string {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start >= 0 && end > start {
		return output[start : end+1]
	}
	return ""
}
