package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCLIOutputStructuredOutput(t *testing.T) {
	raw := []byte(`{"session_id":"abc","structured_output":{"step":2}}`)
	content, sessionID := ParseCLIOutput(raw)
	assert.Equal(t, `{"step":2}`, content)
	assert.Equal(t, "abc", sessionID)
}

func TestParseCLIOutputContentField(t *testing.T) {
	raw := []byte(`{"session_id":"xyz","content":"[PLAN:1]"}`)
	content, sessionID := ParseCLIOutput(raw)
	assert.Equal(t, "[PLAN:1]", content)
	assert.Equal(t, "xyz", sessionID)
}

func TestParseCLIOutputMixedFallsBackToBraceScan(t *testing.T) {
	raw := []byte("warning: some noise\n{\"step\": 1}\ntrailing")
	content, _ := ParseCLIOutput(raw)
	assert.Equal(t, `{"step": 1}`, content)
}

func TestParseCLIOutputNoJSON(t *testing.T) {
	content, sessionID := ParseCLIOutput([]byte("no json here"))
	assert.Equal(t, "", content)
	assert.Equal(t, "", sessionID)
}
