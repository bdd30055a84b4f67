package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, 0, ExitCodeFor(nil))
	assert.Equal(t, 1, ExitCodeFor(errors.New("boom")))
	assert.Equal(t, 3, ExitCodeFor(wrapPipelineFailure(errors.New("piece aborted"))))
}

func TestWrapPipelineFailureNil(t *testing.T) {
	assert.Nil(t, wrapPipelineFailure(nil))
}

func TestWrapPipelineFailureUnwraps(t *testing.T) {
	inner := errors.New("inner")
	wrapped := wrapPipelineFailure(inner)
	assert.ErrorIs(t, wrapped, inner)
}
