package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryState_String(t *testing.T) {
	tests := []struct {
		state QueryState
		want  string
	}{
		{StateIdle, "idle"},
		{StateRetrieving, "retrieving"},
		{StateComposing, "composing"},
		{StateGenerating, "generating"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{QueryState(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestErrors_Wrapping(t *testing.T) {
	wrapped := fmt.Errorf("embed chunk 3: %w", ErrEmbeddingUnavailable)
	assert.True(t, errors.Is(wrapped, ErrEmbeddingUnavailable))
	assert.False(t, errors.Is(wrapped, ErrGenerationUnavailable))
}
