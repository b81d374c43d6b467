package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"dial", fmt.Errorf("dial tcp 10.0.0.1:443: connection refused"), ErrorCategoryNetwork},
		{"rate limit", fmt.Errorf("too many requests"), ErrorCategoryRateLimit},
		{"exchange", fmt.Errorf("API error: params error (code: 10001)"), ErrorCategoryExchange},
		{"malformed", fmt.Errorf("malformed position row"), ErrorCategoryValidation},
		{"unknown", fmt.Errorf("boom"), ErrorCategoryTemporary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err, "test", "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got.Category)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestCategorizeErrorKeepsExistingGuardError(t *testing.T) {
	original := NewConfigurationError("risk", "NewPipeline", "missing threshold")
	wrapped := fmt.Errorf("startup: %w", original)

	got := CategorizeError(wrapped, "other", "op")
	assert.Same(t, original, got)
	assert.True(t, got.IsFatal())
	assert.False(t, got.IsRetryable())
}

func TestIsCategory(t *testing.T) {
	err := NewReconciliationError("reconcile", "exchange", stderrors.New("timeout"))
	assert.True(t, IsCategory(err, ErrorCategoryReconciliation))
	assert.False(t, IsCategory(err, ErrorCategoryConfiguration))
	assert.False(t, IsCategory(stderrors.New("plain"), ErrorCategoryConfiguration))
	assert.Nil(t, WrapError(nil, ErrorCategoryExchange, "x", "y"))
}
