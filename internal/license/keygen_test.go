package license

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestValidate_FallsBackToSimpleCheck(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{"missing", "", "required"},
		{"too short", "abc", "too short"},
		{"ok", "ABCD-1234-EFGH", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// без ключей Keygen сеть не используется
			err := Validate(context.Background(), Settings{Key: tt.key, AccountID: "acc"}, logger)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestKeygenValidator_RejectsShortKeyBeforeNetwork(t *testing.T) {
	v := NewKeygenValidator("acc", "token", "product", zaptest.NewLogger(t))
	assert.ErrorContains(t, v.ValidateLicense(context.Background(), "short"), "too short")
}
