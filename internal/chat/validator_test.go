package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpchat/client/internal/errs"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{"ok", "hello", ""},
		{"emoji", "Say hello! 👋", ""},
		{"empty", "", "empty"},
		{"too many bytes", strings.Repeat("a", MaxMessageBytes+1), "byte limit"},
		{"too many chars", strings.Repeat("é", MaxTextChars+1), "character limit"},
		{"max chars", strings.Repeat("a", MaxTextChars), ""},
		{"invalid utf8", "a\xffb", "invalid UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
			require.True(t, errs.Is(err, errs.ErrInvalidIntent))
		})
	}
}
