package dialog_test

import (
	"strings"
	"testing"

	"github.com/aretw0/lockstep/pkg/dialog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain", input: "preferences", want: "preferences"},
		{name: "unicode", input: "préférences-ü", want: "préférences-ü"},
		{name: "strips ansi escape", input: "\x1b[31mabout\x1b[0m", want: "[31mabout[0m"},
		{name: "strips newlines", input: "a\nb\r\tc", want: "abc"},
		{name: "trims space", input: "  about  ", want: "about"},
		{name: "empty", input: "", wantErr: dialog.ErrEmptyID},
		{name: "only control", input: "\x00\x07", wantErr: dialog.ErrEmptyID},
		{name: "invalid utf8", input: "ab\xff", wantErr: dialog.ErrInvalidUTF8},
		{name: "too large", input: strings.Repeat("x", dialog.MaxIDSize+1), wantErr: dialog.ErrIDTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dialog.SanitizeID(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeID_AtLimit(t *testing.T) {
	id := strings.Repeat("x", dialog.MaxIDSize)
	got, err := dialog.SanitizeID(id)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
