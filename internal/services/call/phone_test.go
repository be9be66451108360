package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warmleadnetwork/voice-call-service/internal/domain"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "formatted domestic", input: "(415) 555-0100", want: "+14155550100"},
		{name: "bare ten digits", input: "4155550100", want: "+14155550100"},
		{name: "one-prefixed eleven digits", input: "14155550100", want: "+14155550100"},
		{name: "already e164", input: "+14155550100", want: "+14155550100"},
		{name: "dots and spaces", input: "415.555.0100", want: "+14155550100"},
		{name: "international", input: "+44 20 7946 0958", want: "+442079460958"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "letters", input: "call-me-maybe", wantErr: true},
		{name: "leading zero country", input: "+0123456789", wantErr: true},
		{name: "too short", input: "+1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.ErrCodeInvalidPhoneNumber, domain.ErrorCodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhoneNumberErrorNamesBothForms(t *testing.T) {
	_, err := NormalizePhoneNumber("+0123456789")
	require.Error(t, err)
	// The message reports what was given and what normalization produced,
	// so the caller can see where the number went wrong.
	assert.Contains(t, err.Error(), `"+0123456789"`)
	assert.Contains(t, err.Error(), "normalized to")
}

func TestNormalizePhoneNumberIsIdempotent(t *testing.T) {
	inputs := []string{"(415) 555-0100", "4155550100", "+442079460958", "1 415 555 0100"}
	for _, input := range inputs {
		first, err := NormalizePhoneNumber(input)
		require.NoError(t, err)
		second, err := NormalizePhoneNumber(first)
		require.NoError(t, err)
		assert.Equal(t, first, second, "normalizing %q twice changed the result", input)
	}
}

func TestAgentIDFromDigits(t *testing.T) {
	assert.Equal(t, "7", AgentIDFromDigits("wwww7#"))
	assert.Equal(t, "42", AgentIDFromDigits("wwww42#"))
	assert.Equal(t, "7", AgentIDFromDigits("7#"))
	assert.Equal(t, "7", AgentIDFromDigits("7"))
	assert.Equal(t, "", AgentIDFromDigits(""))
	assert.Equal(t, "", AgentIDFromDigits("wwww#"))
	assert.Equal(t, "", AgentIDFromDigits("wwwwabc#"))
}
