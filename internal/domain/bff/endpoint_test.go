package bff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequiredTokenType(t *testing.T) {
	tests := []struct {
		in      string
		want    RequiredTokenType
		wantErr bool
	}{
		{in: "", want: TokenTypeNone},
		{in: "user", want: TokenTypeUser},
		{in: " Client ", want: TokenTypeClient},
		{in: "user_or_client", want: TokenTypeUserOrClient},
		{in: "admin", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRequiredTokenType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccessTokenRetrievalError(t *testing.T) {
	cause := errors.New("refresh failed")
	err := AccessTokenRetrievalError{Reason: "user token unavailable", Err: cause}

	assert.Equal(t, "user token unavailable: refresh failed", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "missing", AccessTokenRetrievalError{Reason: "missing"}.Error())
}
