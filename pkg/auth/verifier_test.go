package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_StaticTokenVerifier(t *testing.T) {
	testCases := []struct {
		name       string
		configured string
		presented  string
		expectErr  error
	}{
		{name: "match", configured: "s3cret-token", presented: "s3cret-token"},
		{name: "mismatch", configured: "s3cret-token", presented: "s3cret-tokem", expectErr: ErrInvalidToken},
		{name: "prefix only", configured: "s3cret-token", presented: "s3cret", expectErr: ErrInvalidToken},
		{name: "nothing configured", configured: "", presented: "", expectErr: ErrInvalidToken},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			v := NewStaticTokenVerifier(tc.configured)
			// when
			err := v.Verify(context.Background(), tc.presented)
			// then
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
