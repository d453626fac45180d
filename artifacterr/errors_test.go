package artifacterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors_SetKind(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want Kind
	}{
		{"input", Input("bad %s", "value"), KindInput},
		{"conflict", Conflict("already exists"), KindRequestConflict},
		{"notfound", NotFound("gone"), KindNotFound},
		{"authz", Authorization("nope"), KindAuthorization},
		{"internal", Internal(errors.New("boom"), "wrap"), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Kind)
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal(cause, "context")
	assert.ErrorIs(t, err, cause)
}

func TestError_Is_MatchesByKindOnly(t *testing.T) {
	err := Conflict("artifact %s exists", "public/log.txt")
	assert.ErrorIs(t, err, &Error{Kind: KindRequestConflict})
	assert.NotErrorIs(t, err, &Error{Kind: KindNotFound})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("x")))
	assert.Equal(t, KindInternal, KindOf(errors.New("untyped")))
	assert.Equal(t, KindAuthorization, KindOf(fmt.Errorf("wrapped: %w", Authorization("x"))))
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := Internal(errors.New("disk full"), "store write")
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "store write")
}
