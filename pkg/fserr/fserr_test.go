package fserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"NotFound", NotFound("/a", "nope"), KindNotFound},
		{"NotDirectory", NotDirectory("/a"), KindNotDirectory},
		{"NotFile", NotFile("/a"), KindNotFile},
		{"NotMutable", NotMutable("/a"), KindNotMutable},
		{"AlreadyExists", AlreadyExists("/a"), KindAlreadyExists},
		{"Conflict", Conflict("/a", "msg"), KindConflict},
		{"OutOfDate", OutOfDate("/a"), KindOutOfDate},
		{"ChecksumMismatch", ChecksumMismatch("/a", []byte{1}, []byte{2}), KindChecksumMismatch},
		{"LockError", LockError("/a", "msg"), KindLockError},
		{"Corrupt", Corrupt("/a", "msg"), KindCorrupt},
		{"Cancelled", Cancelled("msg"), KindCancelled},
		{"Transient", Transient("msg", nil), KindTransient},
		{"PathSyntax", PathSyntax("/a", "msg"), KindPathSyntax},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.err)
			assert.True(t, Is(tc.err, tc.kind))
		})
	}
}

func TestIsFalseForWrongKindOrPlainError(t *testing.T) {
	assert.False(t, Is(NotFound("/a", "nope"), KindConflict))
	assert.False(t, Is(errors.New("plain"), KindNotFound))
	assert.False(t, Is(nil, KindNotFound))
}

func TestErrorMessageIncludesPath(t *testing.T) {
	err := NotFound("/a/b", "no such entry")
	assert.Contains(t, err.Error(), "/a/b")
	assert.Contains(t, err.Error(), "no such entry")
}

func TestTransientWrapsCause(t *testing.T) {
	cause := errors.New("underlying conflict")
	err := Transient("retry me", cause)
	assert.True(t, Is(err, KindTransient))
	assert.ErrorIs(t, err, cause)
}
