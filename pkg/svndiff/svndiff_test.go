package svndiff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateApplyRoundTrip(t *testing.T) {
	cases := []struct {
		name           string
		source, target []byte
	}{
		{"identical", []byte("the quick brown fox jumps over the lazy dog"), []byte("the quick brown fox jumps over the lazy dog")},
		{"small edit", []byte("line one\nline two\nline three\n"), []byte("line one\nline TWO\nline three\n")},
		{"append", []byte("hello world"), []byte("hello world, and more besides")},
		{"empty source", []byte(""), []byte("brand new content")},
		{"empty target", []byte("some content"), []byte("")},
		{"both empty", []byte(""), []byte("")},
		{"no overlap", []byte("aaaaaaaaaaaaaaaaaaaa"), []byte("bbbbbbbbbbbbbbbbbbbb")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			win := Generate(tc.source, tc.target)
			win.SourceOffset = 0
			win.SourceLength = int64(len(tc.source))

			out, err := Apply(win, tc.source)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tc.target, out))
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	source := []byte("the quick brown fox jumps over the lazy dog, over and over")
	target := []byte("the quick brown fox leaps over the lazy dog, over and over")
	win := Generate(source, target)
	win.SourceOffset = 0
	win.SourceLength = int64(len(source))

	encoded := Encode(win)
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	out, err := Apply(decoded, source)
	require.NoError(t, err)
	assert.Equal(t, target, out)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("not a window"))
	assert.Error(t, err)
}

func TestApplyRejectsOutOfRangeCopy(t *testing.T) {
	win := &Window{
		SourceOffset: 0, SourceLength: 4, TargetLength: 10,
		Instructions: []Instruction{{Kind: OpCopy, Offset: 0, Length: 10}},
	}
	_, err := Apply(win, []byte("abcd"))
	assert.Error(t, err)
}

func TestApplyRejectsLengthMismatch(t *testing.T) {
	win := &Window{
		SourceOffset: 0, SourceLength: 0, TargetLength: 5,
		Instructions: []Instruction{{Kind: OpInsert, Length: 1, Data: []byte("a")}},
	}
	_, err := Apply(win, nil)
	assert.Error(t, err)
}

func TestGenerateShrinksSimilarContent(t *testing.T) {
	source := bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz"), 200)
	target := append(append([]byte{}, source...), []byte(" tail")...)

	win := Generate(source, target)
	win.SourceOffset = 0
	win.SourceLength = int64(len(source))
	encoded := Encode(win)

	assert.Less(t, len(encoded), len(target))
}
