package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewBuildsBothFormats(t *testing.T) {
	for _, format := range []string{"console", "json", ""} {
		l, err := New(Options{Level: "debug", Format: format})
		require.NoError(t, err, format)
		l.WithFields(Fields{"component": "test"}).Debug("hello", Fields{"n": 1})
	}
}

func TestSetDefault(t *testing.T) {
	prev := NewDefaultLogger()
	defer SetDefault(prev)

	nop := NewNop()
	SetDefault(nop)
	assert.Same(t, nop, NewDefaultLogger())

	// must not panic on a nil error or empty fields
	Error(nil, "nothing")
	Error(errors.New("boom"), "something", Fields{})
}

func TestToZapSortsKeys(t *testing.T) {
	zf := toZap([]Fields{{"b": 2, "a": 1}, {"c": 3}})
	require.Len(t, zf, 3)
	assert.Equal(t, "a", zf[0].Key)
	assert.Equal(t, "b", zf[1].Key)
	assert.Equal(t, "c", zf[2].Key)
	assert.Nil(t, toZap(nil))
}
