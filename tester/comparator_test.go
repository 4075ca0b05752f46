package tester_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xlb-platform/xlbtest/tester"
)

func TestCompare_Equal(t *testing.T) {
	ok, diff := tester.Compare([]byte{1, 2, 3}, []byte{1, 2, 3})
	assert.True(t, ok)
	assert.Empty(t, diff)
}

func TestCompare_ContentMismatch(t *testing.T) {
	ok, diff := tester.Compare([]byte{1, 2, 0xFF}, []byte{1, 2, 3})
	assert.False(t, ok)
	assert.NotEmpty(t, diff)
}

func TestCompare_LengthMismatch(t *testing.T) {
	ok, diff := tester.Compare([]byte{1, 2}, []byte{1, 2, 3})
	assert.False(t, ok)
	assert.Contains(t, diff, "length mismatch")
	assert.Contains(t, diff, "got 2 bytes, want 3 bytes")
}

func TestCompare_EmptyVsEmpty(t *testing.T) {
	ok, _ := tester.Compare(nil, nil)
	assert.True(t, ok)
}
