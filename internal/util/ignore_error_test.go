package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIgnoreError(t *testing.T) {
	called := false
	IgnoreError(func() error {
		called = true
		return errors.New("swallowed")
	})
	require.True(t, called)
}
