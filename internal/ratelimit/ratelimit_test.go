package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUpToLimitThenBlocks(t *testing.T) {
	l := New(Config{Limit: 3, Window: time.Minute})
	now := time.Now()

	require.True(t, l.AllowAt("k", now))
	require.True(t, l.AllowAt("k", now))
	require.True(t, l.AllowAt("k", now))
	require.False(t, l.AllowAt("k", now))
}

func TestLimiterSlidesWindowForward(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	now := time.Now()

	require.True(t, l.AllowAt("k", now))
	require.False(t, l.AllowAt("k", now.Add(30*time.Second)))
	require.True(t, l.AllowAt("k", now.Add(61*time.Second)))
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	now := time.Now()

	require.True(t, l.AllowAt("a", now))
	require.True(t, l.AllowAt("b", now))
	require.False(t, l.AllowAt("a", now))
}

func TestForgetDropsBucket(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})
	now := time.Now()

	require.True(t, l.AllowAt("k", now))
	l.Forget("k")
	require.True(t, l.AllowAt("k", now))
}
