package effect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCDataStore_AccumulatesUntilEOR(t *testing.T) {
	s := NewCDataStore()
	s.Append("42", []byte("hello "), false)
	_, ok := s.Take("42")
	require.False(t, ok, "no payload until EOR")

	s.Append("42", []byte("world"), true)
	payload, ok := s.Take("42")
	require.True(t, ok)
	require.Equal(t, "hello world", string(payload))

	_, ok = s.Take("42")
	require.False(t, ok, "entry evicted after Take")
}

func TestCDataStore_SeparatesByTxID(t *testing.T) {
	s := NewCDataStore()
	s.Append("1", []byte("a"), true)
	s.Append("2", []byte("b"), true)

	p1, ok := s.Take("1")
	require.True(t, ok)
	require.Equal(t, "a", string(p1))

	p2, ok := s.Take("2")
	require.True(t, ok)
	require.Equal(t, "b", string(p2))
}
