package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeMAC(t *testing.T) {
	got, err := NormalizeMAC("aa:bb-cc dd:ee:ff")
	require.NoError(t, err)
	require.Equal(t, "AABBCCDDEEFF", got)
}

func TestNormalizeMAC_Idempotent(t *testing.T) {
	once, err := NormalizeMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	twice, err := NormalizeMAC(once)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestNormalizeMAC_WrongLength(t *testing.T) {
	_, err := NormalizeMAC("aa:bb:cc")
	require.Error(t, err)
}

func TestNormalizeMAC_NonHex(t *testing.T) {
	_, err := NormalizeMAC("zzzzzzzzzzzz")
	require.Error(t, err)
}

func TestMemoryCredentialStore_SaveAndLoad(t *testing.T) {
	s := NewMemoryCredentialStore()
	ctx := context.Background()

	err := s.Save(ctx, Credentials{MAC: "aa:bb:cc:dd:ee:ff", Password: "secret"})
	require.NoError(t, err)

	got, ok, err := s.Load(ctx, "AABBCCDDEEFF")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "secret", got.Password)
	require.Equal(t, "AABBCCDDEEFF", got.MAC)
}

func TestMemoryCredentialStore_MissingReturnsFalse(t *testing.T) {
	s := NewMemoryCredentialStore()
	_, ok, err := s.Load(context.Background(), "aabbccddeeff")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemorySiteStore_SaveAndLoad(t *testing.T) {
	s := NewMemorySiteStore()
	ctx := context.Background()

	_, ok, err := s.LoadSite(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	err = s.SaveSite(ctx, Site{ID: "1", Name: "Home", GatewayMAC: "AABBCCDDEEFF"})
	require.NoError(t, err)

	site, ok, err := s.LoadSite(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Home", site.Name)
}
