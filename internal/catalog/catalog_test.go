package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sideeffect-io/tydom-go/internal/jsonvalue"
)

func strp(s string) *string { return &s }

func TestUpsert_MergesOnlyPresentFields(t *testing.T) {
	c := New()
	c.Upsert(Entry{UniqueID: "2_1", Name: strp("Living Room")})
	c.Upsert(Entry{UniqueID: "2_1", Usage: strp("shutter")})

	rec, ok := c.DeviceInfo("2_1")
	require.True(t, ok)
	require.Equal(t, "Living Room", rec.Name)
	require.Equal(t, "shutter", rec.Usage)
}

func TestUpsert_LastWriteWins(t *testing.T) {
	c := New()
	c.Upsert(Entry{UniqueID: "1_1", Name: strp("A")})
	c.Upsert(Entry{UniqueID: "1_1", Name: strp("B")})

	rec, ok := c.DeviceInfo("1_1")
	require.False(t, ok) // usage still unset
	_ = rec

	c.Upsert(Entry{UniqueID: "1_1", Usage: strp("light")})
	rec, ok = c.DeviceInfo("1_1")
	require.True(t, ok)
	require.Equal(t, "B", rec.Name)
}

func TestDeviceInfo_RequiresNameAndUsage(t *testing.T) {
	c := New()
	c.Upsert(Entry{UniqueID: "3_1", Name: strp("Only Name")})
	_, ok := c.DeviceInfo("3_1")
	require.False(t, ok)
}

func TestDeviceInfo_ReturnsDeepCopy(t *testing.T) {
	c := New()
	c.Upsert(Entry{
		UniqueID: "5_1",
		Name:     strp("n"),
		Usage:    strp("light"),
		Metadata: map[string]jsonvalue.Value{"power": jsonvalue.Object(map[string]jsonvalue.Value{
			"min": jsonvalue.Number(0),
		})},
	})

	rec, ok := c.DeviceInfo("5_1")
	require.True(t, ok)
	rec.Metadata["power"] = jsonvalue.Null() // mutate the copy

	rec2, ok := c.DeviceInfo("5_1")
	require.True(t, ok)
	_, isObj := rec2.Metadata["power"].Object()
	require.True(t, isObj, "mutating the returned copy must not affect the catalog")
}

func TestUsage(t *testing.T) {
	c := New()
	c.Upsert(Entry{UniqueID: "9_1", Usage: strp("conso")})
	usage, ok := c.Usage("9_1")
	require.True(t, ok)
	require.Equal(t, "conso", usage)

	_, ok = c.Usage("missing")
	require.False(t, ok)
}

func TestUniqueID(t *testing.T) {
	require.Equal(t, "2_1", UniqueID(2, 1))
}
