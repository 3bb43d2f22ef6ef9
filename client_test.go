package tydom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sideeffect-io/tydom-go/internal/decode"
	"github.com/sideeffect-io/tydom-go/internal/effect"
	"github.com/sideeffect-io/tydom-go/internal/jsonvalue"
)

func TestNew_BuildsWiredClient(t *testing.T) {
	c, err := New(Config{MAC: "AABBCCDDEEFF", Password: "secret"}, nil)
	require.NoError(t, err)
	require.NotNil(t, c.catalog)
	require.NotNil(t, c.scheduler)
	require.NotNil(t, c.executor)
	require.NotNil(t, c.orch)
}

func TestNew_NormalizesMAC(t *testing.T) {
	c, err := New(Config{MAC: "aa:bb:cc:dd:ee:ff", Password: "secret"}, nil)
	require.NoError(t, err)
	require.Equal(t, "AABBCCDDEEFF", c.cfg.MAC)
}

func TestNew_InvalidMACFails(t *testing.T) {
	_, err := New(Config{MAC: "not-a-mac", Password: "secret"}, nil)
	require.Error(t, err)
}

func TestClose_WithoutConnect_IsSafe(t *testing.T) {
	c, err := New(Config{MAC: "AABBCCDDEEFF", Password: "secret"}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestNextTxID_Monotonic(t *testing.T) {
	c, err := New(Config{MAC: "AABBCCDDEEFF", Password: "secret"}, nil)
	require.NoError(t, err)
	first := c.NextTxID()
	second := c.NextTxID()
	require.NotEqual(t, first, second)
}

func TestDeriveEffects_PingReplyMarksPong(t *testing.T) {
	msg := decode.Raw{URIOrigin: "/ping", TxID: "7"}
	effs := deriveEffects(msg)
	require.Len(t, effs, 1)
	require.IsType(t, effect.PongReceived{}, effs[0])
}

func TestDeriveEffects_CDataReplyChunk(t *testing.T) {
	msg := decode.Raw{URIOrigin: "/devices/1/endpoints/2/cdata", TxID: "9", Payload: []byte(`{"eor":false}`)}
	effs := deriveEffects(msg)
	require.Len(t, effs, 1)
	chunk, ok := effs[0].(effect.CDataReplyChunk)
	require.True(t, ok)
	require.Equal(t, "9", chunk.TxID)
	require.False(t, chunk.EOR)
}

func TestDeriveEffects_OtherRawProducesNoEffects(t *testing.T) {
	msg := decode.Raw{URIOrigin: "/unrelated"}
	require.Empty(t, deriveEffects(msg))
}

func TestDeriveEffects_NonRawMessageProducesNoEffects(t *testing.T) {
	msg := decode.Devices{List: nil}
	require.Empty(t, deriveEffects(msg))
}

func TestCDataIsEOR(t *testing.T) {
	require.True(t, cdataIsEOR([]byte(`{"eor":true}`)))
	require.False(t, cdataIsEOR([]byte(`{"eor":false}`)))
	require.True(t, cdataIsEOR([]byte(`{}`)))
	require.True(t, cdataIsEOR([]byte(`not json`)))
}

func TestCheckFirmwareFloor_WarnsBelowMinimum(t *testing.T) {
	c, err := New(Config{MAC: "AABBCCDDEEFF", Password: "secret", MinFirmwareVersion: "2.0.0"}, nil)
	require.NoError(t, err)
	info := decode.GatewayInfo{Payload: jsonvalue.Object(map[string]jsonvalue.Value{
		"version": jsonvalue.String("1.5.0"),
	})}
	// No assertion beyond "does not panic": the null logger swallows the
	// warning, but this exercises the go-version comparison path.
	c.checkFirmwareFloor(info)
}

func TestCheckFirmwareFloor_NoMinimumConfigured_NoOp(t *testing.T) {
	c, err := New(Config{MAC: "AABBCCDDEEFF", Password: "secret"}, nil)
	require.NoError(t, err)
	info := decode.GatewayInfo{Payload: jsonvalue.Object(map[string]jsonvalue.Value{
		"version": jsonvalue.String("1.5.0"),
	})}
	c.checkFirmwareFloor(info)
}
