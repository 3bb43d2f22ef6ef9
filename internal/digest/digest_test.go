package digest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChallenge(t *testing.T) {
	header := `Digest realm="protected area", nonce="nonce-value", qop="auth", opaque="op", algorithm=MD5`
	c, err := ParseChallenge(header)
	require.NoError(t, err)
	require.Equal(t, "protected area", c.Realm)
	require.Equal(t, "nonce-value", c.Nonce)
	require.Equal(t, "auth", c.QOP)
	require.Equal(t, "op", c.Opaque)
	require.Equal(t, "MD5", c.Algorithm)
}

func TestParseChallenge_CaseInsensitivePrefix(t *testing.T) {
	_, err := ParseChallenge(`digest realm="r", nonce="n", qop="auth"`)
	require.NoError(t, err)
}

func TestParseChallenge_NotDigest(t *testing.T) {
	_, err := ParseChallenge(`Basic realm="x"`)
	require.ErrorIs(t, err, ErrNotDigest)
}

func TestParseChallenge_UnsupportedAlgorithm(t *testing.T) {
	_, err := ParseChallenge(`Digest realm="r", nonce="n", qop="auth", algorithm=SHA-256`)
	var uae *UnsupportedAlgorithmError
	require.ErrorAs(t, err, &uae)
}

func TestParseChallenge_UnsupportedQOP(t *testing.T) {
	_, err := ParseChallenge(`Digest realm="r", nonce="n", qop="auth-int"`)
	var uqe *UnsupportedQOPError
	require.ErrorAs(t, err, &uqe)
}

// TestAuthorization_ExactResponse pins the response formula against a
// fixed RFC 2617 digest scenario with known inputs and expected output.
func TestAuthorization_ExactResponse(t *testing.T) {
	fixedBytes := func(n int) ([]byte, error) {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(i)
		}
		return b, nil
	}

	header, err := Authorization(Params{
		Username: "user",
		Password: "pass",
		Method:   "GET",
		URI:      "/mediation/client?mac=AA:BB&appli=1",
		Challenge: Challenge{
			Realm: "protected area",
			Nonce: "nonce-value",
			QOP:   "auth",
		},
		RandomBytes: fixedBytes,
	})
	require.NoError(t, err)
	require.Contains(t, header, `cnonce="000102030405060708090a0b0c0d0e0f"`)
	require.Contains(t, header, "nc=00000001")

	ha1 := md5Hex("user:protected area:pass")
	ha2 := md5Hex("GET:/mediation/client?mac=AA:BB&appli=1")
	wantResponse := md5Hex(ha1 + ":nonce-value:00000001:000102030405060708090a0b0c0d0e0f:auth:" + ha2)
	require.Contains(t, header, `response="`+wantResponse+`"`)
}

func TestAuthorization_OpaqueAndAlgorithmAppended(t *testing.T) {
	header, err := Authorization(Params{
		Username: "u",
		Password: "p",
		Method:   "GET",
		URI:      "/x",
		Challenge: Challenge{
			Realm:     "r",
			Nonce:     "n",
			QOP:       "auth",
			Opaque:    "abc",
			Algorithm: "MD5",
		},
	})
	require.NoError(t, err)
	require.Contains(t, header, `opaque="abc"`)
	require.Contains(t, header, "algorithm=MD5")
}
