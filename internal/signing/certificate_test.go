package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	a, err := Canonicalize(map[string]interface{}{"b": 1, "a": 2})
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestCanonicalizeDeterministicAcrossFieldOrder(t *testing.T) {
	type payloadA struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	type payloadB struct {
		Y int `json:"y"`
		X int `json:"x"`
	}

	a, err := Canonicalize(payloadA{X: 1, Y: 2})
	require.NoError(t, err)
	b, err := Canonicalize(payloadB{Y: 2, X: 1})
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestSignThenVerifyRoundTrip(t *testing.T) {
	keys, err := Generate()
	require.NoError(t, err)

	payload := Payload{
		TraceID:         "trace-1",
		AgentID:         "agent-1",
		Status:          "success",
		TrustScoreAfter: 65,
		TraceHash:       "deadbeef",
		Created:         time.Now().UTC().Truncate(time.Second),
	}

	cert, err := Sign(keys, payload)
	require.NoError(t, err)

	ok, err := Verify(cert)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	keys, err := Generate()
	require.NoError(t, err)

	cert, err := Sign(keys, Payload{
		TraceID:         "trace-1",
		AgentID:         "agent-1",
		Status:          "success",
		TrustScoreAfter: 65,
		TraceHash:       "deadbeef",
		Created:         time.Now().UTC(),
	})
	require.NoError(t, err)

	cert.Payload.TrustScoreAfter = 99 // tamper after signing

	ok, err := Verify(cert)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadFromHexRejectsMalformedKey(t *testing.T) {
	_, err := LoadFromHex("not-hex")
	require.Error(t, err)

	_, err = LoadFromHex("ab")
	require.Error(t, err)
}

func TestLoadFromHexRoundTripsWithGenerate(t *testing.T) {
	keys, err := Generate()
	require.NoError(t, err)

	reloaded, err := LoadFromHex(keys.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, keys.PublicKeyHex(), reloaded.PublicKeyHex())
}
