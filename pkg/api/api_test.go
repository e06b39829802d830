package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerNameStringRoundTrip(t *testing.T) {
	sn := ServerName{Host: "node-1.example.com", Port: 16020, StartCode: 1724300000123}

	parsed, err := ParseServerName(sn.String())
	require.NoError(t, err)
	require.Equal(t, sn, parsed)
}

func TestParseServerNameRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "host", "host,port", "host,notaport,1", "host,1,notastart", "a,b,c,d"} {
		_, err := ParseServerName(v)
		require.Error(t, err, "input %q", v)
	}
}

func TestServerNameAddr(t *testing.T) {
	sn := ServerName{Host: "10.0.0.7", Port: 9090, StartCode: 42}
	require.Equal(t, "10.0.0.7:9090", sn.Addr())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		ProcID:  "proc-123",
		Op:      OperationType("switch-throttle"),
		Target:  ServerName{Host: "n1", Port: 7000, StartCode: 99},
		Version: EnvelopeVersion,
		Payload: []byte{0x01, 0x02, 0x03},
	}

	data, err := EncodeEnvelope(env)
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, env, got)
}

func TestEnvelopeEncodingDeterministic(t *testing.T) {
	env := Envelope{
		ProcID:  "proc-123",
		Op:      OperationType("switch-throttle"),
		Target:  ServerName{Host: "n1", Port: 7000, StartCode: 99},
		Version: EnvelopeVersion,
		Payload: []byte("payload"),
	}

	a, err := EncodeEnvelope(env)
	require.NoError(t, err)
	b, err := EncodeEnvelope(env)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecodeEnvelopeEmpty(t *testing.T) {
	_, err := DecodeEnvelope(nil)
	require.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusSucceeded.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusWaiting.Terminal())
}
