package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/tlahtinen/governor/pkg/api"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(ContentSubtype)
	require.NotNil(t, c, "gob codec must self-register")
	require.Equal(t, ContentSubtype, c.Name())
}

func TestCodecRoundTripsBatch(t *testing.T) {
	c := gobCodec{}
	req := &BatchRequest{
		Envelopes: []api.Envelope{{
			ProcID:  "p1",
			Op:      "SWITCH_THROTTLE",
			Target:  api.ServerName{Host: "node-1", Port: 16020, StartCode: 9},
			Version: api.EnvelopeVersion,
			Payload: []byte{0x01, 0x02},
		}},
	}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var got BatchRequest
	require.NoError(t, c.Unmarshal(data, &got))
	require.Equal(t, req.Envelopes, got.Envelopes)
}

func TestCodecUnmarshalGarbage(t *testing.T) {
	var got BatchResponse
	err := gobCodec{}.Unmarshal([]byte("not gob"), &got)
	require.Error(t, err)
}
