// Package wire carries envelope batches between the dispatcher and remote
// agents over gRPC. The service descriptor and codec are written by hand;
// the messages are plain Go structs encoded with gob, the same codec used
// for procedure snapshots.
package wire

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// ContentSubtype is the registered name of the gob codec. Clients select it
// per call with grpc.CallContentSubtype(ContentSubtype).
const ContentSubtype = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type gobCodec struct{}

func (gobCodec) Name() string { return ContentSubtype }

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob unmarshal %T: %w", v, err)
	}
	return nil
}
