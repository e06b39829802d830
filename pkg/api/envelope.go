package api

import (
	"bytes"
	"encoding/gob"
	"errors"
)

// EnvelopeVersion is the current wire version of the envelope structure.
const EnvelopeVersion uint8 = 1

// Envelope is the immutable request descriptor handed to the dispatcher for
// transmission: which operation, on which node, with what payload. The
// payload is the operation-specific parameters, already encoded so the
// envelope can be persisted and replayed independently of transport.
type Envelope struct {
	ProcID  string
	Op      OperationType
	Target  ServerName
	Version uint8
	Payload []byte
}

// EncodeEnvelope serializes an envelope. Encoding is deterministic for a
// given input; the dispatcher owns wire-format stability beyond that.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope deserializes an envelope produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if len(data) == 0 {
		return e, errors.New("empty envelope")
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return e, err
	}
	return e, nil
}
