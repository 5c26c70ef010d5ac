package surge

import (
	jsoniter "github.com/json-iterator/go"
)

// jsonAPI is the json-iterator configuration used for envelope
// encode/decode. ConfigCompatibleWithStandardLibrary matches
// encoding/json's field tag and number handling exactly, so handlers
// written against this type see no surprises relative to stdlib json,
// while still getting json-iterator's allocation profile on the hot
// per-message path a WebSocket handler runs on.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is a minimal typed wrapper for JSON-over-WebSocket handlers:
// a message kind plus an opaque payload, decoded in two passes so a
// dispatcher can route on Type before committing to a concrete payload
// shape.
type Envelope struct {
	Type    string          `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses data as an Envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := jsonAPI.Unmarshal(data, &env); err != nil {
		return Envelope{}, NewError(KindInternal, "invalid json envelope").WithCause(err)
	}
	return env, nil
}

// DecodePayload unmarshals an Envelope's Payload into v.
func (e Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return jsonAPI.Unmarshal(e.Payload, v)
}

// EncodeEnvelope marshals typ and payload into a Buffer ready for
// WSSession.Send(FrameText, ...).
func EncodeEnvelope(typ string, payload interface{}) (*Buffer, error) {
	raw, err := jsonAPI.Marshal(payload)
	if err != nil {
		return nil, NewError(KindInternal, "encode json payload").WithCause(err)
	}
	body, err := jsonAPI.Marshal(Envelope{Type: typ, Payload: raw})
	if err != nil {
		return nil, NewError(KindInternal, "encode json envelope").WithCause(err)
	}
	return AdoptBuffer(body), nil
}
