package cachestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadEnvelope is returned when a cached payload cannot be decoded.
var ErrBadEnvelope = errors.New("malformed cache envelope")

// Envelope is the tagged payload stored in the cache: raw bytes plus their
// declared MIME type. Tagging keeps one cache namespace from mixing
// representations (JSON metadata vs binary image data) ambiguously.
type Envelope struct {
	MimeType string `json:"mimeType"`
	Payload  []byte `json:"-"`
}

// Encode serializes the envelope as a single JSON header line followed by the
// raw payload bytes. The payload is not base64-encoded; image and segment
// payloads dominate the cache and doubling their size would be wasteful.
func (e Envelope) Encode() []byte {
	header, _ := json.Marshal(struct {
		MimeType string `json:"mimeType"`
	}{MimeType: e.MimeType})

	out := make([]byte, 0, len(header)+1+len(e.Payload))
	out = append(out, header...)
	out = append(out, '\n')
	out = append(out, e.Payload...)
	return out
}

// DecodeEnvelope parses a stored envelope back into its MIME type and payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return Envelope{}, fmt.Errorf("%w: missing header delimiter", ErrBadEnvelope)
	}

	var header struct {
		MimeType string `json:"mimeType"`
	}
	if err := json.Unmarshal(data[:idx], &header); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if header.MimeType == "" {
		return Envelope{}, fmt.Errorf("%w: empty mime type", ErrBadEnvelope)
	}

	return Envelope{
		MimeType: header.MimeType,
		Payload:  data[idx+1:],
	}, nil
}
