package types

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// requestGob shadows Request without its methods so gob uses the default
// struct encoding instead of calling MarshalBinary back.
type requestGob Request

// MarshalBinary encodes the request for storage.
func (r *Request) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode((*requestGob)(r)); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a request previously encoded with MarshalBinary.
func (r *Request) UnmarshalBinary(data []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode((*requestGob)(r)); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}
	return nil
}
