package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"xdao.co/canonproof/canon"
)

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}

// requireCanonical re-encodes v and insists the result equals raw.
func requireCanonical(name string, raw []byte, v any) error {
	again, err := canon.Encode(v, FileContract)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBundle, name, err)
	}
	if !bytes.Equal(again, raw) {
		return fmt.Errorf("%w: %s", ErrNotCanonical, name)
	}
	return nil
}
