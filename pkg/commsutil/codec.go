package commsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a value to JSON without HTML escaping, so results
// and commands containing <, > or & travel unchanged.
func EncodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodePayload deserializes JSON into v. Numbers are kept as json.Number so
// 64-bit ids in invocation arguments survive without float rounding.
func DecodePayload(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("commsutil:codec - empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
