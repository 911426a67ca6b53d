package shardkey

import "encoding/json"

// wireKey mirrors the on-wire shape of a Key: Kind plus the normalized
// bytes, using encoding/json's native []byte<->base64 handling to preserve
// the nil (+infinity) vs non-nil-empty (-infinity) distinction exactly,
// since json.Marshal encodes a nil []byte as `null` and a non-nil empty
// []byte as `""`.
type wireKey struct {
	Kind Kind   `json:"kind"`
	Raw  []byte `json:"raw"`
}

// MarshalJSON implements the wire encoding used by the request/result
// codec (store.Codec) to move Key values between the coordinator and the
// GSM/LSM stores.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireKey{Kind: k.kind, Raw: k.raw})
}

// UnmarshalJSON implements the inverse of MarshalJSON.
func (k *Key) UnmarshalJSON(data []byte) error {
	var w wireKey
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k.kind = w.Kind
	k.raw = w.Raw
	return nil
}
