package store

import (
	"encoding/json"
	"fmt"
)

// EncodeRequest produces the structured payload sent to a store RPC call.
// The payload format is JSON; it is an implementation choice local to this
// library and is the one piece of the wire contract that must stay
// byte-for-byte stable across releases so that a store populated by one
// library version remains readable by another (spec §4.D).
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("store: encode request: %w", err)
	}
	return data, nil
}

// DecodeRequest parses a payload produced by EncodeRequest.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("store: decode request: %w", err)
	}
	return req, nil
}

// EncodeResult produces the structured payload a store RPC call returns.
func EncodeResult(res Result) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("store: encode result: %w", err)
	}
	return data, nil
}

// DecodeResult parses a payload produced by EncodeResult.
func DecodeResult(data []byte) (Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("store: decode result: %w", err)
	}
	return res, nil
}
