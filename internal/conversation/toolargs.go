package conversation

import "encoding/json"

// tryUnmarshalString decodes raw as a JSON string into *out. It fails (and
// leaves *out untouched) when raw isn't a JSON string literal, which is
// the signal normalizeToolArguments uses to stop re-decoding a multiply
// string-encoded arguments payload (§3 data model, up to five rounds).
func tryUnmarshalString(raw []byte, out *string) error {
	return json.Unmarshal(raw, out)
}

// normalizeToolPayload normalizes a tool call's final decoded JSON payload
// into the object shape the tool handlers expect (§4.7 step 2): primitive
// values are wrapped as {"value": …}, and a single-element array is
// unwrapped to its sole element. Payloads that are already an object pass
// through unchanged; malformed JSON passes through unchanged so the tool's
// own schema validation produces the error message (§4.7 step 3).
func normalizeToolPayload(raw []byte) []byte {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}

	switch val := v.(type) {
	case map[string]interface{}:
		return raw
	case []interface{}:
		if len(val) == 1 {
			if encoded, err := json.Marshal(val[0]); err == nil {
				return normalizeToolPayload(encoded)
			}
		}
		return raw
	default:
		wrapped, err := json.Marshal(map[string]interface{}{"value": val})
		if err != nil {
			return raw
		}
		return wrapped
	}
}
