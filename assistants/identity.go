package assistants

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/sjson"
)

// InjectIdentity sets the key argument to userID,
// any value supplied by the model is overwritten.
// Empty or null arguments are treated as an empty object.
func InjectIdentity(args json.RawMessage, key, userID string) (json.RawMessage, error) {
	if key == "" {
		return nil, validationError("identity key is required")
	}

	data := bytes.TrimSpace(args)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if data[0] != '{' || !json.Valid(data) {
		return nil, validationError("arguments must be a JSON object")
	}

	res, err := sjson.SetBytes(bytes.Clone(data), key, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to set %s", key)
	}
	return res, nil
}
