package session

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	errEmptyRecord      = errors.New("empty record")
	errIncompleteRecord = errors.New("incomplete credential record")
)

func EncodeCredentials(c Credentials) (string, error) {
	if !c.Valid() {
		return "", errIncompleteRecord
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeCredentials parses a stored record. A record missing either half is
// rejected so that callers never observe access-without-refresh.
func DecodeCredentials(raw string) (Credentials, error) {
	var c Credentials
	if err := decode(raw, &c); err != nil {
		return Credentials{}, err
	}
	if !c.Valid() {
		return Credentials{}, errIncompleteRecord
	}
	return c, nil
}

func EncodeIdentity(i Identity) (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeIdentity(raw string) (Identity, error) {
	var i Identity
	if err := decode(raw, &i); err != nil {
		return Identity{}, err
	}
	return i, nil
}

func decode(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return errEmptyRecord
	}
	return json.Unmarshal([]byte(raw), v)
}
