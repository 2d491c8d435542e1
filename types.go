package authsession

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rvpalivoda/authsession/session"
)

// Credentials and Identity are the persisted session records.
type (
	Credentials = session.Credentials
	Identity    = session.Identity
)

// State is what callers observe of the session lifecycle. Renewal is an
// internal transient of Authenticated and is never reported.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mnemonic is an ordered list of recovery words. It is handed to the caller
// once and never persisted.
//
// It decodes from a space-separated string, an array of strings, or an
// array of {"position", "word"} objects.
type Mnemonic []string

func (m Mnemonic) String() string {
	return strings.Join(m, " ")
}

func (m *Mnemonic) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = strings.Fields(s)
		return nil
	case '[':
	default:
		return fmt.Errorf("mnemonic: unexpected JSON %q", truncate(data, 32))
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		*m = Mnemonic{}
		return nil
	}

	if t := bytes.TrimSpace(raw[0]); len(t) > 0 && t[0] == '"' {
		var words []string
		if err := json.Unmarshal(data, &words); err != nil {
			return err
		}
		*m = words
		return nil
	}

	var positioned []struct {
		Position int    `json:"position"`
		Word     string `json:"word"`
	}
	if err := json.Unmarshal(data, &positioned); err != nil {
		return err
	}
	sort.SliceStable(positioned, func(i, j int) bool {
		return positioned[i].Position < positioned[j].Position
	})
	words := make(Mnemonic, len(positioned))
	for i, p := range positioned {
		words[i] = p.Word
	}
	*m = words
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// RecoveryChallenge lists the 1-based word positions the server asks for.
type RecoveryChallenge struct {
	Positions []int `json:"positions"`
}

// TwoFactorSetup is returned when two-factor authentication is enabled; the
// caller shows the secret or the otpauth URL to the user.
type TwoFactorSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// RecoverRequest proves knowledge of Words at Indices. NewPassword, when
// set, resets the password in the same call.
type RecoverRequest struct {
	Username    string
	Words       []string
	Indices     []int
	Captcha     string
	NewPassword string
}
