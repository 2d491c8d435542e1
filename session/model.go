package session

// Credentials is the access/refresh pair issued by the server. Both values
// are opaque bearer strings and are persisted or absent as a unit.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Valid reports whether both halves of the pair are present.
func (c Credentials) Valid() bool {
	return c.Access != "" && c.Refresh != ""
}

// Identity is the cached profile snapshot shown to the application. It is
// advisory display data derived from Credentials and the profile endpoint.
type Identity struct {
	Username     string `json:"username"`
	DisplayName  string `json:"name"`
	TwoFAEnabled bool   `json:"twofa_enabled,omitempty"`
	PinCodeSet   bool   `json:"pincode_set,omitempty"`
}
