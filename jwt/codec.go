package jwt

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims returns the decoded payload (middle segment) of an access
// credential, or false when it is not three dot-separated segments with a
// JSON object in the middle.
func Claims(access string) (jwt.MapClaims, bool) {
	parts := strings.Split(access, ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, false
	}

	raw, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		// some issuers emit standard base64 in the payload segment
		raw, err = base64.StdEncoding.DecodeString(padded(parts[1]))
		if err != nil {
			return nil, false
		}
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(raw, &claims); err != nil || claims == nil {
		return nil, false
	}
	return claims, true
}

// ExtractSubject returns the "sub" claim of an access credential, or "" if
// the credential or claim is missing or malformed.
func ExtractSubject(access string) string {
	claims, ok := Claims(access)
	if !ok {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// ExpiresAt returns the "exp" claim of an access credential.
func ExpiresAt(access string) (time.Time, bool) {
	claims, ok := Claims(access)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func padded(seg string) string {
	if l := len(seg) % 4; l > 0 {
		seg += strings.Repeat("=", 4-l)
	}
	return seg
}
