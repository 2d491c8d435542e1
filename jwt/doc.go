// Package jwt decodes the payload of access credentials issued to the client.
//
// Nothing here verifies signatures: the client has no key material and the
// decoded claims are advisory display and scheduling data, never a trust
// boundary. Every decoder swallows malformed input and reports absence
// instead of an error.
package jwt
