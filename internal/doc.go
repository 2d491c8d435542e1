// Package internal groups the packages that are private to authsession.
//
// # Sub-packages
//
//   - flows: login, recovery, renewal, logout and profile orchestrators
//   - transport: JSON request/response client over net/http
//
// # What this package must NOT do
//
//   - Export types that appear in the public authsession API.
//   - Be imported by any package outside the authsession module.
package internal
