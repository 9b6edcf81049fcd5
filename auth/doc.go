// Package auth provides identity and capability primitives for the request
// pipeline: JWT and API-key authenticators that produce Identities, and a
// capability source that resolves an identity's roles to the capability set
// the pipeline's authorization behavior checks against.
//
// Identity issuance (login, token minting) is out of scope; this package only
// verifies credentials presented by callers.
package auth
