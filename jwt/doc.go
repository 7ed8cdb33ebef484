// Package jwt issues and verifies short-lived access tokens.
//
// Tokens carry the account id in sub, the account email, an optional role
// id and a random jti. Verification pins the algorithm, checks expiry with
// an optional leeway and enforces issuer and audience when configured.
// HS256 and Ed25519 keys are supported, including kid-based key rotation.
package jwt
