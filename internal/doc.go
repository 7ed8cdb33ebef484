// Package internal holds helpers shared by eduAuth's packages that are not
// part of the public API.
//
// random.go mints the opaque single-use tokens (verification, reset, refresh)
// and correlation IDs. The sub-packages serve the eduauth-server binary:
//
//   - config:  YAML, .env and environment loading mapped onto eduAuth.Config
//   - logger:  zap construction and request-scoped fields
//   - httpapi: the gin router exposing the /auth endpoints
package internal
