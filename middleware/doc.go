// Package middleware exposes access-token guards for net/http and gin built
// on [eduAuth.Engine.ValidateAccess].
//
// Each guard reads the Authorization header, validates the bearer token and
// injects the resulting claims into the request context. The package never
// parses JWTs itself and never touches Redis.
package middleware
