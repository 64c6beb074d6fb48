// Package auth implements stateless token authentication for the calendar
// API: signing key derivation, HS256 token encoding and verification,
// access/refresh token issuance and the refresh cookie.
//
// Nothing in this package keeps per-token state. A Codec, Issuer and
// CookieManager are immutable after construction and safe for concurrent use.
package auth
