// Package observability builds the service's zap logger and the HTTP
// access-log middleware. Request ids come from chi's RequestID middleware.
package observability
