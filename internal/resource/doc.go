// Package resource throttles calls to external services.
//
// A Controller combines a cap on in-flight calls (weighted semaphore) with a
// request-rate limit (token bucket). Remote encoders acquire a slot before
// every request and release it when the response has been read.
package resource
