// Package probe provides the HTTP client used to probe a GitLab instance.
//
// This package is internal to labwatch. It wraps the three diagnostic
// endpoints polled on every cycle:
//
//   - [Client.Health]: GET /-/health, raw body text
//   - [Client.Readiness]: GET /-/readiness, decoded and checked for status "ok"
//   - [Client.Metadata]: GET /api/v4/metadata, decoded instance metadata
//
// Every probe issues exactly one request. A response that arrives but does not
// satisfy the probe (wrong status code, undecodable body, readiness status
// other than "ok") is reported as a [*ResponseError] carrying the original
// response. Failures to obtain a response at all (dial errors, timeouts, body
// read errors) are returned as ordinary wrapped errors so that callers can
// tell a bad answer apart from a broken probing mechanism.
package probe
