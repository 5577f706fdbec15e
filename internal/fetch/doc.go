// Package fetch implements the coordinator that turns an identifier into a
// decoded JSON value with at most one upstream request per identifier. It
// consults cache.State to decide between a cached value, joining a request that
// is already in flight, or starting a new one, and it owns the HTTP client used
// for the single outbound GET. Failures are reported to every waiter and are
// never cached.
package fetch
