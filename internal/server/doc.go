// Package server hosts the Fiber HTTP service that acts as the prerendering
// driver: for every configured page it preloads the page's identifiers through
// the fetch coordinator, serializes the cache, and answers with an HTML shell
// that carries the serialized cache for hydration. It also exposes diagnostics
// under /-/ (health, cache dump, consumer-state resolve, test-only wipe).
// Keep exports narrow and accept explicit dependencies so tests can inject
// their own coordinator and registry.
package server
