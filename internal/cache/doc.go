// Package cache holds the process-wide state behind request coalescing: the
// Store that maps identifiers to decoded payloads, the Registry of fetches that
// are still in flight, and State, which ties both together so the
// "cached → in flight → new fetch" decision is taken atomically. Fetch
// coordinators and the hydration bridge depend on this package instead of
// keeping their own maps, which lets tests build an isolated State per case.
package cache
