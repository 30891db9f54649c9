package models

// CacheEntry is one resolved (query string) → (lat, lon, provider)
// mapping in the shared, append-only geocoding cache (§3). Lookups are
// by exact query string.
type CacheEntry struct {
	Query    string
	Lat      float64
	Lon      float64
	Provider string
}
