// Package geocoder implements the Geocoder (§4.E): resolve address
// components to (lat, lon) via a cascading fallback ladder and a
// persistent, shared cache.
package geocoder

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"github.com/freedomfinance/ticketfire/internal/logx"
	"github.com/freedomfinance/ticketfire/internal/models"
)

var log = logx.Tag("geo")

// Result is the §4.E output shape.
type Result struct {
	Coordinates *models.Coordinates
	Provider    string
	Status      models.ResolutionStatus
	Explanation string
}

// Geocoder runs the full ladder described in §4.E. A single instance is
// shared across a batch's tickets; its Cache and per-provider breakers
// are safe for concurrent use, but the Alternator passed into Resolve
// must be supplied per-batch by the caller (see OQ-2 in DESIGN.md).
type Geocoder struct {
	cache    *Cache
	primary  Provider
	fallback Provider

	primaryBreaker  *gobreaker.CircuitBreaker
	fallbackBreaker *gobreaker.CircuitBreaker

	rng *rand.Rand
}

func New(cache *Cache, primary, fallback Provider) *Geocoder {
	breakerSettings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:     name,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
	}
	return &Geocoder{
		cache:           cache,
		primary:         primary,
		fallback:        fallback,
		primaryBreaker:  gobreaker.NewCircuitBreaker(breakerSettings("geocoder-primary")),
		fallbackBreaker: gobreaker.NewCircuitBreaker(breakerSettings("geocoder-fallback")),
		rng:             rand.New(rand.NewSource(1)),
	}
}

// Resolve runs the ladder for one ticket's address. alt is the
// per-batch alternator used by rules 2 and 3.b.
func (g *Geocoder) Resolve(ctx context.Context, addr models.Address, alt *Alternator) Result {
	country := addr.Country
	city := addr.City

	switch {
	case country == "":
		if city == "" {
			return Result{Status: models.ResolutionUnknown, Explanation: "no country, no city"}
		}
		return g.searchCISNeighbors(ctx, addr)

	case !isKazakhstan(country):
		return g.foreignOffice(alt, country)

	default:
		return g.resolveKazakhstan(ctx, addr, alt)
	}
}

// searchCISNeighbors implements rule 1b: shuffle the CIS country list
// and query the fallback provider with "{city}, {country}" until the
// first hit.
func (g *Geocoder) searchCISNeighbors(ctx context.Context, addr models.Address) Result {
	order := make([]string, len(cisCountries))
	copy(order, cisCountries)
	g.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, candidate := range order {
		query := buildAddressString(addr.City, candidate)
		if cached, ok := g.cache.Get("cis_search:" + query); ok {
			return Result{
				Coordinates: &models.Coordinates{Lat: cached.Lat, Lon: cached.Lon},
				Provider:    "cache",
				Status:      models.ResolutionPartial,
				Explanation: fmt.Sprintf("matched %s (cached)", candidate),
			}
		}

		coords, ok, err := g.callFallback(ctx, query)
		if err != nil {
			log.Printf("cis neighbor search: %s: %v", candidate, err)
			continue
		}
		if ok {
			g.cache.Put(models.CacheEntry{Query: "cis_search:" + query, Lat: coords.Lat, Lon: coords.Lon, Provider: "fallback"})
			return Result{
				Coordinates: &coords,
				Provider:    "fallback",
				Status:      models.ResolutionPartial,
				Explanation: fmt.Sprintf("matched %s", candidate),
			}
		}
	}
	return Result{Status: models.ResolutionUnknown, Explanation: "no CIS neighbor matched"}
}

// foreignOffice implements rule 2: alternate between two fixed
// domestic-office coordinates, no network call.
func (g *Geocoder) foreignOffice(alt *Alternator, country string) Result {
	office, name := g.pickOffice(alt)
	return Result{
		Coordinates: &office,
		Provider:    "fixed-office",
		Status:      models.ResolutionForeign,
		Explanation: fmt.Sprintf("foreign address (%s); assigned %s office", country, name),
	}
}

func (g *Geocoder) pickOffice(alt *Alternator) (models.Coordinates, string) {
	if alt.Next() {
		return almatyCoords, "Almaty"
	}
	return astanaCoords, "Astana"
}

// resolveKazakhstan implements rule 3's a-d ladder.
func (g *Geocoder) resolveKazakhstan(ctx context.Context, addr models.Address, alt *Alternator) Result {
	if addr.City == "" {
		coords := capitalCoords["казахстан"]
		return Result{Coordinates: &coords, Provider: "fixed-capital", Status: models.ResolutionPartial, Explanation: "Kazakhstan, no city: capital coordinates"}
	}

	if addr.Street == "" {
		return g.queryWithDegrade(ctx, buildAddressString(addr.Country, addr.Region, addr.City), alt, "")
	}

	if addr.House == "" {
		res := g.queryWithDegrade(ctx, buildAddressString(addr.Country, addr.Region, addr.City), alt, "")
		res.Explanation += " (missing house number)"
		return res
	}

	full := buildAddressString(addr.Country, addr.Region, addr.City, addr.Street, addr.House)
	if cached, ok := g.cache.Get(full); ok {
		coords := models.Coordinates{Lat: cached.Lat, Lon: cached.Lon}
		return Result{Coordinates: &coords, Provider: "cache", Status: models.ResolutionResolved, Explanation: "cache hit"}
	}

	coords, ok, err := g.callPrimaryThenFallback(ctx, full)
	if err == nil && ok {
		g.cache.Put(models.CacheEntry{Query: full, Lat: coords.Lat, Lon: coords.Lon, Provider: "primary"})
		return Result{Coordinates: &coords, Provider: "primary", Status: models.ResolutionResolved, Explanation: "full address resolved"}
	}

	// Degrade to the (b) query on failure.
	res := g.queryWithDegrade(ctx, buildAddressString(addr.Country, addr.Region, addr.City), alt, "full address failed, degraded to city-level")
	return res
}

// queryWithDegrade is the shared "query {country, region, city}, on
// total failure alternate between two fixed offices" behavior used by
// rules 3.b and 3.c.
func (g *Geocoder) queryWithDegrade(ctx context.Context, query string, alt *Alternator, note string) Result {
	if cached, ok := g.cache.Get(query); ok {
		coords := models.Coordinates{Lat: cached.Lat, Lon: cached.Lon}
		return Result{Coordinates: &coords, Provider: "cache", Status: models.ResolutionPartial, Explanation: joinNote("cache hit", note)}
	}

	coords, ok, err := g.callPrimaryThenFallback(ctx, query)
	if err == nil && ok {
		g.cache.Put(models.CacheEntry{Query: query, Lat: coords.Lat, Lon: coords.Lon, Provider: "primary"})
		return Result{Coordinates: &coords, Provider: "primary", Status: models.ResolutionPartial, Explanation: joinNote("city-level resolved", note)}
	}

	office, name := g.pickOffice(alt)
	return Result{
		Coordinates: &office,
		Provider:    "fixed-office",
		Status:      models.ResolutionUnknown,
		Explanation: joinNote(fmt.Sprintf("all providers failed; assigned %s office", name), note),
	}
}

func joinNote(base, note string) string {
	if note == "" {
		return base
	}
	return base + "; " + note
}

func (g *Geocoder) callPrimaryThenFallback(ctx context.Context, query string) (models.Coordinates, bool, error) {
	coords, ok, err := g.callPrimary(ctx, query)
	if err == nil && ok {
		return coords, true, nil
	}
	if err != nil {
		log.Printf("primary geocoder failed for %q: %v", query, err)
	}
	return g.callFallback(ctx, query)
}

func (g *Geocoder) callPrimary(ctx context.Context, query string) (models.Coordinates, bool, error) {
	out, err := g.primaryBreaker.Execute(func() (interface{}, error) {
		coords, ok, err := g.primary.Geocode(ctx, query)
		if err != nil {
			return nil, err
		}
		return struct {
			Coordinates models.Coordinates
			OK          bool
		}{coords, ok}, nil
	})
	if err != nil {
		return models.Coordinates{}, false, err
	}
	result := out.(struct {
		Coordinates models.Coordinates
		OK          bool
	})
	return result.Coordinates, result.OK, nil
}

func (g *Geocoder) callFallback(ctx context.Context, query string) (models.Coordinates, bool, error) {
	out, err := g.fallbackBreaker.Execute(func() (interface{}, error) {
		coords, ok, err := g.fallback.Geocode(ctx, query)
		if err != nil {
			return nil, err
		}
		return struct {
			Coordinates models.Coordinates
			OK          bool
		}{coords, ok}, nil
	})
	if err != nil {
		return models.Coordinates{}, false, err
	}
	result := out.(struct {
		Coordinates models.Coordinates
		OK          bool
	})
	return result.Coordinates, result.OK, nil
}
