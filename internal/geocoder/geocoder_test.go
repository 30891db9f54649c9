package geocoder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedomfinance/ticketfire/internal/models"
)

type stubProvider struct {
	name   string
	coords models.Coordinates
	ok     bool
	err    error
	calls  int
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Geocode(ctx context.Context, query string) (models.Coordinates, bool, error) {
	s.calls++
	return s.coords, s.ok, s.err
}

func TestResolve_NoCountryNoCity(t *testing.T) {
	g := New(NewCache(), &stubProvider{name: "p"}, &stubProvider{name: "f"})
	res := g.Resolve(context.Background(), models.Address{}, NewAlternator())
	assert.Equal(t, models.ResolutionUnknown, res.Status)
	assert.Nil(t, res.Coordinates)
}

func TestResolve_NonKazakhstanAlternatesOffices(t *testing.T) {
	g := New(NewCache(), &stubProvider{name: "p"}, &stubProvider{name: "f"})
	alt := NewAlternator()

	first := g.Resolve(context.Background(), models.Address{Country: "Germany", City: "Berlin"}, alt)
	second := g.Resolve(context.Background(), models.Address{Country: "Germany", City: "Berlin"}, alt)

	require.NotNil(t, first.Coordinates)
	require.NotNil(t, second.Coordinates)
	assert.Equal(t, models.ResolutionForeign, first.Status)
	assert.Equal(t, models.ResolutionForeign, second.Status)
	assert.NotEqual(t, *first.Coordinates, *second.Coordinates)
}

func TestResolve_KazakhstanNoCityUsesCapital(t *testing.T) {
	g := New(NewCache(), &stubProvider{name: "p"}, &stubProvider{name: "f"})
	res := g.Resolve(context.Background(), models.Address{Country: "Казахстан"}, NewAlternator())
	require.NotNil(t, res.Coordinates)
	assert.Equal(t, models.ResolutionPartial, res.Status)
	assert.InDelta(t, 51.1694, res.Coordinates.Lat, 0.001)
}

// Property 9 — geocoder idempotence: a second resolution of an
// already-resolved address returns cached coordinates with provider =
// cache.
func TestResolve_CacheHitShortCircuits(t *testing.T) {
	primary := &stubProvider{name: "p", coords: models.Coordinates{Lat: 1, Lon: 2}, ok: true}
	fallback := &stubProvider{name: "f"}
	g := New(NewCache(), primary, fallback)
	addr := models.Address{Country: "Казахстан", Region: "Алматинская", City: "Алматы", Street: "Абая", House: "10"}

	first := g.Resolve(context.Background(), addr, NewAlternator())
	require.Equal(t, models.ResolutionResolved, first.Status)
	require.Equal(t, 1, primary.calls)

	second := g.Resolve(context.Background(), addr, NewAlternator())
	assert.Equal(t, "cache", second.Provider)
	assert.Equal(t, 1, primary.calls, "second resolution must not call the provider again")
	assert.Equal(t, *first.Coordinates, *second.Coordinates)
}

func TestAlternator_AlternatesStartingEven(t *testing.T) {
	a := NewAlternator()
	assert.False(t, a.Next())
	assert.True(t, a.Next())
	assert.False(t, a.Next())
}
