package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/freedomfinance/ticketfire/internal/models"
)

// Provider queries an external geocoding service for a single free-form
// address string. A provider that can't resolve the query returns
// (zero, false, nil) — not an error; only transport failures are
// errors.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query string) (models.Coordinates, bool, error)
}

const providerTimeout = 10 * time.Second

// PrimaryProvider is the commercial geocoder contract from §6: GET with
// q / fields=items.point / key, response path
// result.items[0].point.{lat,lon}.
type PrimaryProvider struct {
	BaseURL string
	APIKey  string
	http    *http.Client
}

func NewPrimaryProvider(baseURL, apiKey string) *PrimaryProvider {
	return &PrimaryProvider{BaseURL: baseURL, APIKey: apiKey, http: &http.Client{Timeout: providerTimeout}}
}

func (p *PrimaryProvider) Name() string { return "primary" }

func (p *PrimaryProvider) Geocode(ctx context.Context, query string) (models.Coordinates, bool, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return models.Coordinates{}, false, fmt.Errorf("primary geocoder: bad base URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("fields", "items.point")
	q.Set("key", p.APIKey)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Coordinates{}, false, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return models.Coordinates{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, false, fmt.Errorf("primary geocoder: status %d", resp.StatusCode)
	}

	var body struct {
		Result struct {
			Items []struct {
				Point struct {
					Lat float64 `json:"lat"`
					Lon float64 `json:"lon"`
				} `json:"point"`
			} `json:"items"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Coordinates{}, false, err
	}
	if len(body.Result.Items) == 0 {
		return models.Coordinates{}, false, nil
	}
	item := body.Result.Items[0]
	return models.Coordinates{Lat: item.Point.Lat, Lon: item.Point.Lon}, true, nil
}

// FallbackProvider is the free OSM-based geocoder contract from §6: GET
// with q / format=json / limit=1, response is an array whose first
// element has lat/lon as strings.
type FallbackProvider struct {
	BaseURL string
	http    *http.Client
}

func NewFallbackProvider(baseURL string) *FallbackProvider {
	return &FallbackProvider{BaseURL: baseURL, http: &http.Client{Timeout: providerTimeout}}
}

func (p *FallbackProvider) Name() string { return "fallback" }

func (p *FallbackProvider) Geocode(ctx context.Context, query string) (models.Coordinates, bool, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return models.Coordinates{}, false, fmt.Errorf("fallback geocoder: bad base URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Coordinates{}, false, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return models.Coordinates{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, false, fmt.Errorf("fallback geocoder: status %d", resp.StatusCode)
	}

	var body []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Coordinates{}, false, err
	}
	if len(body) == 0 {
		return models.Coordinates{}, false, nil
	}
	lat, err := strconv.ParseFloat(body[0].Lat, 64)
	if err != nil {
		return models.Coordinates{}, false, nil
	}
	lon, err := strconv.ParseFloat(body[0].Lon, 64)
	if err != nil {
		return models.Coordinates{}, false, nil
	}
	return models.Coordinates{Lat: lat, Lon: lon}, true, nil
}

func normalizeCountry(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func buildAddressString(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
