package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultGeoBaseURL = "https://user-geo-data.wildberries.ru"

// Geocoder resolves a free-text address into a resolved address string and an
// ordered zone-candidate list.
type Geocoder struct {
	baseURL string
	client  *http.Client
}

// NewGeocoder builds a geocoder against the production endpoint.
func NewGeocoder() *Geocoder {
	return NewGeocoderWithBaseURL(defaultGeoBaseURL)
}

// NewGeocoderWithBaseURL builds a geocoder against an explicit base URL.
func NewGeocoderWithBaseURL(base string) *Geocoder {
	return &Geocoder{
		baseURL: base,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type geoResponse struct {
	Address      string  `json:"address"`
	Destinations []int64 `json:"destinations"`
}

// Geocode resolves the address. The returned candidate list is ordered
// general to specific; an empty list means the address did not resolve.
func (g *Geocoder) Geocode(ctx context.Context, address string) (string, []int64, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("locale", "ru")
	endpoint := g.baseURL + "/geo/v1/geocode?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("geocode request: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, descriptorMaxBytes))
	if err != nil {
		return "", nil, fmt.Errorf("read geocode response: %w", err)
	}

	var parsed geoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil, fmt.Errorf("decode geocode response: %w", err)
	}
	return parsed.Address, parsed.Destinations, nil
}
