package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"carshare/internal/app/policies"
)

var ErrNoMatch = errors.New("geocoding: address not found")

// Nominatim resolves addresses with an OpenStreetMap Nominatim endpoint. The public
// instance requires an identifying User-Agent.
type Nominatim struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
}

func NewNominatim(baseURL, userAgent string) *Nominatim {
	return &Nominatim{
		Client:    &http.Client{Timeout: 5 * time.Second},
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
	}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (n *Nominatim) Geocode(ctx context.Context, address string) (policies.Coordinates, error) {
	var zero policies.Coordinates
	address = strings.TrimSpace(address)
	if address == "" {
		return zero, ErrNoMatch
	}
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if n.UserAgent != "" {
		req.Header.Set("User-Agent", n.UserAgent)
	}
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return zero, fmt.Errorf("geocoding: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return zero, fmt.Errorf("geocoding: decode response: %w", err)
	}
	if len(places) == 0 {
		return zero, ErrNoMatch
	}
	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return zero, fmt.Errorf("geocoding: latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return zero, fmt.Errorf("geocoding: longitude %q: %w", places[0].Lon, err)
	}
	return policies.Coordinates{Lat: lat, Lon: lon}, nil
}

var _ policies.Geocoder = (*Nominatim)(nil)
