// Package directions wraps the external routing/geocoding provider. The
// core consumes a route polyline and a display address as opaque results;
// nothing here depends on a specific provider's encoding beyond the HTTP
// shape of the one we call.
package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/ride-hail/internal/models"
)

// Route is an ordered polyline between two coordinates plus the driving
// distance in kilometers, as reported by the provider.
type Route struct {
	Waypoints  []models.Coord
	DistanceKm float64
}

type Client struct {
	Endpoint string // e.g. https://us1.locationiq.com/v1
	Key      string
	Client   *http.Client
	cache    *Cache
}

func NewClient(endpoint, key string) *Client {
	return &Client{
		Endpoint: endpoint,
		Key:      key,
		Client:   &http.Client{Timeout: 3 * time.Second},
		cache:    NewCache(5 * time.Minute),
	}
}

// Route fetches the driving polyline between from and to.
// GeoJSON geometry: coordinates are [lng, lat] pairs.
func (c *Client) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	u := fmt.Sprintf("%s/directions/driving/%f,%f;%f,%f?key=%s&overview=full&geometries=geojson",
		c.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat, url.QueryEscape(c.Key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("directions: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"` // meters
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, err
	}
	if len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("directions: no route")
	}
	r := out.Routes[0]
	wps := make([]models.Coord, 0, len(r.Geometry.Coordinates))
	for _, p := range r.Geometry.Coordinates {
		if len(p) == 2 {
			wps = append(wps, models.Coord{Lat: p[1], Lng: p[0]})
		}
	}
	return Route{Waypoints: wps, DistanceKm: r.Distance / 1000.0}, nil
}

// ReverseGeocode resolves a coordinate to a display address. Results are
// cached; pins don't move.
func (c *Client) ReverseGeocode(ctx context.Context, at models.Coord) (string, error) {
	if addr, ok := c.cache.Get(at); ok {
		return addr, nil
	}
	u := fmt.Sprintf("%s/reverse.php?key=%s&lat=%f&lon=%f&format=json",
		c.Endpoint, url.QueryEscape(c.Key), at.Lat, at.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	c.cache.Set(at, out.DisplayName)
	return out.DisplayName, nil
}
