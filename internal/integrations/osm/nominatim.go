package osm

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ambubot/internal/domain"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"

	geocodeCacheSize = 512
	geocodeCacheTTL  = 24 * time.Hour
)

type geocodeResult struct {
	coords domain.Coordinates
	found  bool
}

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocoder resolves free-text places through Nominatim search. Answers,
// including misses, are cached by normalized query.
type Geocoder struct {
	transport
	cache *expirable.LRU[string, geocodeResult]
}

func NewGeocoder(baseURL string, opts ...Option) (*Geocoder, error) {
	t, err := newTransport(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &Geocoder{
		transport: t,
		cache:     expirable.NewLRU[string, geocodeResult](geocodeCacheSize, nil, geocodeCacheTTL),
	}, nil
}

// Geocode returns the coordinates of the best match for text. found is false
// when Nominatim has no match.
func (g *Geocoder) Geocode(ctx context.Context, text string) (domain.Coordinates, bool, error) {
	key := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if key == "" {
		return domain.Coordinates{}, false, nil
	}
	if hit, ok := g.cache.Get(key); ok {
		return hit.coords, hit.found, nil
	}

	q := url.Values{}
	q.Set("q", text)
	q.Set("format", "json")
	q.Set("limit", "1")

	var places []place
	if err := g.getJSON(ctx, g.baseURL+"/search?"+q.Encode(), &places); err != nil {
		return domain.Coordinates{}, false, err
	}

	res := geocodeResult{}
	if len(places) > 0 {
		coords, err := places[0].coordinates()
		if err != nil {
			return domain.Coordinates{}, false, err
		}
		res = geocodeResult{coords: coords, found: true}
	}
	g.cache.Add(key, res)
	return res.coords, res.found, nil
}

// Nominatim encodes coordinates as strings.
func (p place) coordinates() (domain.Coordinates, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(p.Lat), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("osm: parse latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(p.Lon), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("osm: parse longitude %q: %w", p.Lon, err)
	}
	return domain.Coordinates{Latitude: lat, Longitude: lon}, nil
}
