package osm

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ambubot/internal/domain"
)

const (
	DefaultOverpassURL = "https://overpass-api.de/api"

	UnnamedHospital = "Unnamed Hospital"
)

var hospitalSelectors = []string{
	`["amenity"="hospital"]`,
	`["healthcare"="hospital"]`,
	`["building"="hospital"]`,
	`["urgent_care"="yes"]`,
}

type element struct {
	Type   string            `json:"type"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *center           `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type overpassResponse struct {
	Elements []element `json:"elements"`
}

// HospitalFinder looks up hospital-like nodes through the Overpass
// interpreter.
type HospitalFinder struct {
	transport
}

func NewHospitalFinder(baseURL string, opts ...Option) (*HospitalFinder, error) {
	t, err := newTransport(baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &HospitalFinder{transport: t}, nil
}

// Nearby returns every matching element within radiusM metres of at, in the
// order Overpass reports them. Elements without a name get UnnamedHospital.
func (f *HospitalFinder) Nearby(ctx context.Context, at domain.Coordinates, radiusM int) ([]domain.Hospital, error) {
	if radiusM <= 0 {
		return nil, fmt.Errorf("osm: radius must be positive, got %d", radiusM)
	}

	q := url.Values{}
	q.Set("data", hospitalQuery(at, radiusM))

	var res overpassResponse
	if err := f.getJSON(ctx, f.baseURL+"/interpreter?"+q.Encode(), &res); err != nil {
		return nil, err
	}

	out := make([]domain.Hospital, 0, len(res.Elements))
	for _, el := range res.Elements {
		h := domain.Hospital{Name: strings.TrimSpace(el.Tags["name"]), Latitude: el.Lat, Longitude: el.Lon}
		if h.Name == "" {
			h.Name = UnnamedHospital
		}
		if el.Center != nil {
			h.Latitude, h.Longitude = el.Center.Lat, el.Center.Lon
		}
		out = append(out, h)
	}
	return out, nil
}

func hospitalQuery(at domain.Coordinates, radiusM int) string {
	around := fmt.Sprintf("(around:%d,%s,%s)", radiusM,
		strconv.FormatFloat(at.Latitude, 'f', -1, 64),
		strconv.FormatFloat(at.Longitude, 'f', -1, 64))

	var b strings.Builder
	b.WriteString("[out:json];\n(\n")
	for _, sel := range hospitalSelectors {
		b.WriteString("  node")
		b.WriteString(sel)
		b.WriteString(around)
		b.WriteString(";\n")
	}
	b.WriteString(");\nout center;")
	return b.String()
}
