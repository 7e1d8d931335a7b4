package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"ambubot/internal/domain"
)

const (
	defaultRadiusM    = 20000
	defaultMaxResults = 3
)

type Geocoder interface {
	Geocode(ctx context.Context, text string) (domain.Coordinates, bool, error)
}

type HospitalFinder interface {
	Nearby(ctx context.Context, at domain.Coordinates, radiusM int) ([]domain.Hospital, error)
}

var excludedHospitalKeywords = []string{"child", "pediatric", "mental", "psychiatric", "rehabilitation"}

type LocationConfig struct {
	RadiusM          int
	MaxResults       int
	MaxMessageLength int
}

type LocationService struct {
	geocoder  Geocoder
	hospitals HospitalFinder
	logger    *slog.Logger
	cfg       LocationConfig
}

type LocationInput struct {
	Text string
}

type LocationOutput struct {
	Text      string            `json:"text"`
	Hospitals []domain.Hospital `json:"hospitals,omitempty"`
}

func NewLocationService(g Geocoder, h HospitalFinder, cfg LocationConfig, logger *slog.Logger) (*LocationService, error) {
	if g == nil {
		return nil, errors.New("usecase: geocoder must not be nil")
	}
	if h == nil {
		return nil, errors.New("usecase: hospital finder must not be nil")
	}
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = defaultRadiusM
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessageLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationService{geocoder: g, hospitals: h, cfg: cfg, logger: logger}, nil
}

// Locate lists general hospitals near a free-text place.
func (s *LocationService) Locate(ctx context.Context, in LocationInput) (LocationOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return LocationOutput{Text: LocationPromptText}, nil
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return LocationOutput{}, newError(ErrorInvalidInput, "location_too_long", nil)
	}

	at, found, err := s.geocoder.Geocode(ctx, text)
	if err != nil {
		return LocationOutput{}, upstreamError("geocode_error", err)
	}
	if !found {
		return LocationOutput{Text: NoCoordinatesText}, nil
	}

	all, err := s.hospitals.Nearby(ctx, at, s.cfg.RadiusM)
	if err != nil {
		return LocationOutput{}, upstreamError("hospital_lookup_error", err)
	}
	if len(all) == 0 {
		return LocationOutput{Text: NoHospitalsText}, nil
	}

	general := filterGeneralHospitals(all, s.cfg.MaxResults)
	if len(general) == 0 {
		return LocationOutput{Text: NoGeneralHospitalText}, nil
	}
	s.logger.DebugContext(ctx, "hospitals located", "candidates", len(all), "returned", len(general))

	lines := make([]string, 0, len(general))
	for _, h := range general {
		lines = append(lines, hospitalLine(h.Name))
	}
	return LocationOutput{Text: strings.Join(lines, "\n"), Hospitals: general}, nil
}

// filterGeneralHospitals drops specialist facilities and keeps at most limit.
func filterGeneralHospitals(all []domain.Hospital, limit int) []domain.Hospital {
	out := make([]domain.Hospital, 0, limit)
	for _, h := range all {
		if isSpecialist(h.Name) {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out
}

func isSpecialist(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range excludedHospitalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
