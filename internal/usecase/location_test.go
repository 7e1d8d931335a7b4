package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"ambubot/internal/domain"
	"ambubot/internal/integrations/osm"
)

type fakeGeocoder struct {
	at    domain.Coordinates
	found bool
	err   error
	calls int
}

func (f *fakeGeocoder) Geocode(context.Context, string) (domain.Coordinates, bool, error) {
	f.calls++
	return f.at, f.found, f.err
}

type fakeFinder struct {
	hospitals []domain.Hospital
	err       error
	gotAt     domain.Coordinates
	gotRadius int
}

func (f *fakeFinder) Nearby(_ context.Context, at domain.Coordinates, radiusM int) ([]domain.Hospital, error) {
	f.gotAt, f.gotRadius = at, radiusM
	return f.hospitals, f.err
}

var medford = domain.Coordinates{Latitude: 42.41, Longitude: -71.10}

func mustLocation(t *testing.T, g Geocoder, h HospitalFinder, cfg LocationConfig) *LocationService {
	t.Helper()
	svc, err := NewLocationService(g, h, cfg, nil)
	require.NoError(t, err)
	return svc
}

func TestLocate_EmptyTextPromptsForLocation(t *testing.T) {
	g := &fakeGeocoder{}
	svc := mustLocation(t, g, &fakeFinder{}, LocationConfig{})

	out, err := svc.Locate(context.Background(), LocationInput{Text: "  "})
	require.NoError(t, err)
	require.Equal(t, LocationOutput{Text: LocationPromptText}, out)
	require.Zero(t, g.calls)
}

func TestLocate_ReturnsTopGeneralHospitals(t *testing.T) {
	finder := &fakeFinder{hospitals: []domain.Hospital{
		{Name: "Boston Children's Hospital"},
		{Name: "Lawrence Memorial Hospital", Latitude: 42.42, Longitude: -71.11},
		{Name: "McLean Psychiatric Hospital"},
		{Name: osm.UnnamedHospital},
		{Name: "Spaulding Rehabilitation Hospital"},
		{Name: "Mount Auburn Hospital"},
		{Name: "Tufts Medical Center"},
	}}
	svc := mustLocation(t, &fakeGeocoder{at: medford, found: true}, finder, LocationConfig{})

	out, err := svc.Locate(context.Background(), LocationInput{Text: "Medford, MA"})
	require.NoError(t, err)
	require.Equal(t, "🏥 Lawrence Memorial Hospital\n🏥 Unnamed Hospital\n🏥 Mount Auburn Hospital", out.Text)
	require.Len(t, out.Hospitals, 3)
	require.Equal(t, 42.42, out.Hospitals[0].Latitude)
	require.Equal(t, medford, finder.gotAt)
	require.Equal(t, 20000, finder.gotRadius)
}

func TestLocate_ConfiguredRadiusAndLimit(t *testing.T) {
	finder := &fakeFinder{hospitals: []domain.Hospital{{Name: "A"}, {Name: "B"}}}
	svc := mustLocation(t, &fakeGeocoder{at: medford, found: true}, finder, LocationConfig{RadiusM: 5000, MaxResults: 1})

	out, err := svc.Locate(context.Background(), LocationInput{Text: "Medford"})
	require.NoError(t, err)
	require.Equal(t, "🏥 A", out.Text)
	require.Equal(t, 5000, finder.gotRadius)
}

func TestLocate_NoCoordinates(t *testing.T) {
	svc := mustLocation(t, &fakeGeocoder{}, &fakeFinder{}, LocationConfig{})
	out, err := svc.Locate(context.Background(), LocationInput{Text: "Atlantis"})
	require.NoError(t, err)
	require.Equal(t, NoCoordinatesText, out.Text)
}

func TestLocate_NoHospitals(t *testing.T) {
	svc := mustLocation(t, &fakeGeocoder{at: medford, found: true}, &fakeFinder{}, LocationConfig{})
	out, err := svc.Locate(context.Background(), LocationInput{Text: "Medford"})
	require.NoError(t, err)
	require.Equal(t, NoHospitalsText, out.Text)
}

func TestLocate_OnlySpecialistHospitals(t *testing.T) {
	finder := &fakeFinder{hospitals: []domain.Hospital{{Name: "Pediatric Care Center"}, {Name: "Center for MENTAL Health"}}}
	svc := mustLocation(t, &fakeGeocoder{at: medford, found: true}, finder, LocationConfig{})
	out, err := svc.Locate(context.Background(), LocationInput{Text: "Medford"})
	require.NoError(t, err)
	require.Equal(t, NoGeneralHospitalText, out.Text)
	require.Empty(t, out.Hospitals)
}

func TestLocate_UpstreamErrors(t *testing.T) {
	t.Run("geocoder rate limited", func(t *testing.T) {
		g := &fakeGeocoder{err: &osm.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}
		svc := mustLocation(t, g, &fakeFinder{}, LocationConfig{})
		_, err := svc.Locate(context.Background(), LocationInput{Text: "Medford"})
		require.Equal(t, ErrorRateLimited, AsError(err).Code)
		require.Equal(t, "geocode_error", AsError(err).Reason)
	})

	t.Run("overpass failure", func(t *testing.T) {
		svc := mustLocation(t, &fakeGeocoder{at: medford, found: true}, &fakeFinder{err: errors.New("timeout")}, LocationConfig{})
		_, err := svc.Locate(context.Background(), LocationInput{Text: "Medford"})
		require.Equal(t, ErrorUpstream, AsError(err).Code)
		require.Equal(t, "hospital_lookup_error", AsError(err).Reason)
	})
}

func TestLocate_TooLong(t *testing.T) {
	svc := mustLocation(t, &fakeGeocoder{}, &fakeFinder{}, LocationConfig{MaxMessageLength: 3})
	_, err := svc.Locate(context.Background(), LocationInput{Text: "Medford"})
	require.Equal(t, ErrorInvalidInput, AsError(err).Code)
}

func TestNewLocationService_Validates(t *testing.T) {
	_, err := NewLocationService(nil, &fakeFinder{}, LocationConfig{}, nil)
	require.Error(t, err)
	_, err = NewLocationService(&fakeGeocoder{}, nil, LocationConfig{}, nil)
	require.Error(t, err)
}
