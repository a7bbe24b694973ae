package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

func defaultResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(lexicon.Default().Locations())
	if err != nil {
		t.Fatalf("NewResolver(default) err = %v", err)
	}
	return r
}

func TestResolve(t *testing.T) {
	r := defaultResolver(t)

	tests := []struct {
		name      string
		text      string
		want      string
		method    model.MatchMethod
		ambiguous bool
	}{
		{"alias", "Film the planes at Schiphol", "Amsterdam Schiphol Airport", model.MatchAlias, false},
		{"city alias", "meet me in amsterdam", "Amsterdam Schiphol Airport", model.MatchAlias, false},
		{"canonical", "Drones seen over Volkel Air Base", "Volkel Air Base", model.MatchCanonical, false},
		{"canonical beats alias", "Drone near Amsterdam Schiphol Airport", "Amsterdam Schiphol Airport", model.MatchCanonical, false},
		{"case insensitive", "VOLKEL", "Volkel Air Base", model.MatchAlias, false},
		{"word boundary", "Schipholweg is busy", "", "", false},
		{"nothing", "a quiet afternoon", "", "", false},
		{"longest wins", "drones over volkel and schiphol", "Amsterdam Schiphol Airport", model.MatchAlias, true},
		{"equal length smallest name", "volkel or munich", "Munich Airport", model.MatchAlias, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.text)
			if res.Place.Name != tt.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tt.text, res.Place.Name, tt.want)
			}
			if res.Method != tt.method {
				t.Errorf("Method = %q, want %q", res.Method, tt.method)
			}
			if res.Ambiguous != tt.ambiguous {
				t.Errorf("Ambiguous = %v, want %v (candidates %v)", res.Ambiguous, tt.ambiguous, res.Candidates)
			}
			if tt.ambiguous && !errors.Is(res.Err(), ErrAmbiguousLocation) {
				t.Errorf("Err() = %v, want ErrAmbiguousLocation", res.Err())
			}
			if !tt.ambiguous && res.Err() != nil {
				t.Errorf("Err() = %v, want nil", res.Err())
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := defaultResolver(t)
	text := "volkel, kastrup, borssele, eindhoven"
	first := r.Resolve(text)
	for i := 0; i < 20; i++ {
		if got := r.Resolve(text); got.Place.Name != first.Place.Name || got.Term != first.Term {
			t.Fatalf("Resolve not deterministic: %q vs %q", got.Place.Name, first.Place.Name)
		}
	}
}

func TestNewResolverCollision(t *testing.T) {
	tests := []struct {
		name string
		locs []lexicon.Location
	}{
		{"shared alias", []lexicon.Location{
			{Name: "Rotterdam The Hague Airport", Kind: model.LocationAirport, Aliases: []string{"rotterdam"}},
			{Name: "Port of Rotterdam", Kind: model.LocationPort, Aliases: []string{"Rotterdam"}},
		}},
		{"alias equals other canonical", []lexicon.Location{
			{Name: "Eindhoven Airport", Kind: model.LocationAirport},
			{Name: "Volkel Air Base", Kind: model.LocationMilitary, Aliases: []string{"eindhoven airport"}},
		}},
		{"duplicate location", []lexicon.Location{
			{Name: "Volkel Air Base", Kind: model.LocationMilitary},
			{Name: "Volkel Air Base", Kind: model.LocationMilitary},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewResolver(tt.locs); !errors.Is(err, ErrAliasCollision) {
				t.Fatalf("NewResolver() err = %v, want ErrAliasCollision", err)
			}
		})
	}
}

func TestNewResolverRepeatedAliasSameLocation(t *testing.T) {
	_, err := NewResolver([]lexicon.Location{
		{Name: "Volkel Air Base", Kind: model.LocationMilitary, Aliases: []string{"volkel", "Volkel", "volkel air base"}},
	})
	if err != nil {
		t.Fatalf("NewResolver() err = %v, want nil", err)
	}
}

func TestDistance(t *testing.T) {
	schiphol := model.Coordinates{Lat: 52.3105, Lon: 4.7683}
	eindhoven := model.Coordinates{Lat: 51.4501, Lon: 5.3745}
	d := Distance(schiphol, eindhoven)
	if math.Abs(d-104) > 3 {
		t.Errorf("Distance(Schiphol, Eindhoven) = %.1f km, want about 104", d)
	}
	if Distance(schiphol, schiphol) != 0 {
		t.Error("Distance to self should be 0")
	}
}

func TestNearest(t *testing.T) {
	r := defaultResolver(t)

	res := r.Nearest(52.30, 4.76, DefaultRadiusKm)
	if res.Place.Name != "Amsterdam Schiphol Airport" || res.Method != model.MatchCoordinates {
		t.Errorf("Nearest(near Schiphol) = %+v", res)
	}
	if res := r.Nearest(40.0, -3.7, DefaultRadiusKm); res.OK() {
		t.Errorf("Nearest(Madrid) = %q, want no match", res.Place.Name)
	}
}
