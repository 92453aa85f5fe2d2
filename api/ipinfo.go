package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"farmersaid/config"
	"farmersaid/internal/logger"
)

const (
	sourceIPInfo = "ipinfo"

	// Unknown fills any location field the lookup could not resolve
	Unknown = "Unknown"
)

// Place is a resolved location
type Place struct {
	City      string `json:"city"`
	Country   string `json:"country"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// UnknownPlace is used when geolocation fails
var UnknownPlace = Place{City: Unknown, Country: Unknown, Latitude: Unknown, Longitude: Unknown}

// Query returns the "City,Country" string used for pollen lookups
func (p Place) Query() string {
	return p.City + "," + p.Country
}

// PlaceFromConfig returns the pinned location, if any
func PlaceFromConfig(loc config.Location) (Place, bool) {
	if strings.TrimSpace(loc.City) == "" {
		return Place{}, false
	}
	p := Place{
		City:      loc.City,
		Country:   loc.Country,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}
	if p.Country == "" {
		p.Country = Unknown
	}
	return p, true
}

// GeoClient resolves the caller's location from its public IP address
type GeoClient struct {
	client *resty.Client
	token  string
}

// NewGeoClient creates an ipinfo client from the application config
func NewGeoClient(cfg *config.Config) *GeoClient {
	return &GeoClient{
		client: newRestClient(sourceIPInfo, cfg.Endpoints.IPInfo),
		token:  cfg.APIs.IPInfo,
	}
}

type ipinfoResponse struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Loc     string `json:"loc"`
}

// Lookup resolves the current location. Fields the response lacks are set
// to Unknown; an unparseable loc leaves both coordinates Unknown.
func (g *GeoClient) Lookup(ctx context.Context) Outcome[Place] {
	complete := logger.LogOperationStart("ip_lookup", nil)

	body, err := fetch(ctx, g.client, request{
		source:    sourceIPInfo,
		operation: "lookup",
		path:      "",
		query:     map[string]string{"token": g.token},
	})
	if err != nil {
		complete(err)
		return Unavailable[Place](err)
	}

	var resp ipinfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("failed to decode ip lookup: %w", err)
		complete(err)
		return Empty[Place](err)
	}
	complete(nil)

	place := UnknownPlace
	if resp.City != "" {
		place.City = resp.City
	}
	if resp.Country != "" {
		place.Country = CountryName(resp.Country)
	}
	if lat, lon, ok := strings.Cut(resp.Loc, ","); ok {
		place.Latitude = strings.TrimSpace(lat)
		place.Longitude = strings.TrimSpace(lon)
	}

	if place == UnknownPlace {
		return Empty[Place](fmt.Errorf("ip lookup returned no location"))
	}
	return OK(place)
}

// CountryName expands an ISO 3166-1 alpha-2 code to its English name
func CountryName(code string) string {
	region, err := language.ParseRegion(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil || !region.IsCountry() {
		return Unknown
	}
	name := display.English.Regions().Name(region)
	if name == "" {
		return Unknown
	}
	return name
}
