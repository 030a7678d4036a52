package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ecomap-navigation/internal/geo"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOptions struct {
	Timeout time.Duration
	// Limit caps the number of suggestions per search.
	Limit int
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout: 7 * time.Second,
		Limit:   8,
	}
}

func NewClient(baseURL string, options ...ClientOptions) *Client {
	opts := DefaultClientOptions()
	if len(options) > 0 {
		opts = options[0]
		if opts.Timeout == 0 {
			opts.Timeout = DefaultClientOptions().Timeout
		}
		if opts.Limit == 0 {
			opts.Limit = DefaultClientOptions().Limit
		}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// Place is one geocoding result with parsed coordinates and a category
// from the fixed vocabulary.
type Place struct {
	DisplayName string
	Name        string
	Type        string
	Coordinates geo.Point
	Category    string
}

// placeResponse mirrors the provider's wire format. Coordinates arrive as
// strings.
type placeResponse struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Class       string `json:"class"`
	Lon         string `json:"lon"`
	Lat         string `json:"lat"`
}

// Search geocodes a free-text query into place suggestions.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	reqURL, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := reqURL.Query()
	q.Set("format", "json")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(DefaultClientOptions().Limit))
	q.Set("addressdetails", "1")
	reqURL.RawQuery = q.Encode()

	var results []placeResponse
	if err := c.get(ctx, reqURL.String(), &results); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		place, err := r.toPlace()
		if err != nil {
			continue
		}
		places = append(places, place)
	}
	return places, nil
}

// Reverse resolves coordinates into the nearest known place.
func (c *Client) Reverse(ctx context.Context, p geo.Point) (*Place, error) {
	reqURL, err := url.Parse(c.baseURL + "/reverse")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := reqURL.Query()
	q.Set("format", "json")
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	reqURL.RawQuery = q.Encode()

	var result placeResponse
	if err := c.get(ctx, reqURL.String(), &result); err != nil {
		return nil, err
	}

	place, err := result.toPlace()
	if err != nil {
		return nil, fmt.Errorf("malformed reverse geocoding result: %w", err)
	}
	return &place, nil
}

func (c *Client) get(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (r placeResponse) toPlace() (Place, error) {
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("parsing longitude %q: %w", r.Lon, err)
	}
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("parsing latitude %q: %w", r.Lat, err)
	}

	name := r.Name
	if name == "" {
		name = firstSegment(r.DisplayName)
	}

	return Place{
		DisplayName: r.DisplayName,
		Name:        name,
		Type:        r.Type,
		Coordinates: geo.Point{Lon: lon, Lat: lat},
		Category:    CategoryFor(r.Type, r.Class),
	}, nil
}

func firstSegment(displayName string) string {
	for i := 0; i < len(displayName); i++ {
		if displayName[i] == ',' {
			return displayName[:i]
		}
	}
	return displayName
}

// CategoryFor maps provider type/class pairs onto the fixed category
// vocabulary. First matching rule wins; unknown pairs are a generic Place.
func CategoryFor(placeType, class string) string {
	switch placeType {
	case "city", "town", "village":
		return "City"
	case "country":
		return "Country"
	case "state", "province":
		return "State"
	}
	switch class {
	case "amenity":
		return "Amenity"
	case "tourism":
		return "Tourism"
	case "shop":
		return "Shop"
	case "highway":
		return "Street"
	case "building":
		return "Building"
	}
	return "Place"
}
