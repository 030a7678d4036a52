package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ecomap-navigation/internal/geo"
	"ecomap-navigation/internal/route"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOptions struct {
	Timeout time.Duration
	// Profile selects the routing profile, e.g. "driving".
	Profile string
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout: 7 * time.Second,
		Profile: "driving",
	}
}

func NewClient(baseURL string, options ...ClientOptions) *Client {
	opts := DefaultClientOptions()
	if len(options) > 0 {
		opts = options[0]
		if opts.Timeout == 0 {
			opts.Timeout = DefaultClientOptions().Timeout
		}
		if opts.Profile == "" {
			opts.Profile = DefaultClientOptions().Profile
		}
	}

	return &Client{
		baseURL:    baseURL + "/route/v1/" + opts.Profile,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// CalculateRoute requests a route between start and end and converts it
// into a segmented, annotated route. When the provider returns no step
// list, instructions are synthesized from the polyline instead.
func (c *Client) CalculateRoute(ctx context.Context, start, end geo.Point) (*Result, error) {
	reqURL, err := url.Parse(fmt.Sprintf("%s/%f,%f;%f,%f",
		c.baseURL, start.Lon, start.Lat, end.Lon, end.Lat))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	query := reqURL.Query()
	query.Set("overview", "full")
	query.Set("geometries", "geojson")
	query.Set("steps", "true")
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var routeResponse RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routeResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(routeResponse.Routes) == 0 {
		return nil, ErrNoRoute
	}

	return buildResult(routeResponse.Routes[0])
}

func buildResult(tr TripResponse) (*Result, error) {
	geometry := make([]geo.Point, 0, len(tr.Geometry.Coordinates))
	for _, c := range tr.Geometry.Coordinates {
		if len(c) < 2 {
			return nil, fmt.Errorf("malformed coordinate in geometry: %v", c)
		}
		geometry = append(geometry, geo.Point{Lon: c[0], Lat: c[1]})
	}

	r := route.New(geometry, tr.Distance, tr.Duration)

	result := &Result{Route: r}
	if len(tr.Legs) > 0 && len(tr.Legs[0].Steps) > 0 {
		result.Steps = providerSteps(tr.Legs[0].Steps)
	} else {
		result.Steps = r.Steps()
		result.Synthesized = true
	}
	return result, nil
}
