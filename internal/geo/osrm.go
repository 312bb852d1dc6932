package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eventstaff/models"
)

// OSRMClient клиент route-сервиса, совместимого с OSRM.
type OSRMClient struct {
	baseURL string
	profile string
	timeout time.Duration
	client  *http.Client
}

func NewOSRMClient(baseURL, profile string, timeout time.Duration, client *http.Client) *OSRMClient {
	if profile == "" {
		profile = "driving"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OSRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		timeout: timeout,
		client:  client,
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (c *OSRMClient) Route(ctx context.Context, origin, destination models.Coordinates) (Route, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// OSRM принимает координаты в порядке lng,lat
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		c.baseURL, c.profile, origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, fmt.Errorf("build route request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Route{}, fmt.Errorf("read route response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("route provider status %d", resp.StatusCode)
	}

	var out osrmResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Route{}, fmt.Errorf("decode route response: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("%w: code=%s %s", ErrNoRoute, out.Code, out.Message)
	}
	r := out.Routes[0]
	return Route{DistanceKm: r.Distance / 1000, DurationMinutes: r.Duration / 60}, nil
}
