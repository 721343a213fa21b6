package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	polyline "github.com/twpayne/go-polyline"

	"github.com/Wbench12/logistic/internal/domain"
	"github.com/Wbench12/logistic/pkg/config"
	"github.com/Wbench12/logistic/pkg/logger"
)

// RouteResult is a point-to-point routing answer. OK is false when the
// values come from the haversine fallback rather than the routing engine.
type RouteResult struct {
	DistanceKm   float64 `json:"distance_km"`
	DurationMin  float64 `json:"duration_min"`
	Polyline     string  `json:"polyline"`
	OK           bool    `json:"ok"`
	FallbackUsed bool    `json:"fallback_used"`
}

// MatrixResult is an n x n travel matrix over the caller's point order.
// Durations are seconds, distances are meters, diagonal is zero.
type MatrixResult struct {
	DurationsS   [][]float64 `json:"durations_s"`
	DistancesM   [][]float64 `json:"distances_m"`
	OK           bool        `json:"ok"`
	FallbackUsed bool        `json:"fallback_used"`
}

// Provider supplies point-to-point routes and N x N travel matrices.
// Implementations must degrade to a deterministic fallback instead of
// failing; only context cancellation surfaces as an error.
type Provider interface {
	Route(ctx context.Context, from, to domain.LatLng, departAt *time.Time) (RouteResult, error)
	Matrix(ctx context.Context, points []domain.LatLng) (MatrixResult, error)
}

// Client talks to a Valhalla routing engine
type Client struct {
	baseURL    string
	costing    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a routing client for the configured Valhalla instance
func NewClient(cfg config.RoutingConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		costing: cfg.Costing,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}
}

type valhallaLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type valhallaDateTime struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type routeRequest struct {
	Locations         []valhallaLocation `json:"locations"`
	Costing           string             `json:"costing"`
	DirectionsOptions struct {
		Units string `json:"units"`
	} `json:"directions_options"`
	DateTime *valhallaDateTime `json:"date_time,omitempty"`
}

type routeResponse struct {
	Trip struct {
		Legs []struct {
			Summary struct {
				Length float64 `json:"length"` // kilometers
				Time   float64 `json:"time"`   // seconds
			} `json:"summary"`
			Shape string `json:"shape"`
		} `json:"legs"`
	} `json:"trip"`
}

type matrixRequest struct {
	Sources []valhallaLocation `json:"sources"`
	Targets []valhallaLocation `json:"targets"`
	Costing string             `json:"costing"`
}

type matrixCell struct {
	Time     *float64 `json:"time"`     // seconds
	Distance *float64 `json:"distance"` // kilometers
}

type matrixResponse struct {
	SourcesToTargets [][]matrixCell `json:"sources_to_targets"`
}

// Route fetches a truck route between two points. Any transport, HTTP, or
// decoding failure degrades to the haversine fallback.
func (c *Client) Route(ctx context.Context, from, to domain.LatLng, departAt *time.Time) (RouteResult, error) {
	if err := ctx.Err(); err != nil {
		return RouteResult{}, err
	}

	req := routeRequest{
		Locations: []valhallaLocation{
			{Lat: from.Lat, Lon: from.Lng},
			{Lat: to.Lat, Lon: to.Lng},
		},
		Costing: c.costing,
	}
	req.DirectionsOptions.Units = "kilometers"
	if departAt != nil {
		req.DateTime = &valhallaDateTime{
			Type:  "departure",
			Value: departAt.Format(time.RFC3339),
		}
	}

	var resp routeResponse
	if err := c.post(ctx, "/route", req, &resp); err != nil {
		if ctx.Err() != nil {
			return RouteResult{}, ctx.Err()
		}
		c.logger.Warnw("Route request failed, using haversine fallback",
			"error", err,
		)
		return fallbackRoute(from, to), nil
	}

	if len(resp.Trip.Legs) == 0 {
		c.logger.Warnw("Route response had no legs, using haversine fallback")
		return fallbackRoute(from, to), nil
	}

	leg := resp.Trip.Legs[0]
	return RouteResult{
		DistanceKm:  leg.Summary.Length,
		DurationMin: leg.Summary.Time / 60.0,
		Polyline:    leg.Shape,
		OK:          true,
	}, nil
}

// Matrix fetches an n x n travel matrix for the given points. Distances are
// normalized to meters; when the engine omits them they are derived from
// durations at the nominal truck speed.
func (c *Client) Matrix(ctx context.Context, points []domain.LatLng) (MatrixResult, error) {
	if err := ctx.Err(); err != nil {
		return MatrixResult{}, err
	}

	locations := make([]valhallaLocation, len(points))
	for i, p := range points {
		locations[i] = valhallaLocation{Lat: p.Lat, Lon: p.Lng}
	}

	req := matrixRequest{
		Sources: locations,
		Targets: locations,
		Costing: c.costing,
	}

	var resp matrixResponse
	if err := c.post(ctx, "/sources_to_targets", req, &resp); err != nil {
		if ctx.Err() != nil {
			return MatrixResult{}, ctx.Err()
		}
		c.logger.Warnw("Matrix request failed, using haversine fallback",
			"locations", len(points),
			"error", err,
		)
		return FallbackMatrix(points), nil
	}

	n := len(points)
	if len(resp.SourcesToTargets) != n {
		c.logger.Warnw("Matrix response shape mismatch, using haversine fallback",
			"expected", n,
			"got", len(resp.SourcesToTargets),
		)
		return FallbackMatrix(points), nil
	}

	durations := make([][]float64, n)
	distances := make([][]float64, n)
	for i := 0; i < n; i++ {
		if len(resp.SourcesToTargets[i]) != n {
			return FallbackMatrix(points), nil
		}
		durations[i] = make([]float64, n)
		distances[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			cell := resp.SourcesToTargets[i][j]
			if cell.Time != nil {
				durations[i][j] = *cell.Time
			}
			if cell.Distance != nil {
				// Valhalla reports kilometers; normalize to meters
				distances[i][j] = *cell.Distance * 1000.0
			} else {
				// Derive from duration at the nominal truck speed
				distances[i][j] = durations[i][j] / 3600.0 * FallbackSpeedKmh * 1000.0
			}
		}
	}

	return MatrixResult{
		DurationsS: durations,
		DistancesM: distances,
		OK:         true,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("routing engine returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// fallbackRoute computes the deterministic great-circle route used when the
// routing engine is unavailable
func fallbackRoute(from, to domain.LatLng) RouteResult {
	distance := HaversineKm(from, to)
	shape := polyline.EncodeCoords([][]float64{
		{from.Lat, from.Lng},
		{to.Lat, to.Lng},
	})
	return RouteResult{
		DistanceKm:   distance,
		DurationMin:  FallbackDurationMin(distance),
		Polyline:     string(shape),
		FallbackUsed: true,
	}
}

// FallbackMatrix computes the deterministic great-circle matrix used when
// the routing engine is unavailable
func FallbackMatrix(points []domain.LatLng) MatrixResult {
	n := len(points)
	durations := make([][]float64, n)
	distances := make([][]float64, n)
	for i := 0; i < n; i++ {
		durations[i] = make([]float64, n)
		distances[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			km := HaversineKm(points[i], points[j])
			distances[i][j] = km * 1000.0
			durations[i][j] = FallbackDurationS(km)
		}
	}
	return MatrixResult{
		DurationsS:   durations,
		DistancesM:   distances,
		FallbackUsed: true,
	}
}
