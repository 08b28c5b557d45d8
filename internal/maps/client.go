package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// Client is the mapping collaborator consumed by the pipeline: road
// snapping, imagery metadata, image rendering and geocoding. All methods
// retry transient failures internally with exponential backoff.
type Client interface {
	// SnapToRoad returns the nearest drivable road position for a point,
	// or ErrNotFound when no road is within snapping range.
	SnapToRoad(ctx context.Context, pt spatial.Point) (models.RoadPosition, error)

	// ImageryMetadata reports whether street-level imagery exists at the
	// viewpoint's camera position.
	ImageryMetadata(ctx context.Context, vp models.Viewpoint) (Metadata, error)

	// RenderImage returns an image reference for the viewpoint. panoID, if
	// known, pins the render to a specific panorama.
	RenderImage(ctx context.Context, vp models.Viewpoint, panoID string) (string, error)

	// GeocodeRefine snaps a raw target onto the provider's best-known
	// location for the building (home-center snapping).
	GeocodeRefine(ctx context.Context, target models.TargetLocation) (models.TargetLocation, error)

	// ReverseGeocode returns a formatted address for the target, or "" when
	// the provider has none.
	ReverseGeocode(ctx context.Context, target models.TargetLocation) (string, error)
}

// Metadata is the imagery-metadata response for one viewpoint.
type Metadata struct {
	Available bool
	PanoID    string
	Date      string
}

// Sentinel errors.
var (
	// ErrNotFound means the provider has no road / imagery / address for the
	// queried location. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrFatal is a non-retryable collaborator failure (bad credentials,
	// malformed request). Terminal for the whole run.
	ErrFatal = errors.New("fatal collaborator error")
)

// HTTPClient talks to the mapping provider's REST endpoints.
type HTTPClient struct {
	apiKey         string
	roadsBaseURL   string
	imageryBaseURL string
	geocodeBaseURL string
	imageSize      string
	metadataRadius int

	httpClient *http.Client
	maxRetries uint64
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBaseURLs overrides the provider endpoints, used by tests.
func WithBaseURLs(roads, imagery, geocode string) Option {
	return func(c *HTTPClient) {
		c.roadsBaseURL = roads
		c.imageryBaseURL = imagery
		c.geocodeBaseURL = geocode
	}
}

// WithMaxRetries sets the transient-error retry cap.
func WithMaxRetries(n uint64) Option {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates a mapping client for the given API key.
func NewHTTPClient(apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		apiKey:         apiKey,
		roadsBaseURL:   "https://roads.googleapis.com/v1",
		imageryBaseURL: "https://maps.googleapis.com/maps/api/streetview",
		geocodeBaseURL: "https://maps.googleapis.com/maps/api/geocode",
		imageSize:      "640x640",
		metadataRadius: 50,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		maxRetries:     3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON issues a GET with retry/backoff and decodes the body into out.
// 4xx responses other than 429 are permanent; 429 and 5xx are retried.
func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrFatal, err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			if err := json.Unmarshal(body, out); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrFatal, err))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("provider returned %d", resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: provider returned %d", ErrFatal, resp.StatusCode))
		default:
			return backoff.Permanent(fmt.Errorf("%w: provider returned %d", ErrFatal, resp.StatusCode))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

type nearestRoadsResponse struct {
	SnappedPoints []struct {
		Location struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		PlaceID string `json:"placeId"`
	} `json:"snappedPoints"`
}

// SnapToRoad queries the nearest-roads endpoint for a single point.
func (c *HTTPClient) SnapToRoad(ctx context.Context, pt spatial.Point) (models.RoadPosition, error) {
	q := url.Values{}
	q.Set("points", fmt.Sprintf("%f,%f", pt.Lat, pt.Lon))
	q.Set("key", c.apiKey)

	var resp nearestRoadsResponse
	if err := c.getJSON(ctx, c.roadsBaseURL+"/nearestRoads?"+q.Encode(), &resp); err != nil {
		return models.RoadPosition{}, fmt.Errorf("snap to road: %w", err)
	}
	if len(resp.SnappedPoints) == 0 {
		return models.RoadPosition{}, fmt.Errorf("snap to road (%f,%f): %w", pt.Lat, pt.Lon, ErrNotFound)
	}

	sp := resp.SnappedPoints[0]
	return models.RoadPosition{
		Lat:       sp.Location.Latitude,
		Lon:       sp.Location.Longitude,
		SegmentID: sp.PlaceID,
	}, nil
}

type metadataResponse struct {
	Status string `json:"status"`
	PanoID string `json:"pano_id"`
	Date   string `json:"date"`
}

// ImageryMetadata checks street-level coverage at the viewpoint's camera
// position.
func (c *HTTPClient) ImageryMetadata(ctx context.Context, vp models.Viewpoint) (Metadata, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", vp.CameraLat, vp.CameraLon))
	q.Set("source", "outdoor")
	q.Set("radius", fmt.Sprintf("%d", c.metadataRadius))
	q.Set("key", c.apiKey)

	var resp metadataResponse
	if err := c.getJSON(ctx, c.imageryBaseURL+"/metadata?"+q.Encode(), &resp); err != nil {
		return Metadata{}, fmt.Errorf("imagery metadata: %w", err)
	}

	return Metadata{
		Available: resp.Status == "OK",
		PanoID:    resp.PanoID,
		Date:      resp.Date,
	}, nil
}

// RenderImage builds the static-imagery URL for a viewpoint. The URL itself
// is the image reference handed to the oracle; no bytes are downloaded here.
func (c *HTTPClient) RenderImage(_ context.Context, vp models.Viewpoint, panoID string) (string, error) {
	q := url.Values{}
	q.Set("size", c.imageSize)
	q.Set("heading", fmt.Sprintf("%.1f", vp.Heading))
	q.Set("pitch", fmt.Sprintf("%.1f", vp.Pitch))
	q.Set("fov", fmt.Sprintf("%.1f", vp.FOV))
	q.Set("key", c.apiKey)
	if panoID != "" {
		q.Set("pano", panoID)
	} else {
		q.Set("location", fmt.Sprintf("%f,%f", vp.CameraLat, vp.CameraLon))
	}
	return c.imageryBaseURL + "?" + q.Encode(), nil
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// GeocodeRefine reverse-geocodes the target and returns the provider's
// location for the nearest address, which centers the target on the
// building rather than the parcel.
func (c *HTTPClient) GeocodeRefine(ctx context.Context, target models.TargetLocation) (models.TargetLocation, error) {
	resp, err := c.reverseGeocode(ctx, target)
	if err != nil {
		return models.TargetLocation{}, err
	}
	if len(resp.Results) == 0 {
		return models.TargetLocation{}, fmt.Errorf("geocode refine (%f,%f): %w", target.Lat, target.Lon, ErrNotFound)
	}
	loc := resp.Results[0].Geometry.Location
	return models.TargetLocation{Lat: loc.Lat, Lon: loc.Lng}, nil
}

// ReverseGeocode returns the formatted address of the target.
func (c *HTTPClient) ReverseGeocode(ctx context.Context, target models.TargetLocation) (string, error) {
	resp, err := c.reverseGeocode(ctx, target)
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("reverse geocode (%f,%f): %w", target.Lat, target.Lon, ErrNotFound)
	}
	return resp.Results[0].FormattedAddress, nil
}

func (c *HTTPClient) reverseGeocode(ctx context.Context, target models.TargetLocation) (*geocodeResponse, error) {
	q := url.Values{}
	q.Set("latlng", fmt.Sprintf("%f,%f", target.Lat, target.Lon))
	q.Set("key", c.apiKey)

	var resp geocodeResponse
	if err := c.getJSON(ctx, c.geocodeBaseURL+"/json?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}
	if resp.Status != "OK" && resp.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("reverse geocode: provider status %s", resp.Status)
	}
	return &resp, nil
}
