package terralens

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userAgent = "terralens-go/0.3.0"

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the TerraLens API (e.g. "https://api.terralens.io").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration

	// SessionID identifies this client session on every request. A random
	// UUID is generated when nil.
	SessionID *uuid.UUID
}

// Client is an HTTP client for the TerraLens visualization API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL   string
	client    *http.Client
	sessionID uuid.UUID
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("terralens: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	sessionID := uuid.New()
	if cfg.SessionID != nil {
		sessionID = *cfg.SessionID
	}

	return &Client{
		baseURL:   baseURL,
		client:    httpClient,
		sessionID: sessionID,
	}, nil
}

// BaseURL returns the configured API root, without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// WebSocketURL returns the push-channel endpoint for a job, derived from the
// base URL with the scheme switched to ws/wss.
func (c *Client) WebSocketURL(jobID string) string {
	wsBase := c.baseURL
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	return wsBase + "/ws/visualization-jobs/" + url.PathEscape(jobID)
}

// Submit validates the request locally and, if it passes, starts a new
// visualization job. The returned ValidationErrors never involve a network
// call; server rejections surface as a single *Error.
func (c *Client) Submit(ctx context.Context, req AnalysisRequest) (*SubmitResponse, error) {
	if verrs := req.Validate(); verrs != nil {
		return nil, verrs
	}
	var resp SubmitResponse
	if err := c.post(ctx, "/visualization/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the current status of a job. Used by the polling fallback
// and available for manual refresh.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	var resp JobStatus
	if err := c.get(ctx, "/visualization/jobs/"+url.PathEscape(jobID)+"/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Job retrieves the full job record including parameters and results.
func (c *Client) Job(ctx context.Context, jobID string) (*JobRecord, error) {
	var resp JobRecord
	if err := c.get(ctx, "/visualization/jobs/"+url.PathEscape(jobID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobsOptions are optional filters for the Jobs method.
type JobsOptions struct {
	Limit  int
	Status JobState
}

// Jobs lists this user's jobs, most recent first.
func (c *Client) Jobs(ctx context.Context, opts *JobsOptions) ([]JobRecord, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Status != "" {
			params.Set("status_filter", string(opts.Status))
		}
	}

	path := "/visualization/jobs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp []JobRecord
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CancelJob asks the server to cancel a pending or running job. The server
// rejects cancellation of terminal jobs with a 400.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.post(ctx, "/visualization/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

// previewResponse is the wire format of GET /visualization/jobs/{id}/preview.
// The image arrives base64-encoded.
type previewResponse struct {
	JobID      string     `json:"job_id"`
	ImageData  string     `json:"image_data"`
	Format     string     `json:"format"`
	Statistics Statistics `json:"statistics"`
}

// Preview fetches the rendered map preview and statistics for a completed job.
// The read is idempotent; callers cache the artifact per session.
func (c *Client) Preview(ctx context.Context, jobID string) (*ResultArtifact, error) {
	var resp previewResponse
	if err := c.get(ctx, "/visualization/jobs/"+url.PathEscape(jobID)+"/preview", &resp); err != nil {
		return nil, err
	}

	image, err := base64.StdEncoding.DecodeString(resp.ImageData)
	if err != nil {
		return nil, fmt.Errorf("terralens: decode preview image: %w", err)
	}

	return &ResultArtifact{
		JobID:      resp.JobID,
		Image:      image,
		Format:     resp.Format,
		Statistics: resp.Statistics,
	}, nil
}

// Export renders a completed job in the requested format and returns the
// binary payload. Concurrent exports with different format/resolution are
// fine; the server treats each combination as a deterministic rendering.
func (c *Client) Export(ctx context.Context, req ExportRequest) ([]byte, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("terralens: marshal export request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/visualization/export", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("terralens: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("terralens: POST /visualization/export: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("terralens: read export body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// Presets retrieves the public analysis presets, most used first.
func (c *Client) Presets(ctx context.Context) ([]Preset, error) {
	var resp []Preset
	if err := c.get(ctx, "/visualization/presets", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreatePreset saves a new analysis preset.
func (c *Client) CreatePreset(ctx context.Context, req CreatePresetRequest) (*Preset, error) {
	var resp Preset
	if err := c.post(ctx, "/visualization/presets", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// normalize applies export defaults and bounds-checks the resolution.
func (r *ExportRequest) normalize() error {
	switch r.Format {
	case FormatPNG, FormatPDF, FormatSVG, FormatGeoTIFF:
	default:
		return fmt.Errorf("terralens: unsupported export format %q", r.Format)
	}

	if r.Format == FormatSVG {
		r.Resolution = 0 // DPI does not apply to vector output
	} else {
		if r.Resolution == 0 {
			r.Resolution = 300
		}
		if r.Resolution < 150 || r.Resolution > 600 {
			return fmt.Errorf("terralens: export resolution %d outside 150-600 DPI", r.Resolution)
		}
	}

	if r.PaperSize == "" {
		r.PaperSize = "A4"
	}
	switch r.PaperSize {
	case "A4", "A3", "Letter", "Legal":
	default:
		return fmt.Errorf("terralens: unsupported paper size %q", r.PaperSize)
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiError is the server's error body shape.
type apiError struct {
	Detail string `json:"detail"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("terralens: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("terralens: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("terralens: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Terralens-Session", c.sessionID.String())
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	c.setCommonHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("terralens: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("terralens: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, body)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("terralens: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var wire apiError
	if err := json.Unmarshal(body, &wire); err == nil && wire.Detail != "" {
		apiErr.Message = wire.Detail
	} else {
		apiErr.Message = http.StatusText(statusCode)
		if len(body) > 0 {
			apiErr.Message = string(body)
		}
	}
	return apiErr
}
