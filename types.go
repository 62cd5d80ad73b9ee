package terralens

import (
	"encoding/json"
	"time"
)

// AnalysisType selects how the Earth-observation result is expressed.
type AnalysisType string

const (
	AnalysisAnomaly    AnalysisType = "anomaly"
	AnalysisPercentage AnalysisType = "percentage"
	AnalysisAbsolute   AnalysisType = "absolute"
)

// Geometry is a GeoJSON geometry (Polygon or rectangle outline) in geographic
// coordinates. Coordinates are kept raw; the server interprets them.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// AnalysisRequest holds the parameters for one visualization job.
// Dates use the YYYY-MM-DD wire format; the analysis window may not exceed
// 366 days. Validate reports per-field problems before any network call.
type AnalysisRequest struct {
	RegionName   string       `json:"region_name" validate:"required,max=255"`
	Geometry     *Geometry    `json:"geometry" validate:"required"`
	StartDate    string       `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string       `json:"end_date" validate:"required,datetime=2006-01-02"`
	AnalysisType AnalysisType `json:"analysis_type" validate:"required,oneof=anomaly percentage absolute"`

	// Baseline selection. Defaults to "same-period" server-side when empty.
	BaselineType   string         `json:"baseline_type,omitempty"`
	BaselineConfig map[string]any `json:"baseline_config,omitempty"`
}

// JobState is the client-side lifecycle state of a visualization job.
type JobState string

const (
	StateIdle      JobState = "idle"
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further server events can change the state.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is the authoritative client-side view of one visualization job.
// It is mutated only by the state machine.
type Job struct {
	ID       string   `json:"job_id"`
	State    JobState `json:"status"`
	Progress int      `json:"progress"`
	Message  string   `json:"message"`
}

// EventType is the category of a push-channel message.
type EventType string

const (
	EventProgressUpdate EventType = "progress_update"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"

	// Housekeeping messages from the channel; carried so the transport can
	// recognise and drop them without counting a decode failure.
	eventConnectionEstablished EventType = "connection_established"
	eventPing                  EventType = "ping"
	eventPong                  EventType = "pong"
	eventStatus                EventType = "status"
)

// ProgressEvent is one message on a job's event stream. JobID is stamped by
// the transport so consumers can drop events from a stale subscription.
type ProgressEvent struct {
	Type     EventType `json:"type"`
	JobID    string    `json:"job_id,omitempty"`
	Progress int       `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Statistics are the named numeric metrics of a completed analysis.
type Statistics struct {
	MeanAnomaly      float64 `json:"mean_anomaly"`
	PercentageChange float64 `json:"percentage_change"`
	MinAnomaly       float64 `json:"min_anomaly"`
	MaxAnomaly       float64 `json:"max_anomaly"`
	StdAnomaly       float64 `json:"std_anomaly"`
}

// ResultArtifact is the rendered output of a completed job: the preview image
// plus its statistics. Cached per session by job id.
type ResultArtifact struct {
	JobID      string     `json:"job_id"`
	Image      []byte     `json:"-"`
	Format     string     `json:"format"`
	Statistics Statistics `json:"statistics"`
}

// ExportFormat is a supported export rendering.
type ExportFormat string

const (
	FormatPNG     ExportFormat = "png"
	FormatPDF     ExportFormat = "pdf"
	FormatSVG     ExportFormat = "svg"
	FormatGeoTIFF ExportFormat = "geotiff"
)

// ExportRequest asks the server to render a completed job in a given format.
// Resolution is DPI, 150-600, and does not apply to SVG.
type ExportRequest struct {
	JobID         string       `json:"job_id"`
	Format        ExportFormat `json:"format"`
	Resolution    int          `json:"resolution,omitempty"`
	IncludeLegend bool         `json:"include_legend"`
	PaperSize     string       `json:"paper_size,omitempty"`
}

// --- Wire response types ---

// SubmitResponse is the server's answer to POST /visualization/generate.
type SubmitResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// JobStatus is one polling snapshot from GET /visualization/jobs/{id}/status.
type JobStatus struct {
	JobID               string      `json:"job_id"`
	Status              JobState    `json:"status"`
	Progress            int         `json:"progress"`
	Message             string      `json:"message"`
	CreatedAt           string      `json:"created_at"`
	Statistics          *Statistics `json:"statistics,omitempty"`
	MapPreviewAvailable bool        `json:"map_preview_available"`
}

// JobRecord is the full server-side job row from GET /visualization/jobs/{id}.
type JobRecord struct {
	ID           string         `json:"id"`
	RegionName   string         `json:"region_name"`
	StartDate    string         `json:"start_date"`
	EndDate      string         `json:"end_date"`
	AnalysisType AnalysisType   `json:"analysis_type"`
	Status       JobState       `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message"`
	Statistics   *Statistics    `json:"statistics,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Extra        map[string]any `json:"-"`
}

// Preset is a saved analysis configuration, read-only for this client.
type Preset struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Geometry            *Geometry `json:"geometry"`
	DefaultStartDate    string    `json:"default_start_date,omitempty"`
	DefaultEndDate      string    `json:"default_end_date,omitempty"`
	DefaultAnalysisType string    `json:"default_analysis_type,omitempty"`
	IsPublic            bool      `json:"is_public"`
}

// CreatePresetRequest is the input for Client.CreatePreset.
type CreatePresetRequest struct {
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	Geometry            *Geometry `json:"geometry"`
	DefaultStartDate    string    `json:"default_start_date,omitempty"`
	DefaultEndDate      string    `json:"default_end_date,omitempty"`
	DefaultAnalysisType string    `json:"default_analysis_type,omitempty"`
	IsPublic            bool      `json:"is_public"`
}

// HealthResponse is the output of Client.Health. No authentication required.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
}

// Severity classifies a Notification for the UI layer.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is the single shape in which session-level errors and advisories
// reach the UI layer.
type Notification struct {
	Message  string
	Severity Severity
}

// Notifier receives notifications. Implementations must not block.
type Notifier func(Notification)
