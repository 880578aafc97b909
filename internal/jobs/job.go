package jobs

import "time"

// Status tracks a job through its lifecycle. A job starts running and
// transitions exactly once to succeeded or failed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Reserved terminal phases. Workflows define their own phase vocabulary;
// these two are synthesized by the store on completion and must not be
// emitted by orchestrators.
const (
	PhaseComplete = "complete"
	PhaseError    = "error"
)

// ProgressMessage is one entry in a job's append-only progress trace.
type ProgressMessage struct {
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	Step      string    `json:"step,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether the message marks the end of a job's stream.
func (m ProgressMessage) Terminal() bool {
	return m.Phase == PhaseComplete || m.Phase == PhaseError
}

// Result is the structured payload attached when a job completes. DWG and
// PNG carry raw artifact bytes and are moved onto the job record; they are
// never serialized.
type Result struct {
	DWGFile     string   `json:"dwg_file,omitempty"`
	PNGFile     string   `json:"png_file,omitempty"`
	OutputURL   string   `json:"output_url,omitempty"`
	DriveLinks  []string `json:"drive_links,omitempty"`
	Model       string   `json:"model,omitempty"`
	Attempts    int      `json:"attempts,omitempty"`
	CostUSD     float64  `json:"cost_usd,omitempty"`
	CostEUR     float64  `json:"cost_eur,omitempty"`
	CostDisplay string   `json:"cost_display,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	DWG []byte `json:"-"`
	PNG []byte `json:"-"`
}

// Job is one tracked generation run. Instances handed out by the store are
// snapshots; mutation happens only inside the store under its lock.
type Job struct {
	ID          string
	Label       string
	Status      Status
	Messages    []ProgressMessage
	Result      *Result
	DWG         []byte
	PNG         []byte
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status != StatusRunning
}
