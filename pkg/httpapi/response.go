package httpapi

import (
	"encoding/json"
	"time"

	"github.com/conveyorq/conveyor/pkg/job"
)

// JobResponse is the JSON shape returned by submit and status endpoints.
// Result is emitted raw when the handler produced JSON, otherwise as a
// string.
type JobResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         *job.Error      `json:"error,omitempty"`
}

// ErrorResponse is the JSON shape of a failed API call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewJobResponse projects a job onto its API representation. The payload and
// ownership fields never leave the engine.
func NewJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:            j.ID.String(),
		Name:          j.Name,
		Status:        j.Status.String(),
		RetryCount:    j.RetryCount,
		MaxRetries:    j.MaxRetries,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		LastUpdatedAt: j.LastUpdatedAt,
		Error:         j.Error,
	}
	if len(j.Result) > 0 {
		if json.Valid(j.Result) {
			resp.Result = json.RawMessage(j.Result)
		} else {
			quoted, _ := json.Marshal(string(j.Result))
			resp.Result = json.RawMessage(quoted)
		}
	}
	return resp
}
