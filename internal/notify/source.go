package notify

import (
	"context"
	"fmt"

	"grovli-client/internal/api"
)

// APIStatusSource polls the backend's generation status endpoint.
type APIStatusSource struct {
	client *api.Client
}

// NewAPIStatusSource creates a source over the backend client.
func NewAPIStatusSource(client *api.Client) *APIStatusSource {
	return &APIStatusSource{client: client}
}

// Status fetches the job's current status.
func (s *APIStatusSource) Status(ctx context.Context, jobID string) (JobStatus, error) {
	var status JobStatus
	path := fmt.Sprintf("/api/meal-plans/generation/%s/status", jobID)
	if err := s.client.GetJSON(ctx, path, &status); err != nil {
		return JobStatus{}, err
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return status, nil
}
