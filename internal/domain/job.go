package domain

import "time"

type JobState string

const (
	JobQueued     JobState = "Queued"
	JobProcessing JobState = "Processing"
	JobCompleted  JobState = "Completed"
	JobFailed     JobState = "Failed"
	// JobCancelled ends a job early. Items already run keep their results.
	JobCancelled  JobState = "Cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
)

// ItemResult records the outcome of one unit of work in a job. A succeeded
// item points at its cached results; a failed item carries the reason.
type ItemResult struct {
	EntityID   string     `json:"entity_id"`
	EntityKind EntityKind `json:"entity_kind"`
	State      ItemState  `json:"state"`
	RiskScore  float64    `json:"risk_score,omitempty"`
	RiskRating RiskRating `json:"risk_rating,omitempty"`
	ResultRefs []string   `json:"result_refs,omitempty"`
	ErrorCode  string     `json:"error_code,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type CalculationJob struct {
	ID               string       `json:"id"`
	SubmittedAt      time.Time    `json:"submitted_at"`
	StartedAt        *time.Time   `json:"started_at,omitempty"`
	FinishedAt       *time.Time   `json:"finished_at,omitempty"`
	ItemIDs          []string     `json:"item_ids"`
	AlgorithmVersion string       `json:"algorithm_version"`
	State            JobState     `json:"state"`
	Items            []ItemResult `json:"items"`
	Error            string       `json:"error,omitempty"`
	ErrorCode        string       `json:"error_code,omitempty"`
	WebhookURL       string       `json:"webhook_url,omitempty"`
	ResultsRef       string       `json:"results_ref,omitempty"`
}

// Failures returns the failed items.
func (j CalculationJob) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range j.Items {
		if it.State == ItemFailed {
			out = append(out, it)
		}
	}
	return out
}

type JobSummary struct {
	Total         int        `json:"total"`
	Succeeded     int        `json:"succeeded"`
	Failed        int        `json:"failed"`
	CriticalCount int        `json:"critical_count"`
	HighCount     int        `json:"high_count"`
	MaxRiskScore  float64    `json:"max_risk_score"`
	MaxRiskEntity string     `json:"max_risk_entity,omitempty"`
	MaxRiskRating RiskRating `json:"max_risk_rating,omitempty"`
}

// JobEvent is the single outbound notification emitted when a job reaches
// a terminal state. Full results stay behind ResultsRef.
type JobEvent struct {
	JobID      string     `json:"job_id"`
	State      JobState   `json:"state"`
	Summary    JobSummary `json:"summary"`
	ResultsRef string     `json:"results_ref"`
	WebhookURL string     `json:"webhook_url,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
