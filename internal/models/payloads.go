package models

// These structs define the JSON payloads accepted by the function triggers
// and returned once a run completes.

// RunRequest carries per-invocation overrides for a compression run.
type RunRequest struct {
	DryRun      bool `json:"dryRun"`
	RecordLimit int  `json:"recordLimit"`
}

// RunResponse is returned by the HTTP trigger after a run.
type RunResponse struct {
	Status            string  `json:"status"`
	RunID             string  `json:"runId"`
	Done              int     `json:"done"`
	Failures          int     `json:"failures"`
	OriginalMB        float64 `json:"originalMb"`
	CompressedMB      float64 `json:"compressedMb"`
	SavedMB           float64 `json:"savedMb"`
	EfficiencyPercent float64 `json:"efficiencyPercent"`
	Error             string  `json:"error,omitempty"`
}

// PubSubMessage is the CloudEvent data of a Pub/Sub trigger.
// Message.Data holds a JSON-encoded RunRequest, or is empty.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
}
