package models

// Status is the final state of one attempted asset.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Outcome is one audit row per attempted asset.
type Outcome struct {
	AssetID        string
	Original       string
	OriginalSize   int64
	CompressedSize int64
	Status         Status
	Detail         string
}

// Label renders the status column, e.g. "done" or "error:upload failed".
func (o Outcome) Label() string {
	if o.Status == StatusError {
		return string(StatusError) + ":" + o.Detail
	}
	return string(o.Status)
}
