package timeline

import "time"

// ScanStatus is the lifecycle state of a world scan
type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// Terminal reports whether no further transitions are possible
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

// ManuscriptFailure records one manuscript that could not be validated during a scan
type ManuscriptFailure struct {
	ManuscriptID string `json:"manuscriptId"`
	Error        string `json:"error"`
}

// ScanTask is a snapshot of a background world rescan
type ScanTask struct {
	ID                     string              `json:"id"`
	WorldID                string              `json:"worldId"`
	Status                 ScanStatus          `json:"status"`
	TotalManuscripts       int                 `json:"totalManuscripts"`
	ManuscriptsCompleted   int                 `json:"manuscriptsCompleted"`
	CurrentManuscriptTitle string              `json:"currentManuscriptTitle,omitempty"`
	CurrentStage           string              `json:"currentStage,omitempty"`
	ProgressPercent        float64             `json:"progressPercent"`
	TotalChanges           int                 `json:"totalChanges"`
	Error                  string              `json:"error,omitempty"`
	Failures               []ManuscriptFailure `json:"failures,omitempty"`
	StartedAt              time.Time           `json:"startedAt"`
	CompletedAt            *time.Time          `json:"completedAt,omitempty"`
}
