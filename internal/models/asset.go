package models

import "time"

// TargetAsset describes where a fetched image is stored inside the vault.
type TargetAsset struct {
	BaseName  string `json:"base_name"`
	Extension string `json:"extension"`
	Folder    string `json:"folder"`
	FullPath  string `json:"full_path"`
}

// FileName returns the bare file name (base name plus extension).
func (a TargetAsset) FileName() string {
	return a.BaseName + a.Extension
}

// Run outcomes.
const (
	OutcomeSorted  = "sorted"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Run is one recorded pipeline pass over a note.
type Run struct {
	ID         string    `json:"id"`
	NotePath   string    `json:"note_path"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	TargetPath string    `json:"target_path,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
