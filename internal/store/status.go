package store

import "fmt"

// ImageStatus is the lifecycle state of a listing image.
type ImageStatus string

const (
	StatusUploaded   ImageStatus = "uploaded"
	StatusProcessing ImageStatus = "processing"
	StatusStaged     ImageStatus = "staged"
	StatusApproved   ImageStatus = "approved"
	StatusExported   ImageStatus = "exported"
)

var allImageStatuses = []ImageStatus{
	StatusUploaded,
	StatusProcessing,
	StatusStaged,
	StatusApproved,
	StatusExported,
}

var imageStatusSet = func() map[ImageStatus]struct{} {
	set := make(map[ImageStatus]struct{}, len(allImageStatuses))
	for _, status := range allImageStatuses {
		set[status] = struct{}{}
	}
	return set
}()

type statusTransition struct {
	from ImageStatus
	to   ImageStatus
}

// allowedTransitions is the complete transition table. Anything not listed
// is rejected. A new version on an approved or exported image drops it back
// to staged because the approval referred to a different version.
var allowedTransitions = map[statusTransition]struct{}{
	{from: StatusUploaded, to: StatusProcessing}: {},
	{from: StatusUploaded, to: StatusStaged}:     {},
	{from: StatusProcessing, to: StatusStaged}:   {},
	{from: StatusProcessing, to: StatusUploaded}: {},
	{from: StatusStaged, to: StatusApproved}:     {},
	{from: StatusStaged, to: StatusExported}:     {},
	{from: StatusApproved, to: StatusExported}:   {},
	{from: StatusApproved, to: StatusStaged}:     {},
	{from: StatusExported, to: StatusStaged}:     {},
	{from: StatusExported, to: StatusExported}:   {},
	{from: StatusStaged, to: StatusStaged}:       {},
}

// ParseImageStatus validates a stored or user-supplied status string.
func ParseImageStatus(s string) (ImageStatus, error) {
	status := ImageStatus(s)
	if _, ok := imageStatusSet[status]; !ok {
		return "", fmt.Errorf("unknown image status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the defined statuses.
func (s ImageStatus) Valid() bool {
	_, ok := imageStatusSet[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ImageStatus) CanTransitionTo(next ImageStatus) bool {
	_, ok := allowedTransitions[statusTransition{from: s, to: next}]
	return ok
}

// HasStagedResult reports whether an image in this status has at least one
// generated version to export.
func (s ImageStatus) HasStagedResult() bool {
	switch s {
	case StatusStaged, StatusApproved, StatusExported:
		return true
	case StatusUploaded, StatusProcessing:
		return false
	}
	return false
}

// ExportStatus is the state of an MLS export job.
type ExportStatus string

const (
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
)

// Terminal reports whether the export will not change again.
func (s ExportStatus) Terminal() bool {
	return s == ExportCompleted || s == ExportFailed
}
