package store

import (
	"time"

	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

// --- Domain types ---
//
// Each type maps to one DynamoDB item or one SQLite row. Keys (PK/SK) are
// added by DynamoStore on write and ignored on read.

// Project groups the photos of one listing.
type Project struct {
	ID        string    `json:"id" dynamodbav:"id"`
	UserID    string    `json:"userId" dynamodbav:"userId"`
	Name      string    `json:"name" dynamodbav:"name"`
	Address   string    `json:"address,omitempty" dynamodbav:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// Image is one uploaded listing photo.
type Image struct {
	ID               string            `json:"id" dynamodbav:"id"`
	ProjectID        string            `json:"projectId" dynamodbav:"projectId"`
	UserID           string            `json:"userId" dynamodbav:"userId"`
	Filename         string            `json:"filename" dynamodbav:"filename"`
	OriginalKey      string            `json:"originalKey" dynamodbav:"originalKey"`
	StagedKey        string            `json:"stagedKey,omitempty" dynamodbav:"stagedKey,omitempty"`
	Status           ImageStatus       `json:"status" dynamodbav:"status"`
	RoomType         roomtype.RoomType `json:"roomType" dynamodbav:"roomType"`
	Width            int               `json:"width" dynamodbav:"width"`
	Height           int               `json:"height" dynamodbav:"height"`
	FileSize         int64             `json:"fileSize" dynamodbav:"fileSize"`
	DetectedFeatures []string          `json:"detectedFeatures,omitempty" dynamodbav:"detectedFeatures,omitempty"`
	CurrentVersionID string            `json:"currentVersionId,omitempty" dynamodbav:"currentVersionId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt" dynamodbav:"updatedAt"`
}

// ImageVersion is one generated staging result for an image.
type ImageVersion struct {
	ID           string    `json:"id" dynamodbav:"id"`
	ImageID      string    `json:"imageId" dynamodbav:"imageId"`
	StagedKey    string    `json:"stagedKey" dynamodbav:"stagedKey"`
	StylePreset  string    `json:"stylePreset" dynamodbav:"stylePreset"`
	CustomPrompt string    `json:"customPrompt,omitempty" dynamodbav:"customPrompt,omitempty"`
	AIModel      string    `json:"aiModel" dynamodbav:"aiModel"`
	Pinned       bool      `json:"pinned" dynamodbav:"pinned"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// ExportFile is one generated file of an MLS export.
type ExportFile struct {
	URL        string `json:"url,omitempty" dynamodbav:"url,omitempty"`
	Filename   string `json:"filename" dynamodbav:"filename"`
	Type       string `json:"type" dynamodbav:"type"` // "original" or "staged"
	Resolution string `json:"resolution" dynamodbav:"resolution"`
	ImageID    string `json:"imageId" dynamodbav:"imageId"`
}

// MLSExport records one export request and its outcome.
type MLSExport struct {
	ID                  string       `json:"id" dynamodbav:"id"`
	ProjectID           string       `json:"projectId" dynamodbav:"projectId"`
	ImageIDs            []string     `json:"imageIds" dynamodbav:"imageIds"`
	Resolutions         []string     `json:"resolutions" dynamodbav:"resolutions"`
	Files               []ExportFile `json:"files,omitempty" dynamodbav:"files,omitempty"`
	Status              ExportStatus `json:"status" dynamodbav:"status"`
	ComplianceValidated bool         `json:"complianceValidated" dynamodbav:"complianceValidated"`
	ArchiveKey          string       `json:"archiveKey,omitempty" dynamodbav:"archiveKey,omitempty"`
	ArchiveName         string       `json:"archiveName,omitempty" dynamodbav:"archiveName,omitempty"`
	Error               string       `json:"error,omitempty" dynamodbav:"error,omitempty"`
	CreatedAt           time.Time    `json:"createdAt" dynamodbav:"createdAt"`
	CompletedAt         time.Time    `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
}
