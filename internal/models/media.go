package models

import "time"

type MediaKind string

const (
	PhotoMedia    MediaKind = "photo"
	DocumentMedia MediaKind = "document"
)

// MediaRecord tracks the processing of one media attachment. It is created
// unprocessed and transitions to processed exactly once, together with the
// analysis text.
type MediaRecord struct {
	ID             string    `json:"id" bson:"record_id"`
	UserID         int64     `json:"user_id" bson:"user_id"`
	FileID         string    `json:"file_id" bson:"file_id"`
	Kind           MediaKind `json:"kind" bson:"kind"`
	FileName       string    `json:"file_name,omitempty" bson:"file_name,omitempty"`
	FileSize       int64     `json:"file_size,omitempty" bson:"file_size,omitempty"`
	MimeType       string    `json:"mime_type,omitempty" bson:"mime_type,omitempty"`
	Processed      bool      `json:"processed" bson:"processed"`
	AnalysisResult string    `json:"analysis_result,omitempty" bson:"analysis_result,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}
