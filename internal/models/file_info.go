package models

import "time"

// FileInfo represents metadata about an uploaded source document.
type FileInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	Size       int64     `json:"size" msgpack:"size"`
	UploadedAt time.Time `json:"uploadedAt" msgpack:"uploadedAt"`
}
