package models

import "time"

// Step is a wizard step.
type Step string

const (
	StepWelcome Step = "welcome"
	StepForm    Step = "form"
	StepUpload  Step = "upload"
)

// Session is the client-visible state of one wizard run.
type Session struct {
	ID             string           `json:"id" msgpack:"id"`
	Step           Step             `json:"step" msgpack:"step"`
	Form           MeetingForm      `json:"form" msgpack:"form"`
	Files          []FileInfo       `json:"files" msgpack:"files"`
	Records        []AnalyzedRecord `json:"records" msgpack:"records"`
	FileSetVersion int              `json:"fileSetVersion" msgpack:"fileSetVersion"`
	Analyzing      bool             `json:"analyzing" msgpack:"analyzing"`
	Processed      int              `json:"processed" msgpack:"processed"`
	Generating     bool             `json:"generating" msgpack:"generating"`
	LastError      string           `json:"lastError,omitempty" msgpack:"lastError,omitempty"`
	CreatedAt      time.Time        `json:"createdAt" msgpack:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt" msgpack:"updatedAt"`
}

// Busy reports whether a background operation owns the session.
func (s *Session) Busy() bool {
	return s.Analyzing || s.Generating
}
