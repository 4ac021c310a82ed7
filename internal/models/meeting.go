package models

// MeetingForm holds the meeting metadata typed on the form step.
// Values are kept as entered; numbers are only parsed at generation time.
type MeetingForm struct {
	Date                string `json:"date" msgpack:"date"`
	MeetingNumber       string `json:"meetingNumber" msgpack:"meetingNumber"`
	ProtocolCount       string `json:"protocolCount" msgpack:"protocolCount"`
	FirstProtocolNumber string `json:"firstProtocolNumber" msgpack:"firstProtocolNumber"`
}

// FormPatch is a partial update of MeetingForm. Nil fields are left untouched.
type FormPatch struct {
	Date                *string `json:"date,omitempty"`
	MeetingNumber       *string `json:"meetingNumber,omitempty"`
	ProtocolCount       *string `json:"protocolCount,omitempty"`
	FirstProtocolNumber *string `json:"firstProtocolNumber,omitempty"`
}

// Apply merges the non-nil fields of p into f and returns the result.
func (p FormPatch) Apply(f MeetingForm) MeetingForm {
	if p.Date != nil {
		f.Date = *p.Date
	}
	if p.MeetingNumber != nil {
		f.MeetingNumber = *p.MeetingNumber
	}
	if p.ProtocolCount != nil {
		f.ProtocolCount = *p.ProtocolCount
	}
	if p.FirstProtocolNumber != nil {
		f.FirstProtocolNumber = *p.FirstProtocolNumber
	}
	return f
}

// Empty reports whether the patch changes nothing.
func (p FormPatch) Empty() bool {
	return p.Date == nil && p.MeetingNumber == nil && p.ProtocolCount == nil && p.FirstProtocolNumber == nil
}
