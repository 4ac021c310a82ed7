package models

import "github.com/goccy/go-json"

// ServiceType is the service condition detected in a source document.
type ServiceType string

const (
	ServiceContract     ServiceType = "contract"
	ServiceMobilization ServiceType = "mobilization"
	ServiceUnknown      ServiceType = "unknown"
)

// AnalysisFailed is the error text stored on records whose analysis failed.
const AnalysisFailed = "analysis failed"

// RecordFields are the values extracted from one source document.
type RecordFields struct {
	FIO                 string      `json:"fio,omitempty" msgpack:"fio,omitempty"`
	BirthDate           string      `json:"birthDate,omitempty" msgpack:"birthDate,omitempty"`
	Rank                string      `json:"rank,omitempty" msgpack:"rank,omitempty"`
	Position            string      `json:"position,omitempty" msgpack:"position,omitempty"`
	MilitaryUnit        string      `json:"militaryUnit,omitempty" msgpack:"militaryUnit,omitempty"`
	ServiceType         ServiceType `json:"serviceType,omitempty" msgpack:"serviceType,omitempty"`
	ContractDate        string      `json:"contractDate,omitempty" msgpack:"contractDate,omitempty"`
	ContractSigner      string      `json:"contractSigner,omitempty" msgpack:"contractSigner,omitempty"`
	MobilizationDate    string      `json:"mobilizationDate,omitempty" msgpack:"mobilizationDate,omitempty"`
	MobilizationSource  string      `json:"mobilizationSource,omitempty" msgpack:"mobilizationSource,omitempty"`
	Complaints          string      `json:"complaints,omitempty" msgpack:"complaints,omitempty"`
	TraumaDate          string      `json:"traumaDate,omitempty" msgpack:"traumaDate,omitempty"`
	HospitalizationDate string      `json:"hospitalizationDate,omitempty" msgpack:"hospitalizationDate,omitempty"`
	TraumaCircumstances string      `json:"traumaCircumstances,omitempty" msgpack:"traumaCircumstances,omitempty"`
	Diagnosis           string      `json:"diagnosis,omitempty" msgpack:"diagnosis,omitempty"`
}

// AnalyzedRecord is the analysis result for one uploaded file.
// A record is either populated (Fields) or failed (Error); never both.
type AnalyzedRecord struct {
	FileName string `json:"fileName" msgpack:"fileName"`
	RecordFields
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// NewFailedRecord returns the failed variant for fileName.
func NewFailedRecord(fileName, reason string) AnalyzedRecord {
	if reason == "" {
		reason = AnalysisFailed
	}
	return AnalyzedRecord{FileName: fileName, Error: reason}
}

// Failed reports whether the record carries an error instead of data.
func (r AnalyzedRecord) Failed() bool {
	return r.Error != ""
}

// MarshalJSON drops every extracted field from failed records.
func (r AnalyzedRecord) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			FileName string `json:"fileName"`
			Error    string `json:"error"`
		}{r.FileName, r.Error})
	}
	type plain AnalyzedRecord
	return json.Marshal(plain(r))
}
