package models

// Protocol is one per-person entry of the generated document.
type Protocol struct {
	Number int `json:"number"`
	RecordFields
}

// MergeFields returns the template variables of the protocol.
// Every key is always present so unused placeholders render empty.
func (p Protocol) MergeFields() map[string]any {
	return map[string]any{
		"number":              p.Number,
		"fio":                 p.FIO,
		"birthDate":           p.BirthDate,
		"rank":                p.Rank,
		"position":            p.Position,
		"militaryUnit":        p.MilitaryUnit,
		"serviceType":         string(p.ServiceType),
		"contractDate":        p.ContractDate,
		"contractSigner":      p.ContractSigner,
		"mobilizationDate":    p.MobilizationDate,
		"mobilizationSource":  p.MobilizationSource,
		"complaints":          p.Complaints,
		"traumaDate":          p.TraumaDate,
		"hospitalizationDate": p.HospitalizationDate,
		"traumaCircumstances": p.TraumaCircumstances,
		"diagnosis":           p.Diagnosis,
	}
}
