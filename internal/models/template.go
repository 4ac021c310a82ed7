package models

import "time"

// DefaultTemplateName is used when a template is stored without a name.
const DefaultTemplateName = "Шаблон заседания"

// Template is the metadata of a stored DOCX template.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	FileSize  int64     `json:"fileSize"`
	Active    bool      `json:"active"`
}

// TemplateStats summarises a template list for the admin view.
type TemplateStats struct {
	Count       int        `json:"count"`
	TotalSize   int64      `json:"totalSize"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// ComputeTemplateStats aggregates count, total size and the latest update time.
func ComputeTemplateStats(templates []Template) TemplateStats {
	stats := TemplateStats{Count: len(templates)}
	for i := range templates {
		stats.TotalSize += templates[i].FileSize
		if stats.LastUpdated == nil || templates[i].UpdatedAt.After(*stats.LastUpdated) {
			ts := templates[i].UpdatedAt
			stats.LastUpdated = &ts
		}
	}
	return stats
}
