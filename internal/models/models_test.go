package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFormPatch_Apply(t *testing.T) {
	form := MeetingForm{Date: "01.01.2025", MeetingNumber: "1", ProtocolCount: "2", FirstProtocolNumber: "3"}

	got := FormPatch{MeetingNumber: strPtr("7"), ProtocolCount: strPtr("")}.Apply(form)
	assert.Equal(t, MeetingForm{Date: "01.01.2025", MeetingNumber: "7", ProtocolCount: "", FirstProtocolNumber: "3"}, got)
	assert.Equal(t, "1", form.MeetingNumber, "original form must not change")

	assert.True(t, FormPatch{}.Empty())
	assert.False(t, FormPatch{Date: strPtr("")}.Empty())
	assert.Equal(t, form, FormPatch{}.Apply(form))
}

func TestFormPatch_JSONOmitsMissingFields(t *testing.T) {
	var p FormPatch
	require.NoError(t, json.Unmarshal([]byte(`{"date":"12.03.2025"}`), &p))
	require.NotNil(t, p.Date)
	assert.Equal(t, "12.03.2025", *p.Date)
	assert.Nil(t, p.MeetingNumber)
	assert.Nil(t, p.ProtocolCount)
	assert.Nil(t, p.FirstProtocolNumber)
}

func TestAnalyzedRecord_FailedJSON(t *testing.T) {
	r := NewFailedRecord("a.docx", "")
	assert.True(t, r.Failed())
	assert.Equal(t, AnalysisFailed, r.Error)

	// Stray fields on a failed record never reach the client.
	r.FIO = "Иванов"
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fileName":"a.docx","error":"analysis failed"}`, string(data))

	ok := AnalyzedRecord{FileName: "b.docx", RecordFields: RecordFields{FIO: "Петров", ServiceType: ServiceContract}}
	assert.False(t, ok.Failed())
	data, err = json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fileName":"b.docx","fio":"Петров","serviceType":"contract"}`, string(data))
}

func TestProtocol_MergeFieldsHasEveryKey(t *testing.T) {
	fields := Protocol{Number: 5}.MergeFields()
	assert.Equal(t, 5, fields["number"])
	for _, key := range []string{"fio", "birthDate", "rank", "serviceType", "diagnosis"} {
		v, ok := fields[key]
		assert.True(t, ok, key)
		assert.Equal(t, "", v, key)
	}
}

func TestComputeTemplateStats(t *testing.T) {
	assert.Equal(t, TemplateStats{}, ComputeTemplateStats(nil))

	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	stats := ComputeTemplateStats([]Template{
		{ID: "a", FileSize: 100, UpdatedAt: older},
		{ID: "b", FileSize: 50, UpdatedAt: newer},
	})
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, int64(150), stats.TotalSize)
	require.NotNil(t, stats.LastUpdated)
	assert.True(t, stats.LastUpdated.Equal(newer))
}

func TestSession_Busy(t *testing.T) {
	var s Session
	assert.False(t, s.Busy())
	s.Analyzing = true
	assert.True(t, s.Busy())
	s.Analyzing, s.Generating = false, true
	assert.True(t, s.Busy())
}
