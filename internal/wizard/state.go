// Package wizard holds the meeting wizard sessions and their state machine.
package wizard

import "github.com/feniks/backend/internal/models"

// Action is a state transition request understood by Reduce.
type Action interface {
	action()
}

// FormFieldSet merges the non-nil fields of Patch into the form.
type FormFieldSet struct {
	Patch models.FormPatch
}

// FilesReplaced swaps the uploaded file list and invalidates every analysis
// result, including a batch still in flight.
type FilesReplaced struct {
	Files []models.FileInfo
}

// AnalysisStarted marks a batch over file set Version as running.
type AnalysisStarted struct {
	Version int
}

// AnalysisProgress reports Processed files of the batch over Version.
type AnalysisProgress struct {
	Version   int
	Processed int
}

// AnalysisCompleted delivers the records of the batch over Version.
type AnalysisCompleted struct {
	Version int
	Records []models.AnalyzedRecord
}

type GenerationStarted struct{}

// GenerationCompleted ends a generation; Err is empty on success.
type GenerationCompleted struct {
	Err string
}

type StepContinue struct{}

type StepBack struct{}

func (FormFieldSet) action()        {}
func (FilesReplaced) action()       {}
func (AnalysisStarted) action()     {}
func (AnalysisProgress) action()    {}
func (AnalysisCompleted) action()   {}
func (GenerationStarted) action()   {}
func (GenerationCompleted) action() {}
func (StepContinue) action()        {}
func (StepBack) action()            {}

var nextStep = map[models.Step]models.Step{
	models.StepWelcome: models.StepForm,
	models.StepForm:    models.StepUpload,
	models.StepUpload:  models.StepUpload,
}

var prevStep = map[models.Step]models.Step{
	models.StepWelcome: models.StepWelcome,
	models.StepForm:    models.StepWelcome,
	models.StepUpload:  models.StepForm,
}

// NewSession returns the initial state of a wizard run.
func NewSession(id string) models.Session {
	return models.Session{
		ID:      id,
		Step:    models.StepWelcome,
		Files:   []models.FileInfo{},
		Records: []models.AnalyzedRecord{},
	}
}

// Reduce applies a to s and returns the new state. s is not modified.
// Results and progress for a file set other than the current one are dropped.
func Reduce(s models.Session, a Action) models.Session {
	switch a := a.(type) {
	case FormFieldSet:
		s.Form = a.Patch.Apply(s.Form)

	case FilesReplaced:
		s.Files = append([]models.FileInfo{}, a.Files...)
		s.Records = []models.AnalyzedRecord{}
		s.FileSetVersion++
		s.Analyzing = false
		s.Processed = 0

	case AnalysisStarted:
		if a.Version != s.FileSetVersion {
			return s
		}
		s.Analyzing = true
		s.Processed = 0
		s.Records = []models.AnalyzedRecord{}
		s.LastError = ""

	case AnalysisProgress:
		if a.Version != s.FileSetVersion || !s.Analyzing {
			return s
		}
		// Parallel workers may report out of order.
		if a.Processed > s.Processed {
			s.Processed = a.Processed
		}

	case AnalysisCompleted:
		if a.Version != s.FileSetVersion {
			return s
		}
		s.Records = append([]models.AnalyzedRecord{}, a.Records...)
		s.Analyzing = false
		s.Processed = len(a.Records)

	case GenerationStarted:
		s.Generating = true
		s.LastError = ""

	case GenerationCompleted:
		s.Generating = false
		s.LastError = a.Err

	case StepContinue:
		if next, ok := nextStep[s.Step]; ok {
			s.Step = next
		}

	case StepBack:
		if prev, ok := prevStep[s.Step]; ok {
			s.Step = prev
		}
	}
	return s
}
