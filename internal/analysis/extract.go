package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/feniks/backend/internal/models"
)

var genitiveMonths = map[string]string{
	"01": "января", "02": "февраля", "03": "марта", "04": "апреля",
	"05": "мая", "06": "июня", "07": "июля", "08": "августа",
	"09": "сентября", "10": "октября", "11": "ноября", "12": "декабря",
}

var fieldSetters = map[string]func(*models.RecordFields, string){
	"fio":                 func(f *models.RecordFields, v string) { f.FIO = v },
	"birthDate":           func(f *models.RecordFields, v string) { f.BirthDate = v },
	"position":            func(f *models.RecordFields, v string) { f.Position = v },
	"militaryUnit":        func(f *models.RecordFields, v string) { f.MilitaryUnit = v },
	"contractDate":        func(f *models.RecordFields, v string) { f.ContractDate = v },
	"contractSigner":      func(f *models.RecordFields, v string) { f.ContractSigner = v },
	"mobilizationDate":    func(f *models.RecordFields, v string) { f.MobilizationDate = v },
	"mobilizationSource":  func(f *models.RecordFields, v string) { f.MobilizationSource = v },
	"complaints":          func(f *models.RecordFields, v string) { f.Complaints = v },
	"traumaDate":          func(f *models.RecordFields, v string) { f.TraumaDate = v },
	"hospitalizationDate": func(f *models.RecordFields, v string) { f.HospitalizationDate = v },
	"traumaCircumstances": func(f *models.RecordFields, v string) { f.TraumaCircumstances = v },
	"diagnosis":           func(f *models.RecordFields, v string) { f.Diagnosis = v },
}

type compiledField struct {
	name     string
	patterns []*regexp.Regexp
	maxLen   int
	date     bool
	service  models.ServiceType
	set      func(*models.RecordFields, string)
}

// Extractor applies a compiled rule set to plain document text.
// It is immutable and safe for concurrent use.
type Extractor struct {
	ranks        []string
	mobilization []string
	contract     []string
	fields       []compiledField
}

// NewExtractor compiles rules. Unknown field names and invalid patterns are errors.
func NewExtractor(rules *Rules) (*Extractor, error) {
	e := &Extractor{
		ranks:        ranksLongestFirst(lowerAll(rules.Ranks)),
		mobilization: lowerAll(rules.Service.MobilizationMarkers),
		contract:     lowerAll(rules.Service.ContractMarkers),
	}

	// Field order is fixed so results never depend on map iteration.
	for _, name := range fieldOrder {
		rule, ok := rules.Fields[name]
		if !ok {
			continue
		}
		cf := compiledField{
			name:    name,
			maxLen:  rule.MaxLength,
			date:    rule.Date,
			service: models.ServiceType(rule.Service),
			set:     fieldSetters[name],
		}
		for _, p := range rule.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("field %s: pattern %q has no capture group", name, p)
			}
			cf.patterns = append(cf.patterns, re)
		}
		e.fields = append(e.fields, cf)
	}
	for name := range rules.Fields {
		if _, ok := fieldSetters[name]; !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
	}
	return e, nil
}

var fieldOrder = []string{
	"fio", "birthDate", "position", "militaryUnit",
	"contractDate", "contractSigner", "mobilizationDate", "mobilizationSource",
	"complaints", "traumaDate", "hospitalizationDate", "traumaCircumstances", "diagnosis",
}

// Extract returns the fields found in text. Missing fields stay empty.
func (e *Extractor) Extract(text string) models.RecordFields {
	text = normalizeText(text)
	lower := strings.ToLower(text)

	var out models.RecordFields
	out.Rank = e.rank(lower)
	out.ServiceType = e.serviceType(lower)

	for _, f := range e.fields {
		if f.service != "" && f.service != out.ServiceType {
			continue
		}
		if v, ok := f.match(text); ok {
			f.set(&out, v)
		}
	}
	return out
}

func (f compiledField) match(text string) (string, bool) {
	for _, re := range f.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v := strings.TrimSpace(m[1])
		if f.date {
			v = formatDate(v)
		}
		if f.maxLen > 0 {
			v = truncateRunes(v, f.maxLen)
		}
		return v, true
	}
	return "", false
}

func (e *Extractor) rank(lower string) string {
	for _, r := range e.ranks {
		if strings.Contains(lower, r) {
			return titleCase(r)
		}
	}
	return ""
}

func (e *Extractor) serviceType(lower string) models.ServiceType {
	for _, m := range e.mobilization {
		if strings.Contains(lower, m) {
			return models.ServiceMobilization
		}
	}
	for _, m := range e.contract {
		if strings.Contains(lower, m) {
			return models.ServiceContract
		}
	}
	return models.ServiceUnknown
}

// formatDate turns "05.03.1990" into "05 марта 1990". Anything else is returned as is.
func formatDate(s string) string {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return s
	}
	month, ok := genitiveMonths[parts[1]]
	if !ok {
		month = parts[1]
	}
	return parts[0] + " " + month + " " + parts[2]
}

// titleCase upper-cases every letter that follows a non-letter.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// RE2 \s is ASCII only; documents are full of non-breaking spaces.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0', '\u2007', '\u202f':
			return ' '
		case '\r':
			return '\n'
		}
		return r
	}, s)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
