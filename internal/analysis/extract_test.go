package analysis

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feniks/backend/internal/models"
)

const contractDoc = `ПРЕДСТАВЛЕНИЕ
Иванов Иван Иванович, 05.03.1990 г.р.
старший сержант
Должность: командир отделения
в/ч 12345
Контракт заключён 01.02.2023
Подписан: командир части
Жалобы: боли в спине
Дата травмы: 10.06.2024
Дата госпитализации: 12.06.2024
Обстоятельства травмы: при выполнении задач
Диагноз: перелом`

const mobilizationDoc = `Петров Пётр Петрович
Дата рождения: 17.11.1985
рядовой
Дата мобилизации: 21.09.2022
Призван: военкомат Ленинского района
Подписан: не должен попасть в запись`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultRules())
	require.NoError(t, err)
	return e
}

func TestExtract(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		name string
		text string
		want models.RecordFields
	}{
		{
			name: "contract",
			text: contractDoc,
			want: models.RecordFields{
				FIO:                 "Иванов Иван Иванович",
				BirthDate:           "05 марта 1990",
				Rank:                "Старший Сержант",
				Position:            "командир отделения",
				MilitaryUnit:        "в/ч 12345",
				ServiceType:         models.ServiceContract,
				ContractDate:        "01 февраля 2023",
				ContractSigner:      "командир части",
				Complaints:          "боли в спине",
				TraumaDate:          "10 июня 2024",
				HospitalizationDate: "12 июня 2024",
				TraumaCircumstances: "при выполнении задач",
				Diagnosis:           "перелом",
			},
		},
		{
			name: "mobilization skips contract fields",
			text: mobilizationDoc,
			want: models.RecordFields{
				FIO:                "Петров Пётр Петрович",
				BirthDate:          "17 ноября 1985",
				Rank:               "Рядовой",
				ServiceType:        models.ServiceMobilization,
				MobilizationDate:   "21 сентября 2022",
				MobilizationSource: "военкомат Ленинского района",
			},
		},
		{
			name: "empty text",
			text: "",
			want: models.RecordFields{ServiceType: models.ServiceUnknown},
		},
		{
			name: "non-breaking spaces and alternative unit form",
			text: "Должность:\u00a0стрелок\r\nвоинская часть 54321\r\nгенерал-майор",
			want: models.RecordFields{
				Position:     "стрелок",
				MilitaryUnit: "воинская часть 54321",
				Rank:         "Генерал-Майор",
				ServiceType:  models.ServiceUnknown,
			},
		},
		{
			name: "short unit form keeps only the number",
			text: "в.ч. 777",
			want: models.RecordFields{MilitaryUnit: "777", ServiceType: models.ServiceUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtract_Truncation(t *testing.T) {
	e := newTestExtractor(t)

	got := e.Extract("Должность: " + strings.Repeat("я", 150) + "\nДиагноз: " + strings.Repeat("ж", 250))
	assert.Equal(t, strings.Repeat("я", 100), got.Position)
	assert.Equal(t, strings.Repeat("ж", 200), got.Diagnosis)
}

func TestExtract_MobilizationWinsOverContract(t *testing.T) {
	e := newTestExtractor(t)

	got := e.Extract("Контракт заключён после мобилизации")
	assert.Equal(t, models.ServiceMobilization, got.ServiceType)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "01 января 2020", formatDate("01.01.2020"))
	assert.Equal(t, "31 декабря 1999", formatDate("31.12.1999"))
	assert.Equal(t, "01 13 2020", formatDate("01.13.2020"))
	assert.Equal(t, "вчера", formatDate("вчера"))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Генерал Армии", titleCase("генерал армии"))
	assert.Equal(t, "Генерал-Лейтенант", titleCase("генерал-лейтенант"))
	assert.Equal(t, "", titleCase(""))
}

func TestNewExtractor_Errors(t *testing.T) {
	rules := DefaultRules()
	rules.Fields["shoeSize"] = FieldRule{Patterns: []string{`(\d+)`}}
	_, err := NewExtractor(rules)
	assert.ErrorContains(t, err, "unknown field")

	rules = DefaultRules()
	rules.Fields["diagnosis"] = FieldRule{Patterns: []string{`([`}}
	_, err = NewExtractor(rules)
	assert.ErrorContains(t, err, "diagnosis")

	rules = DefaultRules()
	rules.Fields["diagnosis"] = FieldRule{Patterns: []string{`диагноз`}}
	_, err = NewExtractor(rules)
	assert.ErrorContains(t, err, "capture group")
}
