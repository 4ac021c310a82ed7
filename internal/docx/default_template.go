package docx

import "strings"

// DefaultTemplateFileName is the download name of the built-in template.
const DefaultTemplateFileName = "template_zasedanie.docx"

// DefaultTemplate builds the stock meeting template: a header with the
// meeting fields and one block per protocol.
func DefaultTemplate() ([]byte, error) {
	rule := strings.Repeat("─", 80)

	b := NewBuilder().Page(A4)
	b.Paragraph(AlignCenter, Run{Text: "ПРОТОКОЛ", Bold: true, Size: 14})
	b.Paragraph(AlignCenter, Run{Text: "заседания военно-врачебной комиссии", Size: 12})
	b.Paragraph(AlignRight, Run{Text: "{date}"})
	b.Text("")
	b.Text("Заседание № {meetingNumber}")
	b.Text("")
	b.Text("Рассмотрено протоколов: {protocolCount}")
	b.Text("")
	b.Text(rule)
	b.Text("")

	b.Text("{#protocols}")
	b.Paragraph(AlignLeft, Run{Text: "ПРОТОКОЛ № {number}", Bold: true})
	b.Text("")
	b.Text("ФИО: {fio}")
	b.Text("Дата рождения: {birthDate}")
	b.Text("Воинское звание: {rank}")
	b.Text("Должность: {position}")
	b.Text("Воинская часть: {militaryUnit}")
	b.Text("")
	b.Text("Условия службы: По контракту")
	b.Text("  - Дата контракта: {contractDate}")
	b.Text("  - Контракт подписан: {contractSigner}")
	b.Text("")
	b.Text("Условия службы: По мобилизации")
	b.Text("  - Дата мобилизации: {mobilizationDate}")
	b.Text("  - Мобилизован из: {mobilizationSource}")
	b.Text("")
	b.Text(rule)
	b.Text("")
	b.Text("{/protocols}")

	b.Text("")
	b.Text("")
	b.Text("Председатель комиссии: _________________")
	b.Text("")
	b.Text("Члены комиссии:")
	b.Text("    _________________")
	b.Text("    _________________")

	return b.Bytes()
}
