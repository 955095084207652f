package service

import (
	"fmt"
	"strings"
	"time"

	"fault-dashboard/internal/models"
)

// Сообщения валидации. Порядок проверок фиксирован и совпадает с порядком полей формы.
const (
	msgTitleRequired       = "Title is required"
	msgDescriptionRequired = "Description is required"
	msgReporterRequired    = "Reporter is required"
	msgSeverityRequired    = "Severity is required"
	msgSeverityInvalid     = "Severity must be one of: minor, major, critical"
	msgAssetIDRequired     = "Asset ID is required"
	msgDateInvalid         = "Date must be a valid ISO-8601 timestamp"
	msgNoFieldsToUpdate    = "No valid fields to update"
)

// BoolFields - все поля отчета с булевым смыслом.
var BoolFields = []string{
	"diagnosticSteps",
	"rootCauseKnown",
	"temporaryFix",
	"passengerSafety",
	"staffSafety",
	"sparePartsRequired",
	"supervisorNotified",
	"escalationNeeded",
}

// dateLayouts - принимаемые форматы поля date. Последние два приходят из datetime-local и date.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// NormalizeBool приводит значение с формы или из JSON к bool.
// true только для нативного true, строки "true" в любом регистре и строки "1".
func NormalizeBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true") || val == "1"
	default:
		return false
	}
}

// NormalizeBooleans возвращает копию raw, в которой все булевы поля приведены к bool.
// Отсутствующие поля не добавляются.
func NormalizeBooleans(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, field := range BoolFields {
		if v, ok := raw[field]; ok {
			out[field] = NormalizeBool(v)
		}
	}
	return out
}

// ValidateSubmission проверяет поля нового отчета и возвращает все нарушения за один проход.
// Пустой результат означает, что отчет корректен.
func ValidateSubmission(raw map[string]any) []string {
	var errs []string

	if textField(raw, "title") == "" {
		errs = append(errs, msgTitleRequired)
	}
	if textField(raw, "description") == "" {
		errs = append(errs, msgDescriptionRequired)
	}
	if textField(raw, "reporter") == "" {
		errs = append(errs, msgReporterRequired)
	}
	switch severity := textField(raw, "severity"); {
	case severity == "":
		errs = append(errs, msgSeverityRequired)
	case !models.Severity(severity).Valid():
		errs = append(errs, msgSeverityInvalid)
	}
	if textField(raw, "assetId") == "" {
		errs = append(errs, msgAssetIDRequired)
	}
	if date := textField(raw, "date"); date != "" && !validDate(date) {
		errs = append(errs, msgDateInvalid)
	}

	return errs
}

// BuildFault собирает отчет из уже проверенных полей.
// Текст обрезается, булевы поля нормализуются, пустая дата заменяется на now.
func BuildFault(raw map[string]any, now time.Time) *models.FaultReport {
	raw = NormalizeBooleans(raw)

	date := textField(raw, "date")
	if date == "" {
		date = now.UTC().Format(time.RFC3339)
	}

	return &models.FaultReport{
		Title:       textField(raw, "title"),
		Description: textField(raw, "description"),
		Reporter:    textField(raw, "reporter"),
		Severity:    models.Severity(textField(raw, "severity")),
		AssetID:     textField(raw, "assetId"),
		Date:        date,

		Subsystem:           textField(raw, "subsystem"),
		Location:            textField(raw, "location"),
		Category:            textField(raw, "category"),
		ObservedCause:       textField(raw, "observedCause"),
		RootCauseDetails:    textField(raw, "rootCauseDetails"),
		Workaround:          textField(raw, "workaround"),
		TemporaryFixDetails: textField(raw, "temporaryFixDetails"),
		SparePartsList:      textField(raw, "sparePartsList"),
		EstimatedRepairTime: textField(raw, "estimatedRepairTime"),

		DiagnosticSteps:    boolField(raw, "diagnosticSteps"),
		RootCauseKnown:     boolField(raw, "rootCauseKnown"),
		TemporaryFix:       boolField(raw, "temporaryFix"),
		PassengerSafety:    boolField(raw, "passengerSafety"),
		StaffSafety:        boolField(raw, "staffSafety"),
		SparePartsRequired: boolField(raw, "sparePartsRequired"),
		SupervisorNotified: boolField(raw, "supervisorNotified"),
		EscalationNeeded:   boolField(raw, "escalationNeeded"),
	}
}

// BuildPatch собирает частичное обновление из разрешенных полей. Неизвестные поля игнорируются.
// Переданные обязательные поля не могут быть пустыми, severity проверяется на допустимость.
func BuildPatch(raw map[string]any) (models.FaultPatch, []string) {
	var (
		patch models.FaultPatch
		errs  []string
	)
	raw = NormalizeBooleans(raw)

	if v, ok := presentText(raw, "title"); ok {
		if v == "" {
			errs = append(errs, msgTitleRequired)
		}
		patch.Title = &v
	}
	if v, ok := presentText(raw, "description"); ok {
		if v == "" {
			errs = append(errs, msgDescriptionRequired)
		}
		patch.Description = &v
	}
	if v, ok := presentText(raw, "severity"); ok {
		s := models.Severity(v)
		if !s.Valid() {
			errs = append(errs, msgSeverityInvalid)
		}
		patch.Severity = &s
	}

	patch.Subsystem = optionalText(raw, "subsystem")
	patch.Location = optionalText(raw, "location")
	patch.Category = optionalText(raw, "category")
	patch.ObservedCause = optionalText(raw, "observedCause")
	patch.RootCauseDetails = optionalText(raw, "rootCauseDetails")
	patch.Workaround = optionalText(raw, "workaround")
	patch.TemporaryFixDetails = optionalText(raw, "temporaryFixDetails")
	patch.SparePartsList = optionalText(raw, "sparePartsList")
	patch.EstimatedRepairTime = optionalText(raw, "estimatedRepairTime")

	patch.DiagnosticSteps = optionalBool(raw, "diagnosticSteps")
	patch.RootCauseKnown = optionalBool(raw, "rootCauseKnown")
	patch.TemporaryFix = optionalBool(raw, "temporaryFix")
	patch.PassengerSafety = optionalBool(raw, "passengerSafety")
	patch.StaffSafety = optionalBool(raw, "staffSafety")
	patch.SparePartsRequired = optionalBool(raw, "sparePartsRequired")
	patch.SupervisorNotified = optionalBool(raw, "supervisorNotified")
	patch.EscalationNeeded = optionalBool(raw, "escalationNeeded")

	return patch, errs
}

func validDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// textField возвращает обрезанное строковое значение поля или "".
func textField(raw map[string]any, key string) string {
	v, _ := presentText(raw, key)
	return v
}

func presentText(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", ok && v != nil
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case []string:
		if len(val) == 0 {
			return "", true
		}
		return strings.TrimSpace(val[0]), true
	default:
		return strings.TrimSpace(fmt.Sprint(val)), true
	}
}

func optionalText(raw map[string]any, key string) *string {
	if v, ok := presentText(raw, key); ok {
		return &v
	}
	return nil
}

func boolField(raw map[string]any, key string) bool {
	v, ok := raw[key].(bool)
	return ok && v
}

func optionalBool(raw map[string]any, key string) *bool {
	if v, ok := raw[key]; ok {
		b := NormalizeBool(v)
		return &b
	}
	return nil
}
