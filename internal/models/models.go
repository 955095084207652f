package models

import (
	"time"
)

// Severity определяет степень серьезности неисправности.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Severities перечисляет допустимые значения в порядке возрастания серьезности.
var Severities = []Severity{SeverityMinor, SeverityMajor, SeverityCritical}

// Valid сообщает, входит ли значение в перечисление.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// FaultReport представляет отчет о неисправности подвижного состава или инфраструктуры.
// Пустая строка в необязательном текстовом поле означает отсутствие значения.
type FaultReport struct {
	ID          string   `json:"id" gorm:"primaryKey"`
	Title       string   `json:"title" gorm:"not null"`
	Description string   `json:"description" gorm:"not null"`
	Reporter    string   `json:"reporter" gorm:"not null"`
	Severity    Severity `json:"severity" gorm:"not null;index"`
	AssetID     string   `json:"assetId" gorm:"column:asset_id;not null;index"`
	Date        string   `json:"date" gorm:"not null;index"`

	Subsystem           string `json:"subsystem,omitempty"`
	Location            string `json:"location,omitempty"`
	Category            string `json:"category,omitempty"`
	ObservedCause       string `json:"observedCause,omitempty"`
	RootCauseDetails    string `json:"rootCauseDetails,omitempty"`
	Workaround          string `json:"workaround,omitempty"`
	TemporaryFixDetails string `json:"temporaryFixDetails,omitempty"`
	SparePartsList      string `json:"sparePartsList,omitempty"`
	EstimatedRepairTime string `json:"estimatedRepairTime,omitempty"`

	DiagnosticSteps    bool `json:"diagnosticSteps"`
	RootCauseKnown     bool `json:"rootCauseKnown"`
	TemporaryFix       bool `json:"temporaryFix"`
	PassengerSafety    bool `json:"passengerSafety"`
	StaffSafety        bool `json:"staffSafety"`
	SparePartsRequired bool `json:"sparePartsRequired"`
	SupervisorNotified bool `json:"supervisorNotified"`
	EscalationNeeded   bool `json:"escalationNeeded"`

	// Метки времени выставляет хранилище, а не GORM.
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime:false"`
}

// TableName задает имя таблицы отчетов.
func (FaultReport) TableName() string { return "faults" }

// FaultFile хранит метаданные вложения. Сам файл лежит в хранилище вложений под именем FileName.
type FaultFile struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	FaultID      string    `json:"faultId" gorm:"not null;index"`
	FileName     string    `json:"fileName" gorm:"not null;uniqueIndex"`
	OriginalName string    `json:"originalName" gorm:"not null"`
	MimeType     string    `json:"mimeType" gorm:"not null"`
	Size         int64     `json:"size" gorm:"not null"`
	FilePath     string    `json:"filePath" gorm:"not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime:false"`
}

// TableName задает имя таблицы вложений.
func (FaultFile) TableName() string { return "fault_files" }

// FaultListItem - элемент списка отчетов с количеством вложений.
type FaultListItem struct {
	FaultReport
	FileCount int `json:"fileCount"`
}

// FaultPatch описывает частичное обновление отчета. nil означает "поле не передано".
type FaultPatch struct {
	Title               *string   `json:"title,omitempty"`
	Description         *string   `json:"description,omitempty"`
	Severity            *Severity `json:"severity,omitempty"`
	Subsystem           *string   `json:"subsystem,omitempty"`
	Location            *string   `json:"location,omitempty"`
	Category            *string   `json:"category,omitempty"`
	ObservedCause       *string   `json:"observedCause,omitempty"`
	DiagnosticSteps     *bool     `json:"diagnosticSteps,omitempty"`
	RootCauseKnown      *bool     `json:"rootCauseKnown,omitempty"`
	RootCauseDetails    *string   `json:"rootCauseDetails,omitempty"`
	Workaround          *string   `json:"workaround,omitempty"`
	TemporaryFix        *bool     `json:"temporaryFix,omitempty"`
	TemporaryFixDetails *string   `json:"temporaryFixDetails,omitempty"`
	PassengerSafety     *bool     `json:"passengerSafety,omitempty"`
	StaffSafety         *bool     `json:"staffSafety,omitempty"`
	SparePartsRequired  *bool     `json:"sparePartsRequired,omitempty"`
	SparePartsList      *string   `json:"sparePartsList,omitempty"`
	EstimatedRepairTime *string   `json:"estimatedRepairTime,omitempty"`
	SupervisorNotified  *bool     `json:"supervisorNotified,omitempty"`
	EscalationNeeded    *bool     `json:"escalationNeeded,omitempty"`
}

// IsEmpty сообщает, что патч не содержит ни одного поля.
func (p FaultPatch) IsEmpty() bool {
	return p == FaultPatch{}
}

// Apply переносит заданные поля патча в отчет. Метки времени не трогает.
func (p FaultPatch) Apply(f *FaultReport) {
	setString(&f.Title, p.Title)
	setString(&f.Description, p.Description)
	if p.Severity != nil {
		f.Severity = *p.Severity
	}
	setString(&f.Subsystem, p.Subsystem)
	setString(&f.Location, p.Location)
	setString(&f.Category, p.Category)
	setString(&f.ObservedCause, p.ObservedCause)
	setBool(&f.DiagnosticSteps, p.DiagnosticSteps)
	setBool(&f.RootCauseKnown, p.RootCauseKnown)
	setString(&f.RootCauseDetails, p.RootCauseDetails)
	setString(&f.Workaround, p.Workaround)
	setBool(&f.TemporaryFix, p.TemporaryFix)
	setString(&f.TemporaryFixDetails, p.TemporaryFixDetails)
	setBool(&f.PassengerSafety, p.PassengerSafety)
	setBool(&f.StaffSafety, p.StaffSafety)
	setBool(&f.SparePartsRequired, p.SparePartsRequired)
	setString(&f.SparePartsList, p.SparePartsList)
	setString(&f.EstimatedRepairTime, p.EstimatedRepairTime)
	setBool(&f.SupervisorNotified, p.SupervisorNotified)
	setBool(&f.EscalationNeeded, p.EscalationNeeded)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// FaultFilters сужает поиск. Пустое поле не участвует в отборе.
type FaultFilters struct {
	Severity Severity `json:"severity,omitempty"`
	AssetID  string   `json:"assetId,omitempty"`
	Category string   `json:"category,omitempty"`
	DateFrom string   `json:"dateFrom,omitempty"`
	DateTo   string   `json:"dateTo,omitempty"`
}

// IsZero сообщает, что ни один фильтр не задан.
func (f FaultFilters) IsZero() bool {
	return f == FaultFilters{}
}

// Match проверяет отчет на соответствие фильтрам. Диапазон дат включительный,
// сравнение строк ISO-8601 лексикографическое.
func (f FaultFilters) Match(r *FaultReport) bool {
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	if f.AssetID != "" && r.AssetID != f.AssetID {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.DateFrom != "" && r.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && r.Date > f.DateTo {
		return false
	}
	return true
}

// SeverityBreakdown - количество отчетов по степеням серьезности.
type SeverityBreakdown struct {
	Minor    int64 `json:"minor"`
	Major    int64 `json:"major"`
	Critical int64 `json:"critical"`
}

// Add увеличивает счетчик для указанной степени.
func (b *SeverityBreakdown) Add(s Severity, n int64) {
	switch s {
	case SeverityMinor:
		b.Minor += n
	case SeverityMajor:
		b.Major += n
	case SeverityCritical:
		b.Critical += n
	}
}

// FaultStats - агрегированная статистика по отчетам.
type FaultStats struct {
	Total       int64             `json:"total"`
	BySeverity  SeverityBreakdown `json:"bySeverity"`
	RecentCount int64             `json:"recentCount"`
}

// RecentWindow - окно, за которое считается RecentCount.
const RecentWindow = 7 * 24 * time.Hour

// SearchLimit ограничивает количество результатов поиска.
const SearchLimit = 100

// FoldASCII переводит в нижний регистр только латиницу, как это делает LOWER() в SQLite.
// Поиск в обоих хранилищах опирается на эту функцию, чтобы совпадать по поведению.
func FoldASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
