package service

import (
	"fmt"

	"fault-dashboard/internal/models"
)

// EscalationReason - причина, по которой отчет нужно довести до дежурной смены.
type EscalationReason string

const (
	ReasonCriticalSeverity  EscalationReason = "critical_severity"
	ReasonPassengerSafety   EscalationReason = "passenger_safety"
	ReasonStaffSafety       EscalationReason = "staff_safety"
	ReasonEscalationRequest EscalationReason = "escalation_requested"
)

// EscalationPolicy решает, требует ли новый отчет оповещения.
type EscalationPolicy struct {
	// MinSeverity - степень, начиная с которой отчет эскалируется независимо от флагов.
	MinSeverity models.Severity
}

// NewEscalationPolicy создает политику по умолчанию: эскалируются только критические отчеты
// и отчеты с флагами безопасности или явной просьбой эскалации.
func NewEscalationPolicy() *EscalationPolicy {
	return &EscalationPolicy{MinSeverity: models.SeverityCritical}
}

// Reasons возвращает человекочитаемые причины эскалации. Пустой срез - эскалация не нужна.
func (p *EscalationPolicy) Reasons(fault *models.FaultReport) []string {
	var reasons []string

	if p.severityEscalates(fault.Severity) {
		reasons = append(reasons, fmt.Sprintf("severity is %s", fault.Severity))
	}
	if fault.PassengerSafety {
		reasons = append(reasons, "passenger safety affected")
	}
	if fault.StaffSafety {
		reasons = append(reasons, "staff safety affected")
	}
	if fault.EscalationNeeded {
		reasons = append(reasons, "escalation requested by reporter")
	}

	return reasons
}

// Codes возвращает машинные коды причин, используемые в метриках и логах.
func (p *EscalationPolicy) Codes(fault *models.FaultReport) []EscalationReason {
	var codes []EscalationReason
	if p.severityEscalates(fault.Severity) {
		codes = append(codes, ReasonCriticalSeverity)
	}
	if fault.PassengerSafety {
		codes = append(codes, ReasonPassengerSafety)
	}
	if fault.StaffSafety {
		codes = append(codes, ReasonStaffSafety)
	}
	if fault.EscalationNeeded {
		codes = append(codes, ReasonEscalationRequest)
	}
	return codes
}

// severityEscalates сообщает, достаточно ли степени для эскалации. Пустая MinSeverity отключает правило.
func (p *EscalationPolicy) severityEscalates(s models.Severity) bool {
	return p.MinSeverity.Valid() && severityRank(s) >= severityRank(p.MinSeverity)
}

func severityRank(s models.Severity) int {
	for i, v := range models.Severities {
		if v == s {
			return i
		}
	}
	return -1
}
