package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Бизнес-метрики сервиса отчетов.
var (
	reportsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fd_reports_created_total",
			Help: "Количество созданных отчетов о неисправностях",
		},
		[]string{"severity"},
	)

	reportsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fd_reports_rejected_total",
			Help: "Количество отклоненных отправок отчетов",
		},
		[]string{"reason"},
	)

	attachmentsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_attachments_stored_total",
		Help: "Количество сохраненных вложений",
	})

	payloadCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_payload_cleanup_failures_total",
		Help: "Количество файлов вложений, которые не удалось удалить",
	})

	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fd_escalations_total",
			Help: "Количество оповещений об эскалации",
		},
		[]string{"result"},
	)
)
