package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	upsertRowCountAnomalies = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_upsert_row_count_anomalies",
		Help: "Total number of metadata upserts reporting an unexpected affected-row count",
	})
)

func init() {
	prometheus.MustRegister(upsertRowCountAnomalies)
}
