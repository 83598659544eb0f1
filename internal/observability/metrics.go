package observability

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Outcome labels shared by the payment counters.
const (
	OutcomeAccepted      = "accepted"
	OutcomeRejected      = "rejected"
	OutcomeConfigInvalid = "config_invalid"
	OutcomeAuthFailed    = "auth_failed"
	OutcomeTransport     = "transport_error"

	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeBuffered  = "buffered"
	OutcomeBusy      = "busy"
	OutcomeError     = "error"
)

// RecordInitiation counts an outbound STK push or B2C request by outcome.
func RecordInitiation(kind, outcome string) {
	metrics.GetOrCreateCounter(initiationMetric(kind, outcome)).Inc()
}

// RecordCallback counts an inbound M-Pesa notification by outcome.
func RecordCallback(kind, outcome string) {
	metrics.GetOrCreateCounter(callbackMetric(kind, outcome)).Inc()
}

// InitiationCount returns the current value of an initiation counter.
func InitiationCount(kind, outcome string) uint64 {
	return metrics.GetOrCreateCounter(initiationMetric(kind, outcome)).Get()
}

// CallbackCount returns the current value of a callback counter.
func CallbackCount(kind, outcome string) uint64 {
	return metrics.GetOrCreateCounter(callbackMetric(kind, outcome)).Get()
}

// WritePrometheus writes every registered metric plus process metrics.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

func initiationMetric(kind, outcome string) string {
	return fmt.Sprintf(`mpesa_initiations_total{kind=%q,outcome=%q}`, kind, outcome)
}

func callbackMetric(kind, outcome string) string {
	return fmt.Sprintf(`mpesa_callbacks_total{kind=%q,outcome=%q}`, kind, outcome)
}
