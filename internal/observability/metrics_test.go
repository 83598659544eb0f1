package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestRecordInitiation(t *testing.T) {
	before := InitiationCount("STK_PUSH", OutcomeAccepted)

	RecordInitiation("STK_PUSH", OutcomeAccepted)
	RecordInitiation("STK_PUSH", OutcomeAccepted)

	if got := InitiationCount("STK_PUSH", OutcomeAccepted) - before; got != 2 {
		t.Fatalf("delta=%d, want=2", got)
	}
}

func TestWritePrometheus(t *testing.T) {
	RecordCallback("PAYOUT", OutcomeDuplicate)

	var buf bytes.Buffer
	WritePrometheus(&buf)

	if !strings.Contains(buf.String(), `mpesa_callbacks_total{kind="PAYOUT",outcome="duplicate"}`) {
		t.Fatalf("callback counter missing from output:\n%s", buf.String())
	}
}
