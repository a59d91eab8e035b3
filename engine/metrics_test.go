package engine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_CollectorsIncludesEveryField(t *testing.T) {
	m := NewMetrics()
	collectors := m.Collectors()
	if len(collectors) != 13 {
		t.Fatalf("expected 13 registered collectors, got %d", len(collectors))
	}
}

func TestMetrics_SequenceErrorsLabeledByKind(t *testing.T) {
	m := NewMetrics()
	m.SequenceErrors.WithLabelValues(ErrPipelineFailed.String()).Inc()
	m.SequenceErrors.WithLabelValues(ErrAdmission.String()).Inc()

	if got := testutil.ToFloat64(m.SequenceErrors.WithLabelValues(ErrPipelineFailed.String())); got != 1 {
		t.Fatalf("expected 1 pipeline_failed error recorded, got %v", got)
	}
}

func TestMetrics_ObserveStepRecordsDuration(t *testing.T) {
	m := NewMetrics()
	m.ObserveStep(time.Now())
	if got := testutil.CollectAndCount(m.StepDuration); got != 1 {
		t.Fatalf("expected one observation recorded, got %d", got)
	}
}
