package poison_test

import (
	"errors"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/broker/poison"
)

// TestQuarantineAfterThreshold mirrors spec scenario 5: FailureThreshold=3,
// three failures for message id "m-1" with distinct errors produces one
// quarantine record with FailureCount=3 and three errors, and clears the
// in-memory tracker for "m-1".
func TestQuarantineAfterThreshold(t *testing.T) {
	tr := poison.New(poison.Options{FailureThreshold: 3, RetentionPeriod: time.Hour})
	msg := broker.WireMessage{ID: "m-1", TypeTag: "order.created", Payload: []byte("payload")}

	if tr.RecordFailure(msg, "rk", "ex", errors.New("err-1")) {
		t.Fatal("expected no quarantine after 1st failure")
	}
	if tr.RecordFailure(msg, "rk", "ex", errors.New("err-2")) {
		t.Fatal("expected no quarantine after 2nd failure")
	}
	if !tr.RecordFailure(msg, "rk", "ex", errors.New("err-3")) {
		t.Fatal("expected quarantine on 3rd failure")
	}

	records := tr.List(10)
	if len(records) != 1 {
		t.Fatalf("expected 1 quarantined record, got %d", len(records))
	}
	rec := records[0]
	if rec.FailureCount != 3 {
		t.Fatalf("expected FailureCount=3, got %d", rec.FailureCount)
	}
	if len(rec.Errors) != 3 {
		t.Fatalf("expected 3 accumulated errors, got %d", len(rec.Errors))
	}

	if _, ok := tr.Reprocess("m-1"); !ok {
		t.Fatal("expected m-1 to be quarantined and reprocessable")
	}
	if _, ok := tr.Reprocess("m-1"); ok {
		t.Fatal("expected m-1 to be removed from the store after reprocessing")
	}
}

func TestRetentionSweepRemovesOldRecords(t *testing.T) {
	tr := poison.New(poison.Options{FailureThreshold: 1, RetentionPeriod: 20 * time.Millisecond})
	msg := broker.WireMessage{ID: "m-2", TypeTag: "order.created"}

	tr.RecordFailure(msg, "rk", "ex", errors.New("boom"))
	if len(tr.List(10)) != 1 {
		t.Fatal("expected record present before retention elapses")
	}

	time.Sleep(50 * time.Millisecond)
	tr.Sweep()
	if len(tr.List(10)) != 0 {
		t.Fatal("expected record removed after retention sweep")
	}
}

func TestValidateRejectsNonPositiveFields(t *testing.T) {
	if err := (poison.Options{FailureThreshold: 0, RetentionPeriod: time.Hour}).Validate(); err == nil {
		t.Fatal("expected Validate to reject zero FailureThreshold")
	}
	if err := (poison.Options{FailureThreshold: 1, RetentionPeriod: 0}).Validate(); err == nil {
		t.Fatal("expected Validate to reject zero RetentionPeriod")
	}
}
