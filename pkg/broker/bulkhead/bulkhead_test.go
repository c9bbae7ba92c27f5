package bulkhead_test

import (
	"context"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/broker/bulkhead"
	apperrors "github.com/nova-labs/messagemesh/pkg/errors"
)

func TestAcquireBlocksUntilSlotFree(t *testing.T) {
	bh := bulkhead.New(bulkhead.Options{MaxConcurrent: 1, MaxQueueSize: 1, AcquireTimeout: time.Second})

	release1, err := bh.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		release2, err := bh.Acquire(context.Background())
		if err != nil {
			t.Errorf("second Acquire: %v", err)
		} else {
			release2()
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	release1()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not unblock after release")
	}
}

func TestQueueFullRejectsImmediately(t *testing.T) {
	bh := bulkhead.New(bulkhead.Options{MaxConcurrent: 1, MaxQueueSize: 0, AcquireTimeout: time.Second})

	release, err := bh.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = bh.Acquire(context.Background())
	if apperrors.Code(err) != broker.CodeBulkheadFull {
		t.Fatalf("expected BulkheadFull, got %v", err)
	}
}
