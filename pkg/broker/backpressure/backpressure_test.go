package backpressure_test

import (
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker/backpressure"
)

func TestHysteresisActivatesAndRecovers(t *testing.T) {
	activations := 0
	c := backpressure.New(backpressure.Options{
		LatencyThreshold:         5 * time.Second,
		RecoveryLatencyThreshold: 2 * time.Second,
		SampleWindow:             20,
		OnActivated:              func() { activations++ },
	})

	c.Record(6 * time.Second)
	c.Record(6 * time.Second)
	if !c.ShouldThrottle() {
		t.Fatal("expected throttling to activate after two 6s samples")
	}

	for i := 0; i < 20; i++ {
		c.Record(100 * time.Millisecond)
	}
	if c.ShouldThrottle() {
		t.Fatal("expected throttling to deactivate after twenty 100ms samples")
	}

	time.Sleep(10 * time.Millisecond) // let async OnActivated fire
	if c.Activations() != 1 {
		t.Fatalf("expected 1 activation, got %d", c.Activations())
	}
}

func TestQueueDepthTriggersThrottleIndependentlyOfLatency(t *testing.T) {
	c := backpressure.New(backpressure.Options{
		LatencyThreshold:         5 * time.Second,
		RecoveryLatencyThreshold: 2 * time.Second,
		SampleWindow:             20,
		QueueDepthThreshold:      10,
	})

	c.Record(100 * time.Millisecond)
	if c.ShouldThrottle() {
		t.Fatal("expected no throttling before queue depth exceeds threshold")
	}

	c.RecordQueueDepth(11)
	if !c.ShouldThrottle() {
		t.Fatal("expected throttling to activate once queue depth exceeds threshold")
	}

	c.RecordQueueDepth(3)
	c.Record(100 * time.Millisecond)
	if c.ShouldThrottle() {
		t.Fatal("expected throttling to deactivate once both latency and queue depth recover")
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	opts := backpressure.Options{
		LatencyThreshold:         time.Second,
		RecoveryLatencyThreshold: 2 * time.Second,
		SampleWindow:             10,
	}
	if err := opts.Validate(); err == nil {
		t.Fatal("expected Validate to reject recovery >= activation threshold")
	}
}
