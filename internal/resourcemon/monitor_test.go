package resourcemon

import (
	"context"
	"testing"
	"time"
)

func TestMonitorRestartsExitedProcess(t *testing.T) {
	m := NewMonitor(10 * time.Millisecond)
	m.Watch(ProcessSpec{Name: "true-loop", Path: "/bin/true"})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	if n := m.RestartCount("true-loop"); n < 1 {
		t.Fatalf("RestartCount = %d, want at least 1", n)
	}
}

func TestMonitorStopsOnContextCancel(t *testing.T) {
	m := NewMonitor(5 * time.Millisecond)
	m.Watch(ProcessSpec{Name: "sleeper", Path: "/bin/sleep", Args: []string{"5"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
