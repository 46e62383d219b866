package streaming

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"
)

func TestLogServiceRetainsWarningAndAbove(t *testing.T) {
	ctx := context.Background()
	svc := NewLogService(log.New(&bytes.Buffer{}, "", 0))

	for _, sev := range []Severity{SeverityCritical, SeverityError, SeverityWarning} {
		if err := svc.Log(ctx, Record{Message: "m", Severity: sev, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Log(%s): %v", sev, err)
		}
	}
	if got := len(svc.LastMessages()); got != 3 {
		t.Fatalf("LastMessages len = %d, want 3", got)
	}
}

func TestLogServiceDropsInfoAndDebugFromBuffer(t *testing.T) {
	ctx := context.Background()
	svc := NewLogService(log.New(&bytes.Buffer{}, "", 0))

	for _, sev := range []Severity{SeverityInfo, SeverityDebug} {
		if err := svc.Log(ctx, Record{Message: "m", Severity: sev, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Log(%s): %v", sev, err)
		}
	}
	if got := len(svc.LastMessages()); got != 0 {
		t.Fatalf("LastMessages len = %d, want 0 (INFO/DEBUG not retained)", got)
	}
}

func TestLogServiceBufferBounded(t *testing.T) {
	ctx := context.Background()
	svc := NewLogService(log.New(&bytes.Buffer{}, "", 0))

	for i := 0; i < maxBufferedMessages+10; i++ {
		_ = svc.Log(ctx, Record{Message: "m", Severity: SeverityError, Timestamp: time.Now()})
	}
	if got := len(svc.LastMessages()); got != maxBufferedMessages {
		t.Fatalf("LastMessages len = %d, want %d", got, maxBufferedMessages)
	}
}
