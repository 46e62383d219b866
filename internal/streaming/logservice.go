package streaming

import (
	"context"
	"log"
	"sync"
	"time"
)

// Severity mirrors CMS's five logging levels, most to least urgent.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
	SeverityDebug    Severity = "DEBUG"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityError:    1,
	SeverityWarning:  2,
	SeverityInfo:     3,
	SeverityDebug:    4,
}

// retainRank is the rank at or below which a record is kept in the ring
// buffer: CRITICAL, ERROR, and WARNING are retained, INFO and DEBUG are
// not, matching LogServiceTest.py's helper_test_last_messages.
const retainRank = 2 // severityRank[SeverityWarning]

// maxBufferedMessages bounds the in-memory ring buffer. The real
// LogService.py wasn't present in original_source (only its test was), so
// this bound is our own choice rather than a restored constant.
const maxBufferedMessages = 2000

// Record is one aggregated log line, the shape of LogService's RPC-callable
// Log method (message, coord, operation, severity, timestamp, exc_text).
type Record struct {
	Message   string
	Coord     string
	Operation string
	Severity  Severity
	Timestamp time.Time
	ExcText   string
}

// LogService is §2's single-shard log aggregator. Every other service
// pushes its WARNING-and-above records here over the RPC fabric (§4.1);
// control_plane/streaming/logger.go's LogPublisher.Publish is the same
// push-over-RPC shape, generalized from a stub JSON dump into a real ring
// buffer plus pass-through to the process's own log.
type LogService struct {
	mu     sync.Mutex
	buffer []Record
	logger *log.Logger
}

// NewLogService builds a LogService that writes every record it receives
// to logger (log.Default() if nil) in addition to buffering the retained
// severities.
func NewLogService(logger *log.Logger) *LogService {
	if logger == nil {
		logger = log.Default()
	}
	return &LogService{logger: logger}
}

// Log is the RPC method every service's remote log handler calls.
func (s *LogService) Log(ctx context.Context, rec Record) error {
	s.logger.Printf("[%s] %s %s: %s", rec.Severity, rec.Coord, rec.Operation, rec.Message)
	if rec.ExcText != "" {
		s.logger.Print(rec.ExcText)
	}

	if severityRank[rec.Severity] > retainRank {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, rec)
	if len(s.buffer) > maxBufferedMessages {
		s.buffer = s.buffer[len(s.buffer)-maxBufferedMessages:]
	}
	return nil
}

// LastMessages returns every currently retained record, oldest first,
// mirroring LogService.last_messages().
func (s *LogService) LastMessages() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.buffer))
	copy(out, s.buffer)
	return out
}
