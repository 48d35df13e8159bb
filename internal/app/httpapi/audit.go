package httpapi

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

type auditEntry struct {
	Time       time.Time `json:"time"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// AuditTrail keeps a bounded in-memory record of state-changing requests and
// optionally appends each entry to a JSONL file.
type AuditTrail struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    *os.File
}

// NewAuditTrail creates a trail keeping up to max entries in memory. A
// non-empty path enables best-effort JSONL persistence.
func NewAuditTrail(max int, path string) (*AuditTrail, error) {
	if max <= 0 {
		max = 200
	}
	trail := &AuditTrail{max: max}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, err
		}
		trail.sink = f
	}
	return trail, nil
}

func (t *AuditTrail) add(entry auditEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, entry)
	if len(t.entries) > t.max {
		t.entries = t.entries[len(t.entries)-t.max:]
	}
	if t.sink != nil {
		// Best-effort persistence; ignore errors to avoid impacting
		// request flow.
		if b, err := json.Marshal(entry); err == nil {
			_, _ = t.sink.Write(append(b, '\n'))
		}
	}
}

func (t *AuditTrail) list() []auditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]auditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
