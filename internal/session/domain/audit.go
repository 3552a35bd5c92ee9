package domain

import (
	"encoding/json"
	"time"
)

// AuditEntry is one link in the hash chain. Details holds the redacted JSON
// exactly as it was hashed.
type AuditEntry struct {
	Seq       int64
	ID        string
	Timestamp time.Time
	UserID    string
	Action    string
	Target    string
	Details   json.RawMessage
	PrevHash  *string
	Hash      string
}

// ChainReport is the outcome of walking the audit chain. Divergence is the
// index of the first entry that fails, or -1 when the chain is intact.
type ChainReport struct {
	Checked    int    `json:"checked"`
	Valid      bool   `json:"valid"`
	Divergence int    `json:"divergence"`
	EntryID    string `json:"entry_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
