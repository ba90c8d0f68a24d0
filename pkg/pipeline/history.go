package pipeline

import (
	"github.com/dukex/taskflow/pkg/models"
)

// History is the append-only sequence of records produced by one Pipeline.
// Stored records are copies; nothing handed out by History aliases them.
type History struct {
	records []models.ExecutionRecord
}

// Append stores a copy of record.
func (h *History) Append(record models.ExecutionRecord) {
	h.records = append(h.records, record.Clone())
}

// Last returns the most recent record.
func (h *History) Last() (models.ExecutionRecord, bool) {
	if len(h.records) == 0 {
		return models.ExecutionRecord{}, false
	}

	return h.records[len(h.records)-1].Clone(), true
}

// All returns every record, oldest first.
func (h *History) All() []models.ExecutionRecord {
	out := make([]models.ExecutionRecord, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, r.Clone())
	}

	return out
}

// Len returns the number of stored records.
func (h *History) Len() int {
	return len(h.records)
}

// Reset drops every stored record.
func (h *History) Reset() {
	h.records = nil
}
