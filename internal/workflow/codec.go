package workflow

import (
	"encoding/json"
	"sort"
)

// decodeWorkflow unpacks a stored workflow document.
func decodeWorkflow(raw json.RawMessage, w *Workflow) error {
	return json.Unmarshal(raw, w)
}

// sortWorkflows orders by creation time, then ID for a stable result.
func sortWorkflows(ws []*Workflow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].CreatedAt.Before(ws[j].CreatedAt)
	})
}
