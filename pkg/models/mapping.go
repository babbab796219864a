package models

import "strings"

// StatusTable maps a source's native status values to canonical statuses.
// Lookup is case-insensitive; values outside the table resolve to Default.
// Every adapter declares its full enum surface in one table instead of
// scattered fallback chains.
type StatusTable struct {
	Entries map[string]TicketStatus
	Default TicketStatus
}

// Map resolves a native status value to its canonical status.
func (t StatusTable) Map(native string) TicketStatus {
	if status, ok := t.Entries[strings.ToLower(strings.TrimSpace(native))]; ok {
		return status
	}
	return t.Default
}

// PriorityTable maps a source's native priority values to canonical
// priorities, with the same total-mapping discipline as StatusTable.
type PriorityTable struct {
	Entries map[string]TicketPriority
	Default TicketPriority
}

// Map resolves a native priority value to its canonical priority.
func (t PriorityTable) Map(native string) TicketPriority {
	if priority, ok := t.Entries[strings.ToLower(strings.TrimSpace(native))]; ok {
		return priority
	}
	return t.Default
}
