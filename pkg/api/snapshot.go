package api

import (
	"fmt"
	"sort"
	"time"
)

// FieldError is the snapshot field under which non-fatal stage errors are
// recorded so that downstream stages can see degraded inputs.
const FieldError = "error"

// FieldSubject holds the subject identifier the session was started for.
const FieldSubject = "subject"

// FieldFinalReport is the snapshot field holding the aggregated report text
// that human-review feedback patches are applied to.
const FieldFinalReport = "final_report"

// Message is one entry in the snapshot's append-only audit log.
type Message struct {
	At    time.Time
	Stage string
	Text  string
}

// Snapshot is the accumulating record threaded through every stage of a
// session. Fields holds the named report artifacts (plan, per-domain
// reports, decision record, final artifact); Messages is an append-only
// audit trail. The counters and ReviewState are owned by the executor:
// stages can only touch Fields through the partial updates they return.
type Snapshot struct {
	Fields   map[string]string
	Messages []Message

	IterationCount int
	MaxIterations  int

	ReviewState ReviewState
}

// NewSnapshot creates an empty snapshot with the given revision budget.
// maxIterations <= 0 is normalized to 1 so the decision loop always has a
// positive bound.
func NewSnapshot(maxIterations int) *Snapshot {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &Snapshot{
		Fields:        make(map[string]string),
		MaxIterations: maxIterations,
	}
}

// Get returns the value of a field and whether it is set.
func (s *Snapshot) Get(name string) (string, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Field returns the value of a field, or "" if unset.
func (s *Snapshot) Field(name string) string {
	return s.Fields[name]
}

// Merge shallowly applies a partial-update map to the snapshot's fields.
// Later writes win; nothing is ever removed.
func (s *Snapshot) Merge(updates map[string]string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string, len(updates))
	}
	for k, v := range updates {
		s.Fields[k] = v
	}
}

// Append adds a timestamped entry to the audit log. The log is never
// truncated.
func (s *Snapshot) Append(stage, format string, args ...any) {
	s.Messages = append(s.Messages, Message{
		At:    time.Now(),
		Stage: stage,
		Text:  fmt.Sprintf(format, args...),
	})
}

// FieldNames returns the populated field names in sorted order.
func (s *Snapshot) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate persisted state in place.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := &Snapshot{
		Fields:         make(map[string]string, len(s.Fields)),
		Messages:       make([]Message, len(s.Messages)),
		IterationCount: s.IterationCount,
		MaxIterations:  s.MaxIterations,
		ReviewState:    s.ReviewState,
	}
	for k, v := range s.Fields {
		cp.Fields[k] = v
	}
	copy(cp.Messages, s.Messages)
	return cp
}
