package actions

import "encoding/json"

// Queue collects actions for one invocation in call order. It is owned by a
// single invocation and is not safe for concurrent use.
type Queue struct {
	items  []Action
	sheets map[string]struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{sheets: map[string]struct{}{}}
}

type alreadyQueued struct {
	Status string `json:"status"`
	Name   string `json:"name"`
}

// Append adds an action and returns an acknowledgment. A createSheet whose
// name is already queued is dropped; the acknowledgment says so and added is
// false.
func (q *Queue) Append(a Action) (ack string, added bool) {
	if cs, ok := a.(CreateSheet); ok {
		if _, dup := q.sheets[cs.Name]; dup {
			b, _ := json.Marshal(alreadyQueued{Status: "already_queued", Name: cs.Name})
			return string(b), false
		}
		q.sheets[cs.Name] = struct{}{}
	}
	q.items = append(q.items, a)
	b, err := Marshal(a)
	if err != nil {
		return string(a.Kind()), true
	}
	return string(b), true
}

// Len reports the number of queued actions.
func (q *Queue) Len() int { return len(q.items) }

// Drain returns the queued actions in append order and empties the queue.
func (q *Queue) Drain() List {
	out := q.items
	q.Reset()
	if out == nil {
		return List{}
	}
	return out
}

// Reset discards everything queued.
func (q *Queue) Reset() {
	q.items = nil
	q.sheets = map[string]struct{}{}
}

// Discard removes the actions at the given positions, keeping the order of
// the rest. Removed createSheet names may be queued again.
func (q *Queue) Discard(idx []int) {
	if len(idx) == 0 {
		return
	}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	kept := q.items[:0]
	for i, a := range q.items {
		if drop[i] {
			if cs, ok := a.(CreateSheet); ok {
				delete(q.sheets, cs.Name)
			}
			continue
		}
		kept = append(kept, a)
	}
	q.items = kept
}
