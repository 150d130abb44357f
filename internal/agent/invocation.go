package agent

import (
	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/patterns"
	"github.com/vinodismyname/sheetmind/internal/sheet"
)

// Invocation is the state one reasoning run threads through every tool call:
// the bound sheet snapshot, the action queue and the formula catalog.
// Concurrent runs each own their Invocation, so nothing is shared.
type Invocation struct {
	Snapshot *sheet.Snapshot
	Queue    *actions.Queue
	Catalog  *patterns.Catalog
}

// NewInvocation binds a snapshot to a fresh queue.
func NewInvocation(snap *sheet.Snapshot, catalog *patterns.Catalog) *Invocation {
	if catalog == nil {
		catalog = patterns.Default()
	}
	return &Invocation{Snapshot: snap, Queue: actions.NewQueue(), Catalog: catalog}
}

// Bind swaps the snapshot and clears the queue in one step so actions from
// an earlier run never leak into the next.
func (inv *Invocation) Bind(snap *sheet.Snapshot) {
	inv.Snapshot = snap
	inv.Queue.Reset()
}

// LastRow is the snapshot's last data row, or the default when unbound.
func (inv *Invocation) LastRow() int { return inv.Snapshot.LastRow() }

// SheetName is the snapshot's sheet name, or the default when unbound.
func (inv *Invocation) SheetName() string { return inv.Snapshot.SheetName() }
