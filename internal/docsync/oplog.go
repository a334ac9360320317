/*
Package docsync forwards local document deltas to peers and applies inbound
deltas locally.

This file defines OpLog, a small grow-only operation-set document engine. The
state is a set of uniquely identified append operations and a delta is any
subset of it, so merging is plain set union: commutative, idempotent, and
associative regardless of delivery order. It exists to exercise the bridge
and the demo client; real deployments plug in a richer engine.
*/
package docsync

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// op is one append operation. ID makes it unique across the mesh; At and ID
// order the rendered document deterministically on every node.
type op struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	At     int64  `json:"at"`
	Text   string `json:"text"`
}

// OpLog is a grow-only op-set engine implementing Engine.
type OpLog struct {
	author string

	mu  sync.Mutex
	ops map[string]op

	callbacks []func(delta []byte, remote bool)
}

// compile-time interface check
var _ Engine = (*OpLog)(nil)

// NewOpLog creates an empty document authored locally as author.
func NewOpLog(author string) *OpLog {
	return &OpLog{
		author: author,
		ops:    make(map[string]op),
	}
}

// Append records a locally authored line and announces it as a local delta.
func (l *OpLog) Append(text string) error {
	delta, err := json.Marshal([]op{{
		ID:     uuid.New().String(),
		Author: l.author,
		At:     time.Now().UnixMicro(),
		Text:   text,
	}})
	if err != nil {
		return err
	}

	return l.ApplyDelta(delta, false)
}

// ApplyDelta merges an encoded delta. Only operations not seen before count;
// a delta that adds nothing fires no update, which also makes duplicated
// delivery harmless. The origin flag is handed through to OnUpdate callbacks
// unchanged.
func (l *OpLog) ApplyDelta(delta []byte, remote bool) error {
	var incoming []op
	if err := json.Unmarshal(delta, &incoming); err != nil {
		return fmt.Errorf("decoding delta: %w", err)
	}

	l.mu.Lock()

	var fresh []op
	for _, o := range incoming {
		if o.ID == "" {
			l.mu.Unlock()
			return fmt.Errorf("delta contains an operation without an id")
		}
		if _, seen := l.ops[o.ID]; seen {
			continue
		}
		l.ops[o.ID] = o
		fresh = append(fresh, o)
	}

	callbacks := make([]func([]byte, bool), len(l.callbacks))
	copy(callbacks, l.callbacks)

	l.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}

	applied, err := json.Marshal(fresh)
	if err != nil {
		return err
	}

	for _, fn := range callbacks {
		fn(applied, remote)
	}

	return nil
}

// OnUpdate registers a callback fired for every delta that changed the
// document.
func (l *OpLog) OnUpdate(fn func(delta []byte, remote bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Snapshot encodes the whole operation set as one delta.
func (l *OpLog) Snapshot() ([]byte, error) {
	return json.Marshal(l.sorted())
}

// Text renders the document: every line in (At, ID) order.
func (l *OpLog) Text() string {
	var sb strings.Builder
	for _, o := range l.sorted() {
		sb.WriteString(o.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Len returns the number of operations in the document.
func (l *OpLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// sorted snapshots the op set in deterministic order.
func (l *OpLog) sorted() []op {
	l.mu.Lock()
	defer l.mu.Unlock()

	ops := make([]op, 0, len(l.ops))
	for _, o := range l.ops {
		ops = append(ops, o)
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].At != ops[j].At {
			return ops[i].At < ops[j].At
		}
		return ops[i].ID < ops[j].ID
	})

	return ops
}
