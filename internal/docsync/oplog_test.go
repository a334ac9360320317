package docsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delta(t *testing.T, ops ...op) []byte {
	t.Helper()
	raw, err := json.Marshal(ops)
	require.NoError(t, err)
	return raw
}

func TestAppendFiresLocalUpdate(t *testing.T) {
	doc := NewOpLog("a@x.com")

	var gotDelta []byte
	var gotRemote bool
	calls := 0
	doc.OnUpdate(func(d []byte, remote bool) {
		gotDelta = d
		gotRemote = remote
		calls++
	})

	require.NoError(t, doc.Append("hello"))

	assert.Equal(t, 1, calls)
	assert.False(t, gotRemote)
	assert.Equal(t, 1, doc.Len())
	assert.Equal(t, "hello\n", doc.Text())

	var ops []op
	require.NoError(t, json.Unmarshal(gotDelta, &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "a@x.com", ops[0].Author)
	assert.Equal(t, "hello", ops[0].Text)
	assert.NotEmpty(t, ops[0].ID)
}

func TestApplyDeltaIsIdempotent(t *testing.T) {
	doc := NewOpLog("a@x.com")

	calls := 0
	doc.OnUpdate(func([]byte, bool) { calls++ })

	d := delta(t, op{ID: "op-1", Author: "b@x.com", At: 10, Text: "line"})

	require.NoError(t, doc.ApplyDelta(d, true))
	require.NoError(t, doc.ApplyDelta(d, true))
	require.NoError(t, doc.ApplyDelta(d, true))

	// Re-delivery adds nothing and fires no further update.
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, doc.Len())
}

func TestApplyDeltaMergeIsOrderIndependent(t *testing.T) {
	d1 := delta(t, op{ID: "op-a", Author: "a@x.com", At: 2, Text: "second"})
	d2 := delta(t, op{ID: "op-b", Author: "b@x.com", At: 1, Text: "first"})
	d3 := delta(t, op{ID: "op-c", Author: "c@x.com", At: 3, Text: "third"})

	forward := NewOpLog("x@x.com")
	require.NoError(t, forward.ApplyDelta(d1, true))
	require.NoError(t, forward.ApplyDelta(d2, true))
	require.NoError(t, forward.ApplyDelta(d3, true))

	backward := NewOpLog("y@x.com")
	require.NoError(t, backward.ApplyDelta(d3, true))
	require.NoError(t, backward.ApplyDelta(d2, true))
	require.NoError(t, backward.ApplyDelta(d1, true))

	// Same operation set, same rendered document, whatever the order.
	assert.Equal(t, "first\nsecond\nthird\n", forward.Text())
	assert.Equal(t, forward.Text(), backward.Text())
}

func TestTextBreaksTimestampTiesByID(t *testing.T) {
	doc := NewOpLog("a@x.com")

	require.NoError(t, doc.ApplyDelta(delta(t,
		op{ID: "op-b", At: 5, Text: "beta"},
		op{ID: "op-a", At: 5, Text: "alpha"},
	), true))

	assert.Equal(t, "alpha\nbeta\n", doc.Text())
}

func TestApplyDeltaPartialOverlap(t *testing.T) {
	doc := NewOpLog("a@x.com")

	var updates [][]byte
	doc.OnUpdate(func(d []byte, _ bool) { updates = append(updates, d) })

	require.NoError(t, doc.ApplyDelta(delta(t,
		op{ID: "op-1", At: 1, Text: "one"},
	), true))

	// A snapshot that repeats op-1 and adds op-2 applies only op-2.
	require.NoError(t, doc.ApplyDelta(delta(t,
		op{ID: "op-1", At: 1, Text: "one"},
		op{ID: "op-2", At: 2, Text: "two"},
	), true))

	assert.Equal(t, 2, doc.Len())
	require.Len(t, updates, 2)

	var fresh []op
	require.NoError(t, json.Unmarshal(updates[1], &fresh))
	require.Len(t, fresh, 1)
	assert.Equal(t, "op-2", fresh[0].ID)
}

func TestApplyDeltaRejectsBadInput(t *testing.T) {
	doc := NewOpLog("a@x.com")

	assert.Error(t, doc.ApplyDelta([]byte(`{not json`), true))
	assert.Error(t, doc.ApplyDelta(delta(t, op{At: 1, Text: "no id"}), true))
	assert.Equal(t, 0, doc.Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	source := NewOpLog("a@x.com")
	require.NoError(t, source.Append("one"))
	require.NoError(t, source.Append("two"))

	snapshot, err := source.Snapshot()
	require.NoError(t, err)

	clone := NewOpLog("b@x.com")
	require.NoError(t, clone.ApplyDelta(snapshot, true))

	assert.Equal(t, source.Text(), clone.Text())
	assert.Equal(t, source.Len(), clone.Len())
}
