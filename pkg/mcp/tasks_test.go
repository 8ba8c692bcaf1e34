package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskManager_Lifecycle tests the create/update/get path and the
// wire shape of a task record.
//
// This test verifies:
//   - New tasks start in working status with a 16-char id
//   - Every record field is present, null when unset
//   - Update fills result and transitions status
func TestTaskManager_Lifecycle(t *testing.T) {
	m := NewTaskManager()

	id := m.Create("req-1", "index_repo")
	require.Len(t, id, 16)

	rec, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec["id"])
	assert.Equal(t, TaskWorking, rec["status"])
	assert.Equal(t, "req-1", rec["requestId"])
	assert.Equal(t, "index_repo", rec["toolName"])

	// Unset fields serialize as explicit nulls, not omitted keys.
	for _, key := range []string{"result", "error", "message"} {
		val, present := rec[key]
		assert.True(t, present, "record must carry %q", key)
		assert.Nil(t, val)
	}
	assert.NotEmpty(t, rec["createdAt"])
	assert.NotEmpty(t, rec["updatedAt"])

	m.Update(id, TaskCompleted, map[string]interface{}{"files": 12}, nil, "done")

	rec, err = m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, rec["status"])
	assert.Equal(t, map[string]interface{}{"files": 12}, rec["result"])
	assert.Equal(t, "done", rec["message"])
}

func TestTaskManager_GetUnknown(t *testing.T) {
	m := NewTaskManager()
	_, err := m.Get("deadbeef00000000")
	require.Error(t, err)
	assert.Equal(t, "Unknown task: deadbeef00000000", err.Error())
}

// TestTaskManager_Result tests that only completed and failed tasks
// yield a result.
func TestTaskManager_Result(t *testing.T) {
	m := NewTaskManager()

	id := m.Create("req-1", "index_repo")
	_, err := m.Result(id)
	require.Error(t, err)
	assert.Equal(t, "Task "+id+" is not yet complete (status: working)", err.Error())

	m.Update(id, TaskFailed, nil, "disk full", "")
	rec, err := m.Result(id)
	require.NoError(t, err)
	assert.Equal(t, "disk full", rec["error"])

	// Cancelled does not count as finished.
	cancelled := m.Create("req-2", "index_repo")
	_, _, err = m.Cancel(cancelled)
	require.NoError(t, err)
	_, err = m.Result(cancelled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(status: cancelled)")
}

func TestTaskManager_ListOrder(t *testing.T) {
	m := NewTaskManager()

	first := m.Create("req-1", "a")
	second := m.Create("req-2", "b")
	third := m.Create("req-3", "c")

	records := m.List()
	require.Len(t, records, 3)
	assert.Equal(t, first, records[0]["id"])
	assert.Equal(t, second, records[1]["id"])
	assert.Equal(t, third, records[2]["id"])
}

// TestTaskManager_Cancel tests cancellation semantics.
func TestTaskManager_Cancel(t *testing.T) {
	m := NewTaskManager()

	t.Run("working task cancels and returns its request id", func(t *testing.T) {
		id := m.Create("req-42", "slow_tool")
		rec, requestID, err := m.Cancel(id)
		require.NoError(t, err)
		assert.Equal(t, TaskCancelled, rec["status"])
		assert.Equal(t, "req-42", requestID)
	})

	t.Run("terminal task refuses cancellation", func(t *testing.T) {
		id := m.Create("req-43", "slow_tool")
		m.Update(id, TaskCompleted, "ok", nil, "")
		_, _, err := m.Cancel(id)
		require.Error(t, err)
		assert.Equal(t, "Task "+id+" is already in terminal state: completed", err.Error())
	})

	t.Run("unknown task", func(t *testing.T) {
		_, _, err := m.Cancel("nope")
		require.Error(t, err)
		assert.Equal(t, "Unknown task: nope", err.Error())
	})
}

func TestTaskManager_FindByRequestID(t *testing.T) {
	m := NewTaskManager()

	id := m.Create("req-7", "slow_tool")

	found, ok := m.FindByRequestID("req-7")
	require.True(t, ok)
	assert.Equal(t, id, found)

	// Terminal tasks no longer match.
	m.Update(id, TaskCompleted, nil, nil, "")
	_, ok = m.FindByRequestID("req-7")
	assert.False(t, ok)

	_, ok = m.FindByRequestID("never-seen")
	assert.False(t, ok)
}

// TestTaskManager_StatusNotifications tests that every transition emits
// a notifications/tasks/status message carrying the full record.
func TestTaskManager_StatusNotifications(t *testing.T) {
	m := NewTaskManager()

	var notifications []*Message
	m.OnStatusChange(func(n *Message) { notifications = append(notifications, n) })

	id := m.Create("req-1", "index_repo")
	m.Update(id, TaskCompleted, "done", nil, "")

	require.Len(t, notifications, 2)
	for _, n := range notifications {
		assert.Equal(t, "notifications/tasks/status", n.Method)
		assert.Nil(t, n.ID, "status notifications carry no id")
	}

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(notifications[1].Params, &params))
	assert.Equal(t, id, params["id"])
	assert.Equal(t, TaskCompleted, params["status"])
	assert.Equal(t, "done", params["result"])
}

func TestTaskManager_Clear(t *testing.T) {
	m := NewTaskManager()
	m.Create("req-1", "a")
	m.Clear()
	assert.Empty(t, m.List())
}
