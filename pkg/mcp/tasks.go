package mcp

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	TaskWorking   = "working"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// Task is one long-running tool invocation.
type Task struct {
	ID        string
	Status    string
	RequestID interface{}
	ToolName  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Result    interface{}
	Error     interface{}
	Message   interface{}
}

func (t *Task) terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed || t.Status == TaskCancelled
}

// record renders the task for the wire: tasks/get, tasks/result,
// tasks/list entries, and the status notification payload. Unset
// fields serialize as null.
func (t *Task) record() map[string]interface{} {
	return map[string]interface{}{
		"id":        t.ID,
		"status":    t.Status,
		"requestId": t.RequestID,
		"toolName":  t.ToolName,
		"createdAt": t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"result":    t.Result,
		"error":     t.Error,
		"message":   t.Message,
	}
}

// TaskNotifier delivers a notifications/tasks/status notification.
// Delivery is best effort; the task store is updated regardless.
type TaskNotifier func(notification *Message)

// TaskManager stores task records for the process lifetime. Records
// are never pruned; tasks/list pages over the full set.
type TaskManager struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	order  []string
	notify TaskNotifier

	now func() time.Time
}

// NewTaskManager creates an empty task store.
func NewTaskManager() *TaskManager {
	return &TaskManager{tasks: map[string]*Task{}, now: time.Now}
}

// OnStatusChange registers the notifier called on every state change.
func (m *TaskManager) OnStatusChange(fn TaskNotifier) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// Create registers a new working task and returns its 16-hex-char id.
func (m *TaskManager) Create(requestID interface{}, toolName string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	now := m.now()
	task := &Task{
		ID:        id,
		Status:    TaskWorking,
		RequestID: requestID,
		ToolName:  toolName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.tasks[id] = task
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.emitStatus(task)
	return id
}

// Update transitions a task and emits a status notification. Unknown
// ids are ignored.
func (m *TaskManager) Update(id, status string, result, taskErr interface{}, message string) {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	task.Status = status
	task.UpdatedAt = m.now()
	if result != nil {
		task.Result = result
	}
	if taskErr != nil {
		task.Error = taskErr
	}
	if message != "" {
		task.Message = message
	}
	m.mu.Unlock()

	m.emitStatus(task)
}

// Get returns the task record verbatim.
func (m *TaskManager) Get(id string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, invalidParamsf("Unknown task: %s", id)
	}
	return task.record(), nil
}

// Result returns the record of a finished task. Only completed and
// failed count as finished; working and cancelled do not.
func (m *TaskManager) Result(id string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, invalidParamsf("Unknown task: %s", id)
	}
	if task.Status != TaskCompleted && task.Status != TaskFailed {
		return nil, invalidParamsf("Task %s is not yet complete (status: %s)", id, task.Status)
	}
	return task.record(), nil
}

// List returns task records in creation order.
func (m *TaskManager) List() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id].record())
	}
	return out
}

// Cancel transitions a working task to cancelled and returns its
// record plus the owning JSON-RPC request id, so the caller can cancel
// the in-flight request too. Terminal tasks cannot be cancelled.
func (m *TaskManager) Cancel(id string) (map[string]interface{}, interface{}, error) {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, nil, invalidParamsf("Unknown task: %s", id)
	}
	if task.terminal() {
		status := task.Status
		m.mu.Unlock()
		return nil, nil, invalidParamsf("Task %s is already in terminal state: %s", id, status)
	}
	task.Status = TaskCancelled
	task.UpdatedAt = m.now()
	requestID := task.RequestID
	rec := task.record()
	m.mu.Unlock()

	m.emitStatus(task)
	return rec, requestID, nil
}

// FindByRequestID returns the working task bound to a JSON-RPC id.
func (m *TaskManager) FindByRequestID(requestID interface{}) (string, bool) {
	key := fmt.Sprint(requestID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		task := m.tasks[id]
		if task.Status == TaskWorking && fmt.Sprint(task.RequestID) == key {
			return id, true
		}
	}
	return "", false
}

// Clear drops every task record.
func (m *TaskManager) Clear() {
	m.mu.Lock()
	m.tasks = map[string]*Task{}
	m.order = nil
	m.mu.Unlock()
}

func (m *TaskManager) emitStatus(task *Task) {
	m.mu.Lock()
	notify := m.notify
	rec := task.record()
	m.mu.Unlock()
	if notify == nil {
		return
	}
	params, err := marshalParams(rec)
	if err != nil {
		return
	}
	notify(&Message{
		JSONRPC: JSONRPCVersion,
		Method:  "notifications/tasks/status",
		Params:  params,
	})
}
