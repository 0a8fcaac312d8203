package model

import "time"

// LoopStatus is the frame driver as reported by the debug API.
type LoopStatus struct {
	Frame     uint64  `json:"frame"`
	Elapsed   float64 `json:"elapsed"`
	DeltaTime float64 `json:"delta_time"`
	Paused    bool    `json:"paused"`
	Updates   int     `json:"updates"`
	Renders   int     `json:"renders"`
	Pending   int     `json:"pending"`
	Panics    uint64  `json:"panics"`
}

// TaskNode is one live task and its live children.
type TaskNode struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	State       string     `json:"state"`
	Cancellable bool       `json:"cancellable"`
	Cancelled   bool       `json:"cancelled"`
	Tweens      int        `json:"tweens"`
	Children    []TaskNode `json:"children,omitempty"`
}

// TaskCounts aggregates task outcomes.
type TaskCounts struct {
	Spawned   int `json:"spawned"`
	Live      int `json:"live"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

// Snapshot is everything the debug API reads, captured on the loop goroutine.
type Snapshot struct {
	Loop     LoopStatus     `json:"loop"`
	Tasks    []TaskNode     `json:"tasks"`
	Counts   TaskCounts     `json:"counts"`
	State    map[string]any `json:"state,omitempty"`
	Captured time.Time      `json:"captured"`
}

// TraceRun is one recorded execution.
type TraceRun struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    uint64     `json:"frames"`
	Simulated float64    `json:"simulated"`
	Events    int        `json:"events"`
}

// EventKind classifies trace events.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventEmit       EventKind = "emit"
	EventLog        EventKind = "log"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventTransition, EventEmit, EventLog:
		return true
	}
	return false
}

// TraceEvent is one recorded task transition, state emit or log line.
type TraceEvent struct {
	ID       int64     `json:"id"`
	RunID    string    `json:"run_id"`
	Seq      int       `json:"seq"`
	Frame    uint64    `json:"frame"`
	Elapsed  float64   `json:"elapsed"`
	Kind     EventKind `json:"kind"`
	TaskID   string    `json:"task_id,omitempty"`
	TaskName string    `json:"task_name,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Keys     []string  `json:"keys,omitempty"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
}
