package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task statuses emitted by the backend.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// Agent statuses emitted by the backend.
const (
	AgentIdle    = "idle"
	AgentWorking = "working"
	AgentError   = "error"
)

// Deliverable statuses emitted by the backend.
const (
	DeliverableDraft  = "draft"
	DeliverableReview = "review"
	DeliverableFinal  = "final"
)

// Task is the snapshot carried by a task_update message.
type Task struct {
	ID          string    `json:"id"`
	GoalID      string    `json:"goal_id,omitempty"`
	AgentID     string    `json:"agent_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress,omitempty"` // 0.0 - 1.0
	UpdatedAt   time.Time `json:"updated_at"`
}

// Agent is the snapshot carried by an agent_update message.
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Role          string    `json:"role,omitempty"`
	Status        string    `json:"status"`
	CurrentTaskID string    `json:"current_task_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Deliverable is the snapshot carried by a deliverable_update message.
type Deliverable struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goal_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind,omitempty"` // document, code, analysis
	Status    string    `json:"status"`
	Version   int       `json:"version,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThinkingStep is one incremental reasoning event from an agent working a
// task (thinking_step messages).
type ThinkingStep struct {
	TaskID    string    `json:"task_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Step      int       `json:"step"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DecompositionStart announces that a goal is being broken into tasks
// (goal_decomposition_start messages).
type DecompositionStart struct {
	GoalID    string    `json:"goal_id"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DecompositionResult carries the outcome of a goal decomposition
// (goal_decomposition_complete messages).
type DecompositionResult struct {
	GoalID    string    `json:"goal_id"`
	TaskIDs   []string  `json:"task_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeTask unmarshals a task_update payload.
func DecodeTask(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}

// DecodeAgent unmarshals an agent_update payload.
func DecodeAgent(data []byte) (Agent, error) {
	var a Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return Agent{}, fmt.Errorf("decode agent: %w", err)
	}
	return a, nil
}

// DecodeDeliverable unmarshals a deliverable_update payload.
func DecodeDeliverable(data []byte) (Deliverable, error) {
	var d Deliverable
	if err := json.Unmarshal(data, &d); err != nil {
		return Deliverable{}, fmt.Errorf("decode deliverable: %w", err)
	}
	return d, nil
}

// DecodeThinkingStep unmarshals a thinking_step payload.
func DecodeThinkingStep(data []byte) (ThinkingStep, error) {
	var s ThinkingStep
	if err := json.Unmarshal(data, &s); err != nil {
		return ThinkingStep{}, fmt.Errorf("decode thinking step: %w", err)
	}
	return s, nil
}

// DecodeDecompositionStart unmarshals a goal_decomposition_start payload.
func DecodeDecompositionStart(data []byte) (DecompositionStart, error) {
	var d DecompositionStart
	if err := json.Unmarshal(data, &d); err != nil {
		return DecompositionStart{}, fmt.Errorf("decode decomposition start: %w", err)
	}
	return d, nil
}

// DecodeDecompositionResult unmarshals a goal_decomposition_complete payload.
func DecodeDecompositionResult(data []byte) (DecompositionResult, error) {
	var d DecompositionResult
	if err := json.Unmarshal(data, &d); err != nil {
		return DecompositionResult{}, fmt.Errorf("decode decomposition result: %w", err)
	}
	return d, nil
}
