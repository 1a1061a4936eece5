// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Type is the discriminant tag of an event.
type Type string

// Event type tags. The string values are part of the wire format.
const (
	TypeOrchestrationStart    Type = "orchestration-start"
	TypeOrchestrationComplete Type = "orchestration-complete"
	TypeDepartmentStart       Type = "department-start"
	TypeDepartmentComplete    Type = "department-complete"
	TypeAgentStart            Type = "agent-start"
	TypeAgentThinking         Type = "agent-thinking"
	TypeAgentComplete         Type = "agent-complete"
	TypeToolCall              Type = "tool-call"
	TypeToolResult            Type = "tool-result"
	TypeQualityCheck          Type = "quality-check"
	TypeReviewStatus          Type = "review-status"
	TypeError                 Type = "error"
)

var allTypes = []Type{
	TypeOrchestrationStart,
	TypeOrchestrationComplete,
	TypeDepartmentStart,
	TypeDepartmentComplete,
	TypeAgentStart,
	TypeAgentThinking,
	TypeAgentComplete,
	TypeToolCall,
	TypeToolResult,
	TypeQualityCheck,
	TypeReviewStatus,
	TypeError,
}

// AllTypes returns every known event type in declaration order.
func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType validates s as a known event type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := decoders[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// Event is implemented by every lifecycle event variant in this package.
type Event interface {
	// Kind returns the variant's tag.
	Kind() Type
	// Header returns the fields shared by all variants.
	Header() Base

	sealed()
}

// Base holds the fields common to every event.
type Base struct {
	Type           Type      `json:"type"`
	ExecutionID    string    `json:"executionId"`
	ConversationID string    `json:"conversationId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Header implements Event.
func (b Base) Header() Base { return b }

// Ref identifies the execution (and optionally conversation) an event belongs to.
type Ref struct {
	ExecutionID    string
	ConversationID string
}

// NewBase stamps a header for kind at the current time.
func NewBase(kind Type, ref Ref) Base {
	return Base{
		Type:           kind,
		ExecutionID:    ref.ExecutionID,
		ConversationID: ref.ConversationID,
		Timestamp:      time.Now().UTC(),
	}
}

// OrchestrationStart marks the beginning of an orchestration run.
type OrchestrationStart struct {
	Base
	ProjectID   string   `json:"projectId,omitempty"`
	Request     string   `json:"request,omitempty"`
	Departments []string `json:"departments,omitempty"`
}

// OrchestrationComplete marks the end of an orchestration run.
type OrchestrationComplete struct {
	Base
	Success              bool   `json:"success"`
	DurationMs           int64  `json:"durationMs"`
	Summary              string `json:"summary,omitempty"`
	DepartmentsCompleted int    `json:"departmentsCompleted"`
}

// DepartmentStart is emitted when a department begins its work.
type DepartmentStart struct {
	Base
	Department     string `json:"department"`
	DepartmentName string `json:"departmentName,omitempty"`
	AgentCount     int    `json:"agentCount"`
}

// DepartmentComplete is emitted when a department finishes.
type DepartmentComplete struct {
	Base
	Department   string  `json:"department"`
	QualityScore float64 `json:"qualityScore"`
	DurationMs   int64   `json:"durationMs"`
	Success      bool    `json:"success"`
}

// AgentStart is emitted when an agent starts a task.
type AgentStart struct {
	Base
	AgentID    string `json:"agentId"`
	AgentName  string `json:"agentName,omitempty"`
	Department string `json:"department,omitempty"`
	Task       string `json:"task,omitempty"`
}

// AgentThinking carries an intermediate reasoning step.
type AgentThinking struct {
	Base
	AgentID string `json:"agentId"`
	Thought string `json:"thought"`
	Step    int    `json:"step,omitempty"`
}

// TokenUsage reports model token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AgentComplete is emitted when an agent finishes a task.
type AgentComplete struct {
	Base
	AgentID    string      `json:"agentId"`
	AgentName  string      `json:"agentName,omitempty"`
	Output     string      `json:"output,omitempty"`
	DurationMs int64       `json:"durationMs"`
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
	Success    bool        `json:"success"`
}

// ToolCall is emitted when an agent invokes a tool.
type ToolCall struct {
	Base
	AgentID    string          `json:"agentId"`
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// ToolResult is emitted when a tool invocation returns.
type ToolResult struct {
	Base
	AgentID    string          `json:"agentId"`
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Success    bool            `json:"success"`
	DurationMs int64           `json:"durationMs,omitempty"`
}

// QualityCheck reports a department quality gate evaluation.
type QualityCheck struct {
	Base
	Department string  `json:"department"`
	Score      float64 `json:"score"`
	Threshold  float64 `json:"threshold"`
	Passed     bool    `json:"passed"`
	Feedback   string  `json:"feedback,omitempty"`
}

// ReviewState is the status of a human review.
type ReviewState string

// Review states.
const (
	ReviewPending           ReviewState = "pending"
	ReviewApproved          ReviewState = "approved"
	ReviewRejected          ReviewState = "rejected"
	ReviewRevisionRequested ReviewState = "revision-requested"
)

// ReviewStatus reports a change in review state for a department's output.
type ReviewStatus struct {
	Base
	Department string      `json:"department"`
	Status     ReviewState `json:"status"`
	Reviewer   string      `json:"reviewer,omitempty"`
	Comments   string      `json:"comments,omitempty"`
}

// ErrorInfo describes a failure.
type ErrorInfo struct {
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Stack       string `json:"stack,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// Error is emitted when an agent or department fails.
type Error struct {
	Base
	AgentID    string    `json:"agentId,omitempty"`
	Department string    `json:"department,omitempty"`
	Error      ErrorInfo `json:"error"`
}

func (OrchestrationStart) Kind() Type    { return TypeOrchestrationStart }
func (OrchestrationComplete) Kind() Type { return TypeOrchestrationComplete }
func (DepartmentStart) Kind() Type       { return TypeDepartmentStart }
func (DepartmentComplete) Kind() Type    { return TypeDepartmentComplete }
func (AgentStart) Kind() Type            { return TypeAgentStart }
func (AgentThinking) Kind() Type         { return TypeAgentThinking }
func (AgentComplete) Kind() Type         { return TypeAgentComplete }
func (ToolCall) Kind() Type              { return TypeToolCall }
func (ToolResult) Kind() Type            { return TypeToolResult }
func (QualityCheck) Kind() Type          { return TypeQualityCheck }
func (ReviewStatus) Kind() Type          { return TypeReviewStatus }
func (Error) Kind() Type                 { return TypeError }

func (OrchestrationStart) sealed()    {}
func (OrchestrationComplete) sealed() {}
func (DepartmentStart) sealed()       {}
func (DepartmentComplete) sealed()    {}
func (AgentStart) sealed()            {}
func (AgentThinking) sealed()         {}
func (AgentComplete) sealed()         {}
func (ToolCall) sealed()              {}
func (ToolResult) sealed()            {}
func (QualityCheck) sealed()          {}
func (ReviewStatus) sealed()          {}
func (Error) sealed()                 {}

// ReservedExecutionID names the global channel and cannot identify an execution.
const ReservedExecutionID = "all"

// Validate checks that ev carries a usable execution id and a header tag
// that matches its variant.
func Validate(ev Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	h := ev.Header()
	if h.ExecutionID == "" {
		return ErrMissingExecutionID
	}
	if h.ExecutionID == ReservedExecutionID {
		return fmt.Errorf("%w: %q", ErrReservedExecutionID, h.ExecutionID)
	}
	if h.Type != ev.Kind() {
		return fmt.Errorf("%w: header %q, variant %q", ErrTypeMismatch, h.Type, ev.Kind())
	}
	return nil
}
