// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package emitter

import (
	"time"

	"github.com/tomtom215/agentstream/internal/events"
)

// Convenience helpers for orchestration code. Each builds the event with the
// matching events constructor and emits it with default options.

func (e *Emitter) OrchestrationStarted(ref events.Ref, projectID, request string, departments []string) {
	e.Emit(events.NewOrchestrationStart(ref, projectID, request, departments))
}

func (e *Emitter) OrchestrationCompleted(ref events.Ref, success bool, duration time.Duration, departmentsCompleted int, summary string) {
	e.Emit(events.NewOrchestrationComplete(ref, success, duration, departmentsCompleted, summary))
}

func (e *Emitter) DepartmentStarted(ref events.Ref, department, name string, agentCount int) {
	e.Emit(events.NewDepartmentStart(ref, department, name, agentCount))
}

func (e *Emitter) DepartmentCompleted(ref events.Ref, department string, qualityScore float64, duration time.Duration, success bool) {
	e.Emit(events.NewDepartmentComplete(ref, department, qualityScore, duration, success))
}

func (e *Emitter) AgentStarted(ref events.Ref, agentID, agentName, department string) {
	e.Emit(events.NewAgentStart(ref, agentID, agentName, department))
}

func (e *Emitter) AgentThinking(ref events.Ref, agentID, thought string, step int) {
	e.Emit(events.NewAgentThinking(ref, agentID, thought, step))
}

func (e *Emitter) AgentCompleted(ref events.Ref, agentID, output string, duration time.Duration, usage *events.TokenUsage, success bool) {
	e.Emit(events.NewAgentComplete(ref, agentID, output, duration, usage, success))
}

func (e *Emitter) ToolCalled(ref events.Ref, agentID, toolName, toolCallID string, input []byte) {
	e.Emit(events.NewToolCall(ref, agentID, toolName, toolCallID, input))
}

func (e *Emitter) ToolReturned(ref events.Ref, agentID, toolName, toolCallID string, output []byte, success bool, duration time.Duration) {
	e.Emit(events.NewToolResult(ref, agentID, toolName, toolCallID, output, success, duration))
}

func (e *Emitter) QualityChecked(ref events.Ref, department string, score, threshold float64, feedback string) {
	e.Emit(events.NewQualityCheck(ref, department, score, threshold, feedback))
}

func (e *Emitter) ReviewUpdated(ref events.Ref, department string, status events.ReviewState, reviewer, comments string) {
	e.Emit(events.NewReviewStatus(ref, department, status, reviewer, comments))
}

func (e *Emitter) ErrorOccurred(ref events.Ref, agentID, department string, err error, recoverable bool) {
	e.Emit(events.NewError(ref, agentID, department, err, recoverable))
}
