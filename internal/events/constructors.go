// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package events

import "time"

// NewOrchestrationStart creates an orchestration-start event.
func NewOrchestrationStart(ref Ref, projectID, request string, departments []string) OrchestrationStart {
	return OrchestrationStart{
		Base:        NewBase(TypeOrchestrationStart, ref),
		ProjectID:   projectID,
		Request:     request,
		Departments: departments,
	}
}

// NewOrchestrationComplete creates an orchestration-complete event.
func NewOrchestrationComplete(ref Ref, success bool, duration time.Duration, departmentsCompleted int, summary string) OrchestrationComplete {
	return OrchestrationComplete{
		Base:                 NewBase(TypeOrchestrationComplete, ref),
		Success:              success,
		DurationMs:           duration.Milliseconds(),
		Summary:              summary,
		DepartmentsCompleted: departmentsCompleted,
	}
}

// NewDepartmentStart creates a department-start event.
func NewDepartmentStart(ref Ref, department, name string, agentCount int) DepartmentStart {
	return DepartmentStart{
		Base:           NewBase(TypeDepartmentStart, ref),
		Department:     department,
		DepartmentName: name,
		AgentCount:     agentCount,
	}
}

// NewDepartmentComplete creates a department-complete event.
func NewDepartmentComplete(ref Ref, department string, qualityScore float64, duration time.Duration, success bool) DepartmentComplete {
	return DepartmentComplete{
		Base:         NewBase(TypeDepartmentComplete, ref),
		Department:   department,
		QualityScore: qualityScore,
		DurationMs:   duration.Milliseconds(),
		Success:      success,
	}
}

// NewAgentStart creates an agent-start event.
func NewAgentStart(ref Ref, agentID, agentName, department string) AgentStart {
	return AgentStart{
		Base:       NewBase(TypeAgentStart, ref),
		AgentID:    agentID,
		AgentName:  agentName,
		Department: department,
	}
}

// NewAgentThinking creates an agent-thinking event.
func NewAgentThinking(ref Ref, agentID, thought string, step int) AgentThinking {
	return AgentThinking{
		Base:    NewBase(TypeAgentThinking, ref),
		AgentID: agentID,
		Thought: thought,
		Step:    step,
	}
}

// NewAgentComplete creates an agent-complete event. usage may be nil.
func NewAgentComplete(ref Ref, agentID, output string, duration time.Duration, usage *TokenUsage, success bool) AgentComplete {
	return AgentComplete{
		Base:       NewBase(TypeAgentComplete, ref),
		AgentID:    agentID,
		Output:     output,
		DurationMs: duration.Milliseconds(),
		TokenUsage: usage,
		Success:    success,
	}
}

// NewToolCall creates a tool-call event.
func NewToolCall(ref Ref, agentID, toolName, toolCallID string, input []byte) ToolCall {
	return ToolCall{
		Base:       NewBase(TypeToolCall, ref),
		AgentID:    agentID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Input:      input,
	}
}

// NewToolResult creates a tool-result event.
func NewToolResult(ref Ref, agentID, toolName, toolCallID string, output []byte, success bool, duration time.Duration) ToolResult {
	return ToolResult{
		Base:       NewBase(TypeToolResult, ref),
		AgentID:    agentID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Output:     output,
		Success:    success,
		DurationMs: duration.Milliseconds(),
	}
}

// NewQualityCheck creates a quality-check event. Passed is derived from
// score and threshold.
func NewQualityCheck(ref Ref, department string, score, threshold float64, feedback string) QualityCheck {
	return QualityCheck{
		Base:       NewBase(TypeQualityCheck, ref),
		Department: department,
		Score:      score,
		Threshold:  threshold,
		Passed:     score >= threshold,
		Feedback:   feedback,
	}
}

// NewReviewStatus creates a review-status event.
func NewReviewStatus(ref Ref, department string, status ReviewState, reviewer, comments string) ReviewStatus {
	return ReviewStatus{
		Base:       NewBase(TypeReviewStatus, ref),
		Department: department,
		Status:     status,
		Reviewer:   reviewer,
		Comments:   comments,
	}
}

// NewError creates an error event from err.
func NewError(ref Ref, agentID, department string, err error, recoverable bool) Error {
	info := ErrorInfo{Recoverable: recoverable}
	if err != nil {
		info.Message = err.Error()
	}
	return Error{
		Base:       NewBase(TypeError, ref),
		AgentID:    agentID,
		Department: department,
		Error:      info,
	}
}
