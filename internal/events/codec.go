// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

type decodeFunc func(data []byte) (Event, error)

// decoders maps every tag to the variant it decodes into. A tag missing
// here cannot be read back, so codec_test checks it against allTypes.
var decoders = map[Type]decodeFunc{
	TypeOrchestrationStart:    decodeAs[OrchestrationStart],
	TypeOrchestrationComplete: decodeAs[OrchestrationComplete],
	TypeDepartmentStart:       decodeAs[DepartmentStart],
	TypeDepartmentComplete:    decodeAs[DepartmentComplete],
	TypeAgentStart:            decodeAs[AgentStart],
	TypeAgentThinking:         decodeAs[AgentThinking],
	TypeAgentComplete:         decodeAs[AgentComplete],
	TypeToolCall:              decodeAs[ToolCall],
	TypeToolResult:            decodeAs[ToolResult],
	TypeQualityCheck:          decodeAs[QualityCheck],
	TypeReviewStatus:          decodeAs[ReviewStatus],
	TypeError:                 decodeAs[Error],
}

func decodeAs[T Event](data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Encode validates ev and marshals it to JSON.
func Encode(ev Event) ([]byte, error) {
	if err := Validate(ev); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Decode unmarshals data into the variant named by its "type" field.
func Decode(data []byte) (Event, error) {
	var tag struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("unmarshal event type: %w", err)
	}
	decode, ok := decoders[tag.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, tag.Type)
	}
	ev, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s event: %w", tag.Type, err)
	}
	if err := Validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Describe returns a short human readable summary of ev for logs.
func Describe(ev Event) string {
	switch e := ev.(type) {
	case OrchestrationStart:
		return fmt.Sprintf("orchestration started (%d departments)", len(e.Departments))
	case OrchestrationComplete:
		return fmt.Sprintf("orchestration complete success=%t in %dms", e.Success, e.DurationMs)
	case DepartmentStart:
		return "department " + e.Department + " started"
	case DepartmentComplete:
		return fmt.Sprintf("department %s complete score=%.2f", e.Department, e.QualityScore)
	case AgentStart:
		return "agent " + e.AgentID + " started"
	case AgentThinking:
		return fmt.Sprintf("agent %s thinking step %d", e.AgentID, e.Step)
	case AgentComplete:
		return fmt.Sprintf("agent %s complete success=%t in %dms", e.AgentID, e.Success, e.DurationMs)
	case ToolCall:
		return "agent " + e.AgentID + " called " + e.ToolName
	case ToolResult:
		return fmt.Sprintf("tool %s returned success=%t", e.ToolName, e.Success)
	case QualityCheck:
		return fmt.Sprintf("quality check %s passed=%t (%.2f/%.2f)", e.Department, e.Passed, e.Score, e.Threshold)
	case ReviewStatus:
		return "review " + e.Department + " " + string(e.Status)
	case Error:
		return "error: " + e.Error.Message
	default:
		return "unknown event"
	}
}
