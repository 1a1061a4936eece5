// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package events

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testRef = Ref{ExecutionID: "exec-1", ConversationID: "conv-1"}

func sampleEvents() []Event {
	return []Event{
		NewOrchestrationStart(testRef, "proj-1", "make a film", []string{"story", "character"}),
		NewOrchestrationComplete(testRef, true, 3*time.Second, 2, "done"),
		NewDepartmentStart(testRef, "story", "Story", 3),
		NewDepartmentComplete(testRef, "story", 0.92, time.Second, true),
		NewAgentStart(testRef, "story-head", "Story Head", "story"),
		NewAgentThinking(testRef, "story-head", "outline first", 1),
		NewAgentComplete(testRef, "story-head", "outline", 1500*time.Millisecond, &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, true),
		NewToolCall(testRef, "story-head", "search", "call-1", []byte(`{"q":"noir"}`)),
		NewToolResult(testRef, "story-head", "search", "call-1", []byte(`["a","b"]`), true, 20*time.Millisecond),
		NewQualityCheck(testRef, "story", 0.8, 0.7, "good"),
		NewReviewStatus(testRef, "story", ReviewApproved, "alice", ""),
		NewError(testRef, "story-head", "story", errors.New("model timeout"), true),
	}
}

func TestDecodersCoverAllTypes(t *testing.T) {
	for _, typ := range AllTypes() {
		if _, ok := decoders[typ]; !ok {
			t.Errorf("no decoder registered for %q", typ)
		}
	}
	if len(decoders) != len(allTypes) {
		t.Errorf("decoders has %d entries, want %d", len(decoders), len(allTypes))
	}
}

func TestEncodeDecode_AllVariants(t *testing.T) {
	samples := sampleEvents()
	if len(samples) != len(AllTypes()) {
		t.Fatalf("sampleEvents covers %d types, want %d", len(samples), len(AllTypes()))
	}

	for _, ev := range samples {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			data, err := Encode(ev)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !strings.Contains(string(data), `"type":"`+string(ev.Kind())+`"`) {
				t.Errorf("encoded payload missing type tag: %s", data)
			}
			if !strings.Contains(string(data), `"executionId":"exec-1"`) {
				t.Errorf("encoded payload missing executionId: %s", data)
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Kind() != ev.Kind() {
				t.Errorf("Kind() = %q, want %q", got.Kind(), ev.Kind())
			}
			if got.Header().ConversationID != "conv-1" {
				t.Errorf("ConversationID = %q, want conv-1", got.Header().ConversationID)
			}
		})
	}
}

func TestDecode_PreservesVariantFields(t *testing.T) {
	data, err := Encode(NewAgentStart(Ref{ExecutionID: "exec-1"}, "story-head", "Story Head", "story"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	start, ok := ev.(AgentStart)
	if !ok {
		t.Fatalf("Decode() returned %T, want AgentStart", ev)
	}
	if start.AgentID != "story-head" {
		t.Errorf("AgentID = %q, want story-head", start.AgentID)
	}
	if strings.Contains(string(data), "conversationId") {
		t.Errorf("empty conversationId should be omitted: %s", data)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"unknown type", `{"type":"agent-dance","executionId":"e"}`, ErrUnknownEventType},
		{"missing execution", `{"type":"agent-start","agentId":"a"}`, ErrMissingExecutionID},
		{"reserved execution", `{"type":"agent-start","executionId":"all","agentId":"a"}`, ErrReservedExecutionID},
		{"not json", `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("Decode() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, ErrNilEvent) {
		t.Errorf("Validate(nil) = %v, want ErrNilEvent", err)
	}

	if err := Validate(NewAgentStart(Ref{ExecutionID: ReservedExecutionID}, "a", "", "")); !errors.Is(err, ErrReservedExecutionID) {
		t.Errorf("Validate() = %v, want ErrReservedExecutionID", err)
	}

	ev := NewAgentStart(Ref{ExecutionID: "exec-1"}, "a", "", "")
	ev.Type = TypeAgentComplete
	if err := Validate(ev); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Validate() = %v, want ErrTypeMismatch", err)
	}

	if _, err := Encode(AgentStart{AgentID: "a"}); err == nil {
		t.Error("Encode() of event without header should fail")
	}
}

func TestParseType(t *testing.T) {
	if got, err := ParseType("tool-call"); err != nil || got != TypeToolCall {
		t.Errorf("ParseType(tool-call) = %q, %v", got, err)
	}
	if _, err := ParseType("bogus"); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("ParseType(bogus) error = %v", err)
	}
}

func TestNewQualityCheck_Passed(t *testing.T) {
	if !NewQualityCheck(testRef, "story", 0.7, 0.7, "").Passed {
		t.Error("score equal to threshold should pass")
	}
	if NewQualityCheck(testRef, "story", 0.69, 0.7, "").Passed {
		t.Error("score below threshold should not pass")
	}
}

func TestDescribe(t *testing.T) {
	for _, ev := range sampleEvents() {
		if got := Describe(ev); got == "" || got == "unknown event" {
			t.Errorf("Describe(%s) = %q", ev.Kind(), got)
		}
	}
}
