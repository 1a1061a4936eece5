// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package validation

import (
	"strings"
	"testing"
	"time"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil {
		t.Fatal("GetValidator() returned nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same instance")
	}
}

type eventsQuery struct {
	ExecutionID string `validate:"identifier"`
	Type        string `validate:"omitempty,eventtype"`
	Source      string `validate:"omitempty,oneof=buffer store"`
	Limit       int    `validate:"min=1,max=1000"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   eventsQuery
		wantTag string
	}{
		{"valid minimal", eventsQuery{ExecutionID: "exec-1", Limit: 10}, ""},
		{"valid full", eventsQuery{ExecutionID: "exec-1", Type: "agent-start", Source: "store", Limit: 1000}, ""},
		{"empty id", eventsQuery{Limit: 1}, "identifier"},
		{"whitespace id", eventsQuery{ExecutionID: "exec 1", Limit: 1}, "identifier"},
		{"wildcard id", eventsQuery{ExecutionID: "exec.*", Limit: 1}, "identifier"},
		{"unknown type", eventsQuery{ExecutionID: "e", Type: "agent-dance", Limit: 1}, "eventtype"},
		{"bad source", eventsQuery{ExecutionID: "e", Source: "disk", Limit: 1}, "oneof"},
		{"limit too small", eventsQuery{ExecutionID: "e"}, "min"},
		{"limit too large", eventsQuery{ExecutionID: "e", Limit: 1001}, "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() = nil, want %s failure", tt.wantTag)
			}
			if got := err.Errors()[0].Tag(); got != tt.wantTag {
				t.Errorf("tag = %q, want %q", got, tt.wantTag)
			}
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"exec-1", true},
		{"conv_2024-01-01T00:00", true},
		{"", false},
		{"a b", false},
		{"tab\tid", false},
		{"star*", false},
		{"gt>", false},
		{strings.Repeat("x", maxIdentifierLen), true},
		{strings.Repeat("x", maxIdentifierLen+1), false},
	}
	for _, tt := range tests {
		if got := ValidIdentifier(tt.id); got != tt.want {
			t.Errorf("ValidIdentifier(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&eventsQuery{ExecutionID: "e", Type: "nope", Limit: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Message != "Type must be a known event type" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "eventsQuery.Type" {
		t.Errorf("Details[field] = %v", apiErr.Details["field"])
	}

	multi := ValidateStruct(&eventsQuery{Source: "disk"})
	if multi == nil || len(multi.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %v", multi)
	}
	apiErr = multi.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 3 {
		t.Fatalf("Details[fields] = %v", apiErr.Details["fields"])
	}
	if !strings.Contains(apiErr.Message, "Source: Source must be one of: buffer store") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

type durations struct {
	Interval time.Duration `validate:"gt=0"`
	Backend  string        `validate:"required,oneof=redis nats memory"`
}

func TestValidateStruct_ConfigStyle(t *testing.T) {
	if err := ValidateStruct(&durations{Interval: time.Second, Backend: "nats"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateStruct(&durations{Backend: "kafka"})
	if err == nil || len(err.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %v", err)
	}
	if !strings.Contains(err.Error(), "Interval must be greater than 0") {
		t.Errorf("Error() = %q", err.Error())
	}
}
