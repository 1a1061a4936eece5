// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package persistence

import (
	"time"

	"github.com/tomtom215/agentstream/internal/events"
)

// Statistics summarizes an execution's persisted history.
type Statistics struct {
	ExecutionID            string              `json:"executionId"`
	Total                  int                 `json:"total"`
	ByType                 map[events.Type]int `json:"byType"`
	Errors                 int                 `json:"errors"`
	FirstEventAt           *time.Time          `json:"firstEventAt,omitempty"`
	LastEventAt            *time.Time          `json:"lastEventAt,omitempty"`
	AgentsCompleted        int                 `json:"agentsCompleted"`
	AverageAgentDurationMs float64             `json:"averageAgentDurationMs"`
	TotalTokens            int                 `json:"totalTokens"`
	QualityChecksFailed    int                 `json:"qualityChecksFailed"`
}

// ComputeStatistics aggregates evs, which must belong to executionID.
func ComputeStatistics(executionID string, evs []events.Event) Statistics {
	st := Statistics{ExecutionID: executionID, ByType: make(map[events.Type]int)}
	var agentMs int64

	for _, ev := range evs {
		st.Total++
		st.ByType[ev.Kind()]++

		ts := ev.Header().Timestamp
		if st.FirstEventAt == nil || ts.Before(*st.FirstEventAt) {
			t := ts
			st.FirstEventAt = &t
		}
		if st.LastEventAt == nil || ts.After(*st.LastEventAt) {
			t := ts
			st.LastEventAt = &t
		}

		switch e := ev.(type) {
		case events.AgentComplete:
			st.AgentsCompleted++
			agentMs += e.DurationMs
			if e.TokenUsage != nil {
				st.TotalTokens += e.TokenUsage.TotalTokens
			}
		case events.Error:
			st.Errors++
		case events.QualityCheck:
			if !e.Passed {
				st.QualityChecksFailed++
			}
		}
	}

	if st.AgentsCompleted > 0 {
		st.AverageAgentDurationMs = float64(agentMs) / float64(st.AgentsCompleted)
	}
	return st
}
