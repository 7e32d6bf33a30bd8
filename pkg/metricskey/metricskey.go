package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsModelRequests is base for counter metric for total requests sent to the model service
	StatsModelRequests = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_requests",
		Help:         "stats_model_requests provides total requests sent to the model service",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelFailures = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_failures",
		Help:         "stats_model_failures provides total failed model service requests",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_input_tokens",
		Help:         "stats_model_input_tokens provides total input tokens sent to the model",
		RequiredTags: []string{"provider", "model"},
	}

	StatsModelOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_model_output_tokens",
		Help:         "stats_model_output_tokens provides total output tokens received from the model",
		RequiredTags: []string{"provider", "model"},
	}

	StatsSessionBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_session_bytes_sent",
		Help:         "stats_session_bytes_sent provides total history bytes sent to the model",
		RequiredTags: []string{"agent", "model"},
	}

	StatsTurnsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turns_succeeded",
		Help:         "stats_turns_succeeded provides total user turns answered",
		RequiredTags: []string{"agent"},
	}

	StatsTurnsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turns_failed",
		Help:         "stats_turns_failed provides total user turns failed",
		RequiredTags: []string{"agent"},
	}

	StatsTurnsExceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turns_exceeded",
		Help:         "stats_turns_exceeded provides total user turns stopped at the model turn limit",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsBridgeErrors = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_bridge_errors",
		Help:         "stats_bridge_errors provides total transport failures of the tool bridge",
		RequiredTags: []string{"transport"},
	}

	StatsCatalogCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_catalog_cache_hits",
		Help:         "stats_catalog_cache_hits provides total tool catalog requests served from cache",
		RequiredTags: []string{"transport"},
	}
)

// Perf
var (
	PerfModelCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_model_call",
		Help:         "perf_model_call provides duration of model service call",
		RequiredTags: []string{"provider", "model"},
	}

	PerfSessionTurn = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_session_turn",
		Help:         "perf_session_turn provides duration of a user turn",
		RequiredTags: []string{"agent"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfBridgeCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_bridge_call",
		Help:         "perf_bridge_call provides duration of tool bridge call",
		RequiredTags: []string{"transport"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfBridgeCall,
	&PerfModelCall,
	&PerfSessionTurn,
	&PerfToolCall,
	&StatsBridgeErrors,
	&StatsCatalogCacheHits,
	&StatsModelFailures,
	&StatsModelInputTokens,
	&StatsModelOutputTokens,
	&StatsModelRequests,
	&StatsSessionBytesSent,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsTurnsExceeded,
	&StatsTurnsFailed,
	&StatsTurnsSucceeded,
}
