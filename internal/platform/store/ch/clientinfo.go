package ch

import (
	"runtime"
	"strings"

	"rangeload/internal/core/version"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// clientInfo tags every connection so system.query_log shows which binary
// (lambda, worker, api) wrote a batch and from which build
func clientInfo(role string) clickhouse.ClientInfo {
	bi := version.Info("rangeload")
	role = strings.TrimSpace(role)
	if role == "" {
		role = "unknown"
	}
	type kv = struct{ Name, Version string }
	return clickhouse.ClientInfo{Products: []kv{
		{Name: bi.Service, Version: bi.Version},
		{Name: "role", Version: role},
		{Name: "commit", Version: bi.Commit},
		{Name: "go", Version: runtime.Version()},
	}}
}
