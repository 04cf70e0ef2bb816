// Package raw provides a minimal env reader used during bootstrap.
// It has no dependency on the logger package so the logger can read its own options
package raw

import (
	"os"
	"strings"
)

// Conf is a namespaced view over environment variables (e.g. "LOG_")
type Conf struct{ prefix string }

// New returns a root Conf (no prefix)
func New() Conf { return Conf{} }

// Prefix returns a child Conf with an additional prefix
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) lookup(k string) string { return strings.TrimSpace(os.Getenv(c.prefix + k)) }

// Get returns the trimmed env var or def if empty
func (c Conf) Get(key, def string) string {
	if v := c.lookup(key); v != "" {
		return v
	}
	return def
}

// GetBool parses "1|true|yes" as true; anything else set is false
func (c Conf) GetBool(key string, def bool) bool {
	switch v := strings.ToLower(c.lookup(key)); v {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// GetInt parses a non-negative integer; non-numeric input yields def
func (c Conf) GetInt(key string, def int) int {
	s := c.lookup(key)
	if s == "" {
		return def
	}
	n := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < '0' || ch > '9' {
			return def
		}
		n = n*10 + int(ch-'0')
	}
	return n
}

// GetMap parses "k=v,k2=v2" (e.g. LOG_FIELDS=stage=prod,team=data).
// Pairs without '=' or with an empty key are dropped; nil when nothing is left
func (c Conf) GetMap(key string) map[string]string {
	s := c.lookup(key)
	if s == "" {
		return nil
	}
	var out map[string]string
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// InLambda reports whether the process runs inside an AWS Lambda runtime
func InLambda() bool {
	env := New()
	return env.lookup("AWS_LAMBDA_FUNCTION_NAME") != "" || env.lookup("LAMBDA_TASK_ROOT") != ""
}
