package ratelimit

import (
	"strings"
)

// MatchEndpoint returns the first configuration whose method and pattern match the request,
// or nil if none does.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	for i := range configs {
		config := &configs[i]
		if config.Method == method && matchPattern(config.Pattern, path) {
			return config
		}
	}
	return nil
}

// matchPattern compares path segments. "*" matches exactly one segment and a
// trailing "/" on the pattern matches any remaining segments.
func matchPattern(pattern, path string) bool {
	prefix := strings.HasSuffix(pattern, "/") && pattern != "/"
	pat := strings.Split(strings.Trim(pattern, "/"), "/")
	segs := strings.Split(strings.Trim(path, "/"), "/")

	if prefix {
		if len(segs) < len(pat) {
			return false
		}
	} else if len(segs) != len(pat) {
		return false
	}

	for i, p := range pat {
		if p != "*" && p != segs[i] {
			return false
		}
	}
	return true
}
