// Package authgate defers privileged commands until an actor is authenticated.
package authgate

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Kind names what a deferred command does.
type Kind string

// Kind constants
const (
	KindPublishArticle Kind = "publish_article"
	KindFetchLatest    Kind = "fetch_latest"
)

// Command is an inspectable description of a privileged operation.
type Command struct {
	Kind   Kind              `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// NewCommand builds a command. params is copied.
func NewCommand(kind Kind, params map[string]string) Command {
	return Command{Kind: kind, Params: maps.Clone(params)}
}

// Param returns a parameter value or "".
func (c Command) Param(key string) string {
	return c.Params[key]
}

// String formats the command for logs with parameters in key order.
func (c Command) String() string {
	if len(c.Params) == 0 {
		return string(c.Kind)
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, c.Params[k]))
	}
	return fmt.Sprintf("%s(%s)", c.Kind, strings.Join(parts, ", "))
}
