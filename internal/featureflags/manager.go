// Package featureflags evaluates Dropp's runtime feature flags from the
// FEATURE_FLAGS setting.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"dropp/internal/observability"
)

const (
	// SymmetricCompensation makes removals restore their first delete when the
	// second delete fails.
	SymmetricCompensation = "symmetric_compensation"
	// GraphEvents publishes follow graph changes to the users' event channels.
	GraphEvents = "graph_events"
)

// Flag is one flag the service understands.
type Flag struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     string `json:"default"`
}

var known = []Flag{
	{
		Name:        SymmetricCompensation,
		Description: "restore the first delete of a removal when the second delete fails",
		Default:     "off",
	},
	{
		Name:        GraphEvents,
		Description: "publish follow graph events on notifications:user:<username>",
		Default:     "on",
	},
}

// Known returns the flags the service understands, sorted by name.
func Known() []Flag {
	out := make([]Flag, len(known))
	copy(out, known)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lookup(name string) (Flag, bool) {
	for _, f := range known {
		if f.Name == name {
			return f, true
		}
	}
	return Flag{}, false
}

// Manager holds the resolved value of every known flag.
// Example: "symmetric_compensation=25%,graph_events=off"
type Manager struct {
	flags map[string]string
}

// NewManager resolves raw over the defaults. Unknown names and malformed
// values are logged and ignored.
func NewManager(raw string) *Manager {
	m, problems := Parse(raw)
	for _, p := range problems {
		observability.Logger.Warn("ignoring feature flag", slog.String("reason", p))
	}
	return m
}

// Parse resolves raw over the defaults and returns the entries it ignored.
func Parse(raw string) (*Manager, []string) {
	out := make(map[string]string, len(known))
	for _, f := range known {
		out[f.Name] = f.Default
	}

	var problems []string
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			problems = append(problems, fmt.Sprintf("%q is not name=value", pair))
			continue
		}
		key, value = normalize(key), normalize(value)
		if _, ok := lookup(key); !ok {
			problems = append(problems, fmt.Sprintf("unknown flag %q", key))
			continue
		}
		if !validValue(value) {
			problems = append(problems, fmt.Sprintf("flag %q has invalid value %q", key, value))
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}, problems
}

// validValue accepts on/true/1, off/false/0 and N% with N in [0, 100].
func validValue(v string) bool {
	switch v {
	case "on", "true", "1", "off", "false", "0":
		return true
	}
	if !strings.HasSuffix(v, "%") {
		return false
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
	return err == nil && pct >= 0 && pct <= 100
}

// Enabled returns whether a flag is enabled for a given username. A
// percentage rolls out deterministically per user and never to an empty
// username unless it is 100%.
func (m *Manager) Enabled(name, username string) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if err != nil || pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if username == "" {
		return false
	}
	return rolloutBucket(name, username) < pct
}

// Raw returns the resolved value of every known flag.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot returns every known flag evaluated for one user.
func (m *Manager) Snapshot(username string) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, username)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, username string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + username))
	return int(h.Sum32() % 100)
}
