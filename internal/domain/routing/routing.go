// Package routing maps question topics to expert agents and resolves the
// confidence threshold that applies to each topic.
package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultThreshold is the global confidence threshold applied when a topic
// has no override configured.
const DefaultThreshold = 80

// Entry is one configured topic route.
type Entry struct {
	Topic     string `json:"topic" yaml:"topic"`
	AgentID   string `json:"agent_id" yaml:"agent_id"`
	ModelHint string `json:"model_hint,omitempty" yaml:"model_hint"`
	// Threshold overrides the default confidence threshold for this topic.
	// Zero means no override.
	Threshold int `json:"threshold,omitempty" yaml:"threshold"`
}

// Agent describes an expert agent and how to reach it.
type Agent struct {
	ID        string   `json:"id" yaml:"id"`
	Endpoint  string   `json:"endpoint" yaml:"endpoint"`
	Workflows []string `json:"workflows,omitempty" yaml:"workflows"`
}

// Route is the result of resolving a topic: which agent answers it, with
// which model hint, gated by which threshold.
type Route struct {
	Topic     string `json:"topic"`
	AgentID   string `json:"agent_id"`
	ModelHint string `json:"model_hint,omitempty"`
	Threshold int    `json:"threshold"`
}

// UnknownTopicError is returned when a topic has no configured route.
// It carries the valid alternatives so clients can correct the request.
type UnknownTopicError struct {
	Topic     string
	Available []string
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("unknown topic %q (available: %s)", e.Topic, strings.Join(e.Available, ", "))
}

// UnknownAgentError is returned when an agent ID has no configured definition.
type UnknownAgentError struct {
	Agent     string
	Available []string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q (available: %s)", e.Agent, strings.Join(e.Available, ", "))
}

var (
	ErrNoAgents          = errors.New("routing: at least one agent must be configured")
	ErrDuplicateTopic    = errors.New("routing: duplicate topic")
	ErrDuplicateAgent    = errors.New("routing: duplicate agent")
	ErrThresholdRange    = errors.New("routing: threshold must be in [0, 100]")
	ErrEndpointRequired  = errors.New("routing: agent endpoint is required")
	ErrRouteAgentMissing = errors.New("routing: topic references an agent that is not defined")
)

// Table is the immutable routing configuration, loaded once at process start.
// All lookups are read-only and safe for concurrent use.
type Table struct {
	defaultThreshold int
	topics           map[string]Entry
	agents           map[string]Agent
	topicNames       []string
	agentNames       []string
}

// NewTable builds a Table from configured entries and agent definitions.
// defaultThreshold <= 0 selects DefaultThreshold.
func NewTable(defaultThreshold int, entries []Entry, agents []Agent) (*Table, error) {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultThreshold
	}
	if defaultThreshold > 100 {
		return nil, ErrThresholdRange
	}
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	t := &Table{
		defaultThreshold: defaultThreshold,
		topics:           make(map[string]Entry, len(entries)),
		agents:           make(map[string]Agent, len(agents)),
	}

	for _, a := range agents {
		if a.Endpoint == "" {
			return nil, fmt.Errorf("agent %q: %w", a.ID, ErrEndpointRequired)
		}
		if _, exists := t.agents[a.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAgent, a.ID)
		}
		t.agents[a.ID] = a
		t.agentNames = append(t.agentNames, a.ID)
	}

	for _, e := range entries {
		if e.Threshold < 0 || e.Threshold > 100 {
			return nil, fmt.Errorf("topic %q: %w", e.Topic, ErrThresholdRange)
		}
		if _, exists := t.topics[e.Topic]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTopic, e.Topic)
		}
		if _, ok := t.agents[e.AgentID]; !ok {
			return nil, fmt.Errorf("topic %q -> agent %q: %w", e.Topic, e.AgentID, ErrRouteAgentMissing)
		}
		t.topics[e.Topic] = e
		t.topicNames = append(t.topicNames, e.Topic)
	}

	sort.Strings(t.topicNames)
	sort.Strings(t.agentNames)
	return t, nil
}

// ResolveTopic returns the route for a topic. The effective threshold is the
// topic override when set, otherwise the table default. A topic absent from
// the configuration is a hard error, never silently defaulted to some agent.
func (t *Table) ResolveTopic(topic string) (Route, error) {
	e, ok := t.topics[topic]
	if !ok {
		return Route{}, &UnknownTopicError{Topic: topic, Available: t.Topics()}
	}

	threshold := e.Threshold
	if threshold == 0 {
		threshold = t.defaultThreshold
	}

	return Route{
		Topic:     e.Topic,
		AgentID:   e.AgentID,
		ModelHint: e.ModelHint,
		Threshold: threshold,
	}, nil
}

// ResolveAgent returns the definition for an agent ID.
func (t *Table) ResolveAgent(id string) (Agent, error) {
	a, ok := t.agents[id]
	if !ok {
		return Agent{}, &UnknownAgentError{Agent: id, Available: t.Agents()}
	}
	return a, nil
}

// DefaultThreshold returns the table's fallback confidence threshold.
func (t *Table) DefaultThreshold() int {
	return t.defaultThreshold
}

// Topics returns the configured topic names, sorted.
func (t *Table) Topics() []string {
	return append([]string(nil), t.topicNames...)
}

// Agents returns the configured agent IDs, sorted.
func (t *Table) Agents() []string {
	return append([]string(nil), t.agentNames...)
}
