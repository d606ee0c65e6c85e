// Package event defines processable events, the batch wire format and dispatch-ready requests.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type distinguishes impressions from conversions.
type Type string

const (
	TypeImpression Type = "impression"
	TypeConversion Type = "conversion"
)

// Context holds the fields that must match for two events to share a batch.
// Context is comparable; two events are batchable together iff their contexts are ==.
type Context struct {
	AccountID     string `json:"accountId"`
	ProjectID     string `json:"projectId"`
	Revision      string `json:"revision"`
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	AnonymizeIP   bool   `json:"anonymizeIP"`
	BotFiltering  bool   `json:"botFiltering"`
}

// Attribute is a user attribute resolved against the project configuration.
type Attribute struct {
	EntityID string `json:"entityId"`
	Key      string `json:"key"`
	Value    any    `json:"value"`
}

// User identifies the visitor an event belongs to.
type User struct {
	ID         string      `json:"id"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Impression carries decision metadata for an experiment or flag exposure.
type Impression struct {
	LayerID      string `json:"layerId"`
	ExperimentID string `json:"experimentId"`
	VariationID  string `json:"variationId"`
	VariationKey string `json:"variationKey"`
	FlagKey      string `json:"flagKey"`
	RuleKey      string `json:"ruleKey"`
	RuleType     string `json:"ruleType"`
	Enabled      bool   `json:"enabled"`
}

// Conversion carries a tracked event key and its tags.
type Conversion struct {
	EventID  string         `json:"eventId"`
	EventKey string         `json:"eventKey"`
	Tags     map[string]any `json:"tags,omitempty"`
}

// Event is an impression or conversion ready for batching. Treat as immutable.
type Event struct {
	Type       Type        `json:"type"`
	Timestamp  int64       `json:"timestamp"` // unix milliseconds
	UUID       string      `json:"uuid"`
	Context    Context     `json:"context"`
	User       User        `json:"user"`
	Impression *Impression `json:"impression,omitempty"`
	Conversion *Conversion `json:"conversion,omitempty"`
}

// NewImpression creates an impression event stamped with a fresh UUID and the current time.
func NewImpression(ctx Context, user User, imp Impression) Event {
	return Event{
		Type:       TypeImpression,
		Timestamp:  time.Now().UnixMilli(),
		UUID:       uuid.NewString(),
		Context:    ctx,
		User:       user,
		Impression: &imp,
	}
}

// NewConversion creates a conversion event stamped with a fresh UUID and the current time.
func NewConversion(ctx Context, user User, conv Conversion) Event {
	return Event{
		Type:       TypeConversion,
		Timestamp:  time.Now().UnixMilli(),
		UUID:       uuid.NewString(),
		Context:    ctx,
		User:       user,
		Conversion: &conv,
	}
}

// SameContext reports whether a and b can share a batch.
func SameContext(a, b Event) bool {
	return a.Context == b.Context
}
