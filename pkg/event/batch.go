package event

import (
	"math"
)

// Reserved attribute and event keys used by the collector.
const (
	BotFilteringAttribute = "$opt_bot_filtering"
	ActivateEventKey      = "campaign_activated"
	attributeTypeCustom   = "custom"
	revenueTag            = "revenue"
	valueTag              = "value"
)

// Batch is the wire unit: one shared context block and one visitor per event.
type Batch struct {
	AccountID       string    `json:"account_id"`
	ProjectID       string    `json:"project_id"`
	Revision        string    `json:"revision"`
	ClientName      string    `json:"client_name"`
	ClientVersion   string    `json:"client_version"`
	AnonymizeIP     bool      `json:"anonymize_ip"`
	EnrichDecisions bool      `json:"enrich_decisions"`
	Visitors        []Visitor `json:"visitors"`
}

// Visitor groups the snapshots recorded for one user.
type Visitor struct {
	VisitorID  string             `json:"visitor_id"`
	Attributes []VisitorAttribute `json:"attributes"`
	Snapshots  []Snapshot         `json:"snapshots"`
}

// VisitorAttribute is an attribute as serialized on the wire.
type VisitorAttribute struct {
	EntityID string `json:"entity_id"`
	Key      string `json:"key"`
	Type     string `json:"type"`
	Value    any    `json:"value"`
}

// Snapshot holds the decisions and events from a single processable event.
type Snapshot struct {
	Decisions []Decision      `json:"decisions,omitempty"`
	Events    []SnapshotEvent `json:"events"`
}

// Decision records which variation a user was bucketed into.
type Decision struct {
	CampaignID   string           `json:"campaign_id"`
	ExperimentID string           `json:"experiment_id"`
	VariationID  string           `json:"variation_id"`
	Metadata     DecisionMetadata `json:"metadata"`
}

// DecisionMetadata describes the flag and rule behind a decision.
type DecisionMetadata struct {
	FlagKey      string `json:"flag_key"`
	RuleKey      string `json:"rule_key"`
	RuleType     string `json:"rule_type"`
	VariationKey string `json:"variation_key"`
	Enabled      bool   `json:"enabled"`
}

// SnapshotEvent is the event record inside a snapshot.
type SnapshotEvent struct {
	EntityID  string         `json:"entity_id"`
	Timestamp int64          `json:"timestamp"`
	UUID      string         `json:"uuid"`
	Key       string         `json:"key"`
	Revenue   *int64         `json:"revenue,omitempty"`
	Value     *float64       `json:"value,omitempty"`
	Tags      map[string]any `json:"tags,omitempty"`
}

// Len returns the number of events in the batch.
func (b Batch) Len() int {
	return len(b.Visitors)
}

// BuildBatch builds a batch from same-context events, preserving order.
// The context block is taken from the first event; callers partition by context first.
func BuildBatch(events []Event) Batch {
	if len(events) == 0 {
		return Batch{EnrichDecisions: true, Visitors: []Visitor{}}
	}

	ctx := events[0].Context
	batch := Batch{
		AccountID:       ctx.AccountID,
		ProjectID:       ctx.ProjectID,
		Revision:        ctx.Revision,
		ClientName:      ctx.ClientName,
		ClientVersion:   ctx.ClientVersion,
		AnonymizeIP:     ctx.AnonymizeIP,
		EnrichDecisions: true,
		Visitors:        make([]Visitor, 0, len(events)),
	}
	for _, ev := range events {
		batch.Visitors = append(batch.Visitors, buildVisitor(ev))
	}
	return batch
}

func buildVisitor(ev Event) Visitor {
	attrs := make([]VisitorAttribute, 0, len(ev.User.Attributes)+1)
	for _, a := range ev.User.Attributes {
		attrs = append(attrs, VisitorAttribute{
			EntityID: a.EntityID,
			Key:      a.Key,
			Type:     attributeTypeCustom,
			Value:    a.Value,
		})
	}
	attrs = append(attrs, VisitorAttribute{
		EntityID: BotFilteringAttribute,
		Key:      BotFilteringAttribute,
		Type:     attributeTypeCustom,
		Value:    ev.Context.BotFiltering,
	})

	return Visitor{
		VisitorID:  ev.User.ID,
		Attributes: attrs,
		Snapshots:  []Snapshot{buildSnapshot(ev)},
	}
}

func buildSnapshot(ev Event) Snapshot {
	switch {
	case ev.Impression != nil:
		imp := ev.Impression
		return Snapshot{
			Decisions: []Decision{{
				CampaignID:   imp.LayerID,
				ExperimentID: imp.ExperimentID,
				VariationID:  imp.VariationID,
				Metadata: DecisionMetadata{
					FlagKey:      imp.FlagKey,
					RuleKey:      imp.RuleKey,
					RuleType:     imp.RuleType,
					VariationKey: imp.VariationKey,
					Enabled:      imp.Enabled,
				},
			}},
			Events: []SnapshotEvent{{
				EntityID:  imp.LayerID,
				Timestamp: ev.Timestamp,
				UUID:      ev.UUID,
				Key:       ActivateEventKey,
			}},
		}
	case ev.Conversion != nil:
		conv := ev.Conversion
		se := SnapshotEvent{
			EntityID:  conv.EventID,
			Timestamp: ev.Timestamp,
			UUID:      ev.UUID,
			Key:       conv.EventKey,
			Tags:      conv.Tags,
		}
		if rev, ok := revenueFromTags(conv.Tags); ok {
			se.Revenue = &rev
		}
		if val, ok := valueFromTags(conv.Tags); ok {
			se.Value = &val
		}
		return Snapshot{Events: []SnapshotEvent{se}}
	default:
		return Snapshot{Events: []SnapshotEvent{}}
	}
}

// revenueFromTags accepts integral numeric revenue only.
func revenueFromTags(tags map[string]any) (int64, bool) {
	f, ok := numeric(tags[revenueTag])
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func valueFromTags(tags map[string]any) (float64, bool) {
	return numeric(tags[valueTag])
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
