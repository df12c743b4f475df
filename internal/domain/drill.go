package domain

import (
	"encoding/json"
	"time"
)

// DrillSource tells where served content came from.
type DrillSource string

// Drill sources.
const (
	SourceInventory DrillSource = "inventory"
	SourceFallback  DrillSource = "deterministic_fallback"
	SourceGenerator DrillSource = "generator"
	SourceInjection DrillSource = "injection"
)

// DrillMeta describes a cached drill.
type DrillMeta struct {
	Mode      Mode        `json:"mode"`
	ItemID    int64       `json:"item_id"`
	Word      string      `json:"word"`
	DrillType DrillType   `json:"drill_type,omitempty"`
	Source    DrillSource `json:"source"`
	CreatedAt time.Time   `json:"created_at"`
}

// Drill is opaque practice content plus metadata.
type Drill struct {
	Meta    DrillMeta       `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}

// Generation is the result of one generator call. Drills are aligned by index
// with the requested items and may be shorter.
type Generation struct {
	Drills           []Drill
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns prompt plus completion tokens.
func (g Generation) TotalTokens() int { return g.PromptTokens + g.CompletionTokens }

// ServedDrill pairs a selected candidate with its drill.
type ServedDrill struct {
	Candidate Candidate `json:"candidate"`
	Mode      Mode      `json:"mode"`
	Drill     Drill     `json:"drill"`
}

// JobType names a replenishment job.
type JobType string

// Replenishment job types.
const (
	JobReplenishOne   JobType = "replenish_one"
	JobReplenishBatch JobType = "replenish_batch"
)

// ReplenishRequest is the payload of a replenishment job.
type ReplenishRequest struct {
	UserID        string  `json:"user_id"`
	Mode          Mode    `json:"mode"`
	ItemIDs       []int64 `json:"item_ids"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

// Injection is a remedial drill scheduled after a failed answer.
type Injection struct {
	ItemID     int64       `json:"vocab_id"`
	DrillType  DrillType   `json:"drill_type"`
	Source     DrillSource `json:"source"`
	InjectedAt time.Time   `json:"injected_at"`
}
