package lexdrill

import (
	"encoding/json"
	"time"
)

// Mode is a drill format.
type Mode string

// Scenario modes hold their own inventory.
const (
	ModeSyntax   Mode = "SYNTAX"
	ModePhrase   Mode = "PHRASE"
	ModeBlitz    Mode = "BLITZ"
	ModeAudio    Mode = "AUDIO"
	ModeChunking Mode = "CHUNKING"
	ModeContext  Mode = "CONTEXT"
	ModeNuance   Mode = "NUANCE"
	ModeReading  Mode = "READING"
	ModeVisual   Mode = "VISUAL"
)

// Mixed modes pick a scenario per item.
const (
	ModeL0Mixed    Mode = "L0_MIXED"
	ModeL1Mixed    Mode = "L1_MIXED"
	ModeL2Mixed    Mode = "L2_MIXED"
	ModeDailyBlitz Mode = "DAILY_BLITZ"
)

// Item is a catalog entry.
type Item struct {
	ID           int64
	Word         string
	Definition   string
	PartOfSpeech string
	Frequency    float64
	Priority     int
	Example      string
	Collocations []string
	Phrases      []string
}

// Candidate is a selected item and the bucket that picked it.
type Candidate struct {
	Item   Item
	Bucket string // rescue, review, new
	// Stability is zero for items never reviewed.
	Stability float64
}

// Drill is one served practice unit. Payload is the generator's JSON as-is.
type Drill struct {
	ItemID    int64
	Word      string
	Bucket    string
	Mode      Mode
	DrillType string
	Source    string
	CreatedAt time.Time
	Payload   json.RawMessage
}

// Answer is one graded attempt.
type Answer struct {
	UserID    string
	ItemID    int64
	Pass      bool
	Elapsed   time.Duration
	IsRetry   bool
	Mode      Mode
	DrillType string
}

// SubmitResult reports the rating recorded for an answer.
type SubmitResult struct {
	Rating   int // 1 again .. 4 easy
	Injected bool
}

// FlushResult counts the session windows a flush handled.
type FlushResult struct {
	Committed int
	Skipped   int
	Stale     int
	Failed    int
}
