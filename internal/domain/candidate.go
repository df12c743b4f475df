package domain

// Bucket tags why a candidate was selected.
type Bucket string

// Buckets in waterfall order.
const (
	BucketRescue Bucket = "rescue"
	BucketReview Bucket = "review"
	BucketNew    Bucket = "new"
)

// Candidate is one selected item. Progress is nil for New items.
type Candidate struct {
	Item     LearningItem    `json:"item"`
	Bucket   Bucket          `json:"bucket"`
	Progress *ProgressRecord `json:"progress,omitempty"`
}

// RescueThresholds define weak-dimension cut-offs for the Rescue bucket.
type RescueThresholds struct {
	VisualBelow int
	LogicBelow  int
}

// DefaultRescueThresholds flags items with visual < 30 or logic < 20.
var DefaultRescueThresholds = RescueThresholds{VisualBelow: 30, LogicBelow: 20}
