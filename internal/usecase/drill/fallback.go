package drill

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

const fallbackPromptVersion = "deterministic-v1"

// Segment is one block of a rendered drill.
type Segment struct {
	Type     string   `json:"type"`
	Content  string   `json:"content_markdown,omitempty"`
	Audio    string   `json:"audio_text,omitempty"`
	Meaning  string   `json:"translation,omitempty"`
	Question string   `json:"question_markdown,omitempty"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer_key,omitempty"`
	Style    string   `json:"style,omitempty"`
}

// Payload is the body of a deterministic drill.
type Payload struct {
	Format        string    `json:"format"`
	PromptVersion string    `json:"sys_prompt_version"`
	TargetWord    string    `json:"target_word"`
	Segments      []Segment `json:"segments"`
}

// BuildFallback renders a minimal drill from catalog data alone. The same item
// and mode always produce the same payload.
func BuildFallback(item domain.LearningItem, mode domain.Mode, drillType domain.DrillType, now time.Time) domain.Drill {
	sentence := ""
	switch {
	case len(item.Collocations) > 0:
		sentence = item.Collocations[0]
	case item.Example != nil && *item.Example != "":
		sentence = *item.Example
	default:
		def := item.Definition
		if def == "" {
			def = "unknown"
		}
		sentence = fmt.Sprintf("The word %q means %s.", item.Word, def)
	}

	answer := item.Definition
	if answer == "" {
		answer = "I know it"
	}

	p := Payload{
		Format:        "chat",
		PromptVersion: fallbackPromptVersion,
		TargetWord:    item.Word,
		Segments: []Segment{
			{Type: "text", Content: sentence, Audio: sentence, Meaning: item.Definition},
			{
				Type:     "interaction",
				Style:    "swipe_card",
				Question: fmt.Sprintf("What does **%s** mean?", item.Word),
				Options:  []string{answer, "I don't know"},
				Answer:   answer,
			},
		},
	}
	// marshalling a struct of strings cannot fail
	body, _ := json.Marshal(p)

	return domain.Drill{
		Meta: domain.DrillMeta{
			Mode:      mode,
			ItemID:    item.ID,
			Word:      item.Word,
			DrillType: drillType,
			Source:    domain.SourceFallback,
			CreatedAt: now,
		},
		Payload: body,
	}
}
