package lexdrill

import "github.com/kailas-cloud/lexdrill/internal/domain"

func itemToDomain(it Item) domain.LearningItem {
	out := domain.LearningItem{
		ID:           it.ID,
		Word:         it.Word,
		Definition:   it.Definition,
		PartOfSpeech: it.PartOfSpeech,
		Frequency:    it.Frequency,
		Priority:     it.Priority,
		Collocations: it.Collocations,
		Phrases:      it.Phrases,
	}
	if it.Example != "" {
		ex := it.Example
		out.Example = &ex
	}
	return out
}

func itemFromDomain(it *domain.LearningItem) Item {
	out := Item{
		ID:           it.ID,
		Word:         it.Word,
		Definition:   it.Definition,
		PartOfSpeech: it.PartOfSpeech,
		Frequency:    it.Frequency,
		Priority:     it.Priority,
		Collocations: it.Collocations,
		Phrases:      it.Phrases,
	}
	if it.Example != nil {
		out.Example = *it.Example
	}
	return out
}

func candidateFromDomain(c *domain.Candidate) Candidate {
	out := Candidate{Item: itemFromDomain(&c.Item), Bucket: string(c.Bucket)}
	if c.Progress != nil {
		out.Stability = c.Progress.Stability
	}
	return out
}

func drillFromDomain(d *domain.ServedDrill) Drill {
	return Drill{
		ItemID:    d.Candidate.Item.ID,
		Word:      d.Candidate.Item.Word,
		Bucket:    string(d.Candidate.Bucket),
		Mode:      Mode(d.Mode),
		DrillType: string(d.Drill.Meta.DrillType),
		Source:    string(d.Drill.Meta.Source),
		CreatedAt: d.Drill.Meta.CreatedAt,
		Payload:   d.Drill.Payload,
	}
}
