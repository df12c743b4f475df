package selection

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// StabilityThresholds are upper stability bounds (days) for each scenario tier.
type StabilityThresholds struct {
	SyntaxMax   float64
	PhraseMax   float64
	BlitzMax    float64
	AudioMax    float64
	ChunkingMax float64
	ContextMax  float64
}

// DefaultStabilityThresholds move items through harder formats as memory stabilizes.
var DefaultStabilityThresholds = StabilityThresholds{
	SyntaxMax:   7,
	PhraseMax:   21,
	BlitzMax:    45,
	AudioMax:    14,
	ChunkingMax: 45,
	ContextMax:  45,
}

// MixedModeScenarios lists the scenarios each mixed mode draws from.
var MixedModeScenarios = map[domain.Mode][]domain.Mode{
	domain.ModeL0Mixed: {domain.ModeSyntax, domain.ModePhrase, domain.ModeBlitz},
	domain.ModeL1Mixed: {domain.ModeAudio, domain.ModeChunking},
	domain.ModeL2Mixed: {domain.ModeContext, domain.ModeNuance},
	domain.ModeDailyBlitz: {
		domain.ModeSyntax, domain.ModePhrase, domain.ModeBlitz,
		domain.ModeAudio, domain.ModeChunking, domain.ModeContext, domain.ModeNuance,
	},
}

// SelectScenario picks a concrete scenario for an item of the given stability.
// An empty allowed list is a caller configuration error.
func SelectScenario(stability float64, allowed []domain.Mode) (domain.Mode, error) {
	return DefaultStabilityThresholds.Select(stability, allowed)
}

// Select picks a scenario using these thresholds.
func (t StabilityThresholds) Select(stability float64, allowed []domain.Mode) (domain.Mode, error) {
	if len(allowed) == 0 {
		return "", fmt.Errorf("%w: allowed scenarios cannot be empty", domain.ErrNoScenarios)
	}
	has := func(m domain.Mode) bool { return slices.Contains(allowed, m) }

	switch {
	case has(domain.ModeSyntax) && stability < t.SyntaxMax:
		return domain.ModeSyntax, nil
	case has(domain.ModePhrase) && stability >= t.SyntaxMax && stability < t.PhraseMax:
		return domain.ModePhrase, nil
	case has(domain.ModeBlitz) && stability >= t.PhraseMax && stability < t.BlitzMax:
		return domain.ModeBlitz, nil
	case has(domain.ModeAudio) && stability < t.AudioMax:
		return domain.ModeAudio, nil
	case has(domain.ModeChunking) && stability >= t.AudioMax && stability < t.ChunkingMax:
		return domain.ModeChunking, nil
	case has(domain.ModeContext) && stability < t.ContextMax:
		return domain.ModeContext, nil
	case has(domain.ModeNuance) && stability >= t.ContextMax:
		return domain.ModeNuance, nil
	}
	return allowed[0], nil
}

// ResolveMode returns the concrete scenario for mode. Scenario modes resolve to themselves.
func ResolveMode(mode domain.Mode, stability float64) (domain.Mode, error) {
	if mode.IsScenario() {
		return mode, nil
	}
	allowed, ok := MixedModeScenarios[mode]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	return SelectScenario(stability, allowed)
}
