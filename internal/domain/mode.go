package domain

// Mode is a drill format. Inventory is partitioned by mode.
type Mode string

// Scenario modes.
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

// Mixed modes expand into a list of scenarios chosen per item.
const (
	ModeL0Mixed    Mode = "L0_MIXED"
	ModeL1Mixed    Mode = "L1_MIXED"
	ModeL2Mixed    Mode = "L2_MIXED"
	ModeDailyBlitz Mode = "DAILY_BLITZ"
)

var scenarioModes = map[Mode]struct{}{
	ModeSyntax: {}, ModePhrase: {}, ModeBlitz: {}, ModeAudio: {}, ModeChunking: {},
	ModeContext: {}, ModeNuance: {}, ModeReading: {}, ModeVisual: {},
}

var mixedModes = map[Mode]struct{}{
	ModeL0Mixed: {}, ModeL1Mixed: {}, ModeL2Mixed: {}, ModeDailyBlitz: {},
}

// Valid reports whether m is a scenario or mixed mode.
func (m Mode) Valid() bool { return m.IsScenario() || m.IsMixed() }

// IsScenario reports whether m is a concrete drill format.
func (m Mode) IsScenario() bool {
	_, ok := scenarioModes[m]
	return ok
}

// IsMixed reports whether m expands into several scenarios.
func (m Mode) IsMixed() bool {
	_, ok := mixedModes[m]
	return ok
}

// DrillType is the question shape inside a mode.
type DrillType string

// Drill types with a downgrade path for error injection.
const (
	DrillPart5Cloze  DrillType = "PART5_CLOZE"
	DrillVisualTrap  DrillType = "VISUAL_TRAP"
	DrillSVO         DrillType = "S_V_O"
	DrillAudioRecall DrillType = "AUDIO_RECALL"
)

// Downgrade returns the next easier drill type, or ok=false at the bottom.
func (d DrillType) Downgrade() (DrillType, bool) {
	switch d {
	case DrillPart5Cloze:
		return DrillVisualTrap, true
	case DrillVisualTrap:
		return DrillSVO, true
	default:
		return "", false
	}
}

// Dimension returns the skill dimension a drill type exercises.
func (d DrillType) Dimension() Dimension {
	switch d {
	case DrillPart5Cloze:
		return DimContext
	case DrillVisualTrap:
		return DimVisual
	case DrillSVO:
		return DimLogic
	case DrillAudioRecall:
		return DimAudio
	default:
		return DimMeaning
	}
}

// Dimension is one axis of the per-item skill profile.
type Dimension string

// Dimensions.
const (
	DimContext Dimension = "CTX"
	DimVisual  Dimension = "VIS"
	DimMeaning Dimension = "MEA"
	DimAudio   Dimension = "AUD"
	DimLogic   Dimension = "LOG"
)
