package rules

import (
	"fmt"
	"maps"

	"github.com/magefree/tcg-server-go/internal/game/dice"
)

// InitialID is the first id handed out; ids descend from here.
const InitialID = -500000

// GameConfig holds the tunable limits of a match.
type GameConfig struct {
	RandomSeed        int `json:"randomSeed" mapstructure:"random_seed"`
	InitialHandsCount int `json:"initialHandsCount" mapstructure:"initial_hands_count"`
	InitialDiceCount  int `json:"initialDiceCount" mapstructure:"initial_dice_count"`
	MaxHandsCount     int `json:"maxHandsCount" mapstructure:"max_hands_count"`
	MaxDiceCount      int `json:"maxDiceCount" mapstructure:"max_dice_count"`
	MaxPileCount      int `json:"maxPileCount" mapstructure:"max_pile_count"`
	MaxRoundsCount    int `json:"maxRoundsCount" mapstructure:"max_rounds_count"`
	MaxSummonsCount   int `json:"maxSummonsCount" mapstructure:"max_summons_count"`
	MaxSupportsCount  int `json:"maxSupportsCount" mapstructure:"max_supports_count"`
}

func DefaultGameConfig() GameConfig {
	return GameConfig{
		InitialHandsCount: 5,
		InitialDiceCount:  8,
		MaxHandsCount:     10,
		MaxDiceCount:      16,
		MaxPileCount:      200,
		MaxRoundsCount:    15,
		MaxSummonsCount:   4,
		MaxSupportsCount:  4,
	}
}

// WithDefaults fills zero fields from DefaultGameConfig.
func (c GameConfig) WithDefaults() GameConfig {
	d := DefaultGameConfig()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.InitialHandsCount, d.InitialHandsCount)
	fill(&c.InitialDiceCount, d.InitialDiceCount)
	fill(&c.MaxHandsCount, d.MaxHandsCount)
	fill(&c.MaxDiceCount, d.MaxDiceCount)
	fill(&c.MaxPileCount, d.MaxPileCount)
	fill(&c.MaxRoundsCount, d.MaxRoundsCount)
	fill(&c.MaxSummonsCount, d.MaxSummonsCount)
	fill(&c.MaxSupportsCount, d.MaxSupportsCount)
	return c
}

// VersionBehavior records rule differences between data versions.
type VersionBehavior struct {
	DefaultRecreate RecreateKind `json:"defaultRecreate"`
}

func CurrentVersionBehavior() VersionBehavior {
	return VersionBehavior{DefaultRecreate: RecreateTakeMax}
}

func LegacyVersionBehavior() VersionBehavior {
	return VersionBehavior{DefaultRecreate: RecreateOverwrite}
}

// Iterators are the deterministic cursors of a match.
type Iterators struct {
	Random int `json:"random"`
	ID     int `json:"id"`
}

// AnyState is implemented by CharacterState and EntityState.
type AnyState interface {
	StateID() int
	StateDefinitionID() int
	StateVariables() map[string]int
	IsCharacter() bool
}

// EntityState is a status, summon, support, equipment or card.
type EntityState struct {
	ID           int            `json:"id"`
	DefinitionID int            `json:"definitionId"`
	Variables    map[string]int `json:"variables"`
	FromCardID   int            `json:"fromCardId,omitempty"`
}

func (e EntityState) StateID() int                   { return e.ID }
func (e EntityState) StateDefinitionID() int         { return e.DefinitionID }
func (e EntityState) StateVariables() map[string]int { return e.Variables }
func (e EntityState) IsCharacter() bool              { return false }

// Var returns a variable value, zero when undeclared.
func (e EntityState) Var(name string) int {
	return e.Variables[name]
}

// With returns a copy with one variable replaced.
func (e EntityState) With(name string, value int) EntityState {
	e.Variables = maps.Clone(e.Variables)
	if e.Variables == nil {
		e.Variables = make(map[string]int)
	}
	e.Variables[name] = value
	return e
}

func (e EntityState) String() string {
	return fmt.Sprintf("[entity:%d](%d)", e.DefinitionID, e.ID)
}

// CharacterState is a character together with its attached statuses and equipment.
type CharacterState struct {
	ID           int            `json:"id"`
	DefinitionID int            `json:"definitionId"`
	Variables    map[string]int `json:"variables"`
	Entities     []EntityState  `json:"entities"`
}

func (c CharacterState) StateID() int                   { return c.ID }
func (c CharacterState) StateDefinitionID() int         { return c.DefinitionID }
func (c CharacterState) StateVariables() map[string]int { return c.Variables }
func (c CharacterState) IsCharacter() bool              { return true }

func (c CharacterState) Var(name string) int {
	return c.Variables[name]
}

func (c CharacterState) With(name string, value int) CharacterState {
	c.Variables = maps.Clone(c.Variables)
	if c.Variables == nil {
		c.Variables = make(map[string]int)
	}
	c.Variables[name] = value
	return c
}

func (c CharacterState) Alive() bool  { return c.Variables[VarAlive] != 0 }
func (c CharacterState) Health() int  { return c.Variables[VarHealth] }
func (c CharacterState) Energy() int  { return c.Variables[VarEnergy] }
func (c CharacterState) AuraOf() Aura { return Aura(c.Variables[VarAura]) }

func (c CharacterState) String() string {
	return fmt.Sprintf("[character:%d](%d)", c.DefinitionID, c.ID)
}

// Stringify formats any state for logs.
func Stringify(a AnyState) string {
	if a == nil {
		return "<nil>"
	}
	if a.IsCharacter() {
		return fmt.Sprintf("[character:%d](%d)", a.StateDefinitionID(), a.StateID())
	}
	return fmt.Sprintf("[entity:%d](%d)", a.StateDefinitionID(), a.StateID())
}

// ExtensionState is the per-match state of an extension.
type ExtensionState struct {
	DefinitionID int            `json:"definitionId"`
	Values       map[string]int `json:"values"`
}

// PlayerFlag names one of the boolean flags of PlayerState.
type PlayerFlag string

const (
	FlagDeclaredEnd  PlayerFlag = "declaredEnd"
	FlagHasDefeated  PlayerFlag = "hasDefeated"
	FlagCanCharged   PlayerFlag = "canCharged"
	FlagCanPlunging  PlayerFlag = "canPlunging"
	FlagLegendUsed   PlayerFlag = "legendUsed"
	FlagSkipNextTurn PlayerFlag = "skipNextTurn"
)

// PlayerState is one side of the board.
type PlayerState struct {
	Who               Who              `json:"who"`
	Characters        []CharacterState `json:"characters"`
	ActiveCharacterID int              `json:"activeCharacterId"`
	Hands             []EntityState    `json:"hands"`
	Pile              []EntityState    `json:"pile"`
	Dice              []dice.Type      `json:"dice"`
	CombatStatuses    []EntityState    `json:"combatStatuses"`
	Summons           []EntityState    `json:"summons"`
	Supports          []EntityState    `json:"supports"`
	DeclaredEnd       bool             `json:"declaredEnd"`
	HasDefeated       bool             `json:"hasDefeated"`
	CanCharged        bool             `json:"canCharged"`
	CanPlunging       bool             `json:"canPlunging"`
	LegendUsed        bool             `json:"legendUsed"`
	SkipNextTurn      bool             `json:"skipNextTurn"`
	// RoundSkillLog maps a character definition id to the skills it used this round.
	RoundSkillLog   map[int][]int `json:"roundSkillLog"`
	RemovedEntities []EntityState `json:"removedEntities"`
}

// Flag reads a named flag.
func (p *PlayerState) Flag(flag PlayerFlag) (bool, error) {
	switch flag {
	case FlagDeclaredEnd:
		return p.DeclaredEnd, nil
	case FlagHasDefeated:
		return p.HasDefeated, nil
	case FlagCanCharged:
		return p.CanCharged, nil
	case FlagCanPlunging:
		return p.CanPlunging, nil
	case FlagLegendUsed:
		return p.LegendUsed, nil
	case FlagSkipNextTurn:
		return p.SkipNextTurn, nil
	}
	return false, NewInternalError("unknown player flag %q", flag)
}

func (p *PlayerState) setFlag(flag PlayerFlag, value bool) error {
	switch flag {
	case FlagDeclaredEnd:
		p.DeclaredEnd = value
	case FlagHasDefeated:
		p.HasDefeated = value
	case FlagCanCharged:
		p.CanCharged = value
	case FlagCanPlunging:
		p.CanPlunging = value
	case FlagLegendUsed:
		p.LegendUsed = value
	case FlagSkipNextTurn:
		p.SkipNextTurn = value
	default:
		return NewInternalError("unknown player flag %q", flag)
	}
	return nil
}

// AliveCharacters counts living characters.
func (p *PlayerState) AliveCharacters() int {
	n := 0
	for _, ch := range p.Characters {
		if ch.Alive() {
			n++
		}
	}
	return n
}

// ActiveIndex returns the index of the active character.
func (p *PlayerState) ActiveIndex() (int, error) {
	for i, ch := range p.Characters {
		if ch.ID == p.ActiveCharacterID {
			return i, nil
		}
	}
	return -1, NewInternalError("invalid active character id %d of %s", p.ActiveCharacterID, p.Who)
}

// Active returns the active character.
func (p *PlayerState) Active() (CharacterState, error) {
	idx, err := p.ActiveIndex()
	if err != nil {
		return CharacterState{}, err
	}
	return p.Characters[idx], nil
}

// ShiftedCharacters returns characters starting from the active one, wrapping around.
func (p *PlayerState) ShiftedCharacters() []CharacterState {
	idx, err := p.ActiveIndex()
	if err != nil {
		idx = 0
	}
	out := make([]CharacterState, 0, len(p.Characters))
	out = append(out, p.Characters[idx:]...)
	out = append(out, p.Characters[:idx]...)
	return out
}

// GameState is one immutable snapshot of a match. Apply returns a new value
// for every mutation; snapshots are never written in place.
type GameState struct {
	Data        *GameData        `json:"-"`
	Config      GameConfig       `json:"config"`
	Behavior    VersionBehavior  `json:"behavior"`
	Iterators   Iterators        `json:"iterators"`
	Phase       Phase            `json:"phase"`
	RoundNumber int              `json:"roundNumber"`
	CurrentTurn Who              `json:"currentTurn"`
	Winner      *Who             `json:"winner"`
	Players     [2]PlayerState   `json:"players"`
	Extensions  []ExtensionState `json:"extensions"`
}

// Player returns the player state of a side.
func (s *GameState) Player(w Who) *PlayerState {
	return &s.Players[w]
}

// DefinitionOf resolves the definition of a state.
func (s *GameState) DefinitionOf(a AnyState) (*Definition, error) {
	if s.Data == nil {
		return nil, NewInternalError("state has no game data")
	}
	return s.Data.Definition(a.StateDefinitionID())
}

// MustDefinition resolves a definition that is known to be registered; it
// returns an empty definition otherwise so filters can stay simple.
func (s *GameState) MustDefinition(a AnyState) *Definition {
	def, err := s.DefinitionOf(a)
	if err != nil {
		return &Definition{}
	}
	return def
}

func (s *GameState) clone() *GameState {
	ns := *s
	return &ns
}

func (s *GameState) String() string {
	return fmt.Sprintf("GameState(phase=%s, round=%d, turn=%d)", s.Phase, s.RoundNumber, s.CurrentTurn)
}
