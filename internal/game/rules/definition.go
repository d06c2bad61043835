package rules

import (
	"fmt"
	"slices"
	"sort"

	"github.com/magefree/tcg-server-go/internal/game/dice"
)

// DefinitionType classifies a definition.
type DefinitionType string

const (
	TypeCharacter    DefinitionType = "character"
	TypeStatus       DefinitionType = "status"
	TypeCombatStatus DefinitionType = "combatStatus"
	TypeEquipment    DefinitionType = "equipment"
	TypeSupport      DefinitionType = "support"
	TypeSummon       DefinitionType = "summon"
	TypeEventCard    DefinitionType = "eventCard"
)

// IsCard reports whether definitions of this type can live in hands or pile.
func (t DefinitionType) IsCard() bool {
	return t == TypeEventCard || t == TypeSupport || t == TypeEquipment
}

// Well-known tags.
const (
	TagLegend          = "legend"
	TagNoTuning        = "noTuning"
	TagDisableSkill    = "disableSkill"
	TagImmuneControl   = "immuneControl"
	TagEventEffectless = "eventEffectless"
	TagShield          = "shield"
)

// Element tags of characters, mapped to the dice used for tuning.
var elementTags = map[string]dice.Type{
	"cryo":    dice.Cryo,
	"hydro":   dice.Hydro,
	"pyro":    dice.Pyro,
	"electro": dice.Electro,
	"anemo":   dice.Anemo,
	"geo":     dice.Geo,
	"dendro":  dice.Dendro,
}

// Character variable names.
const (
	VarHealth    = "health"
	VarMaxHealth = "maxHealth"
	VarEnergy    = "energy"
	VarMaxEnergy = "maxEnergy"
	VarAura      = "aura"
	VarAlive     = "alive"
	VarUsage     = "usage"
	VarDuration  = "duration"
)

// RecreateKind selects how a variable is merged when an entity with the same
// definition is created again in the same area.
type RecreateKind string

const (
	RecreateDefault   RecreateKind = "default"
	RecreateOverwrite RecreateKind = "overwrite"
	RecreateKeep      RecreateKind = "keep"
	RecreateTakeMax   RecreateKind = "takeMax"
	RecreateAppend    RecreateKind = "append"
)

type RecreateBehavior struct {
	Kind        RecreateKind `json:"kind" yaml:"kind"`
	AppendValue int          `json:"appendValue,omitempty" yaml:"appendValue"`
	AppendLimit int          `json:"appendLimit,omitempty" yaml:"appendLimit"`
}

// VarConfig declares one legal variable of a definition.
type VarConfig struct {
	Initial  int              `json:"initial" yaml:"initial"`
	Recreate RecreateBehavior `json:"recreate" yaml:"recreate"`
}

// Definition is the immutable, shared description of a character, status,
// summon, support, equipment or card. Entities reference it by ID.
type Definition struct {
	ID                     int
	Type                   DefinitionType
	Tags                   []string
	VarConfigs             map[string]VarConfig
	Skills                 []*SkillDefinition
	VisibleVarName         string
	DisposeWhenUsageIsZero bool
}

func (d *Definition) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// Element returns the dice type matching the character's element tag, or Void.
func (d *Definition) Element() dice.Type {
	for _, tag := range d.Tags {
		if t, ok := elementTags[tag]; ok {
			return t
		}
	}
	return dice.Void
}

// InitialVariables builds a fresh variable bag, applying overrides for declared keys.
func (d *Definition) InitialVariables(overrides map[string]int) map[string]int {
	vars := make(map[string]int, len(d.VarConfigs))
	for name, cfg := range d.VarConfigs {
		vars[name] = cfg.Initial
		if v, ok := overrides[name]; ok {
			vars[name] = v
		}
	}
	return vars
}

// VarNames returns declared variable names in sorted order.
func (d *Definition) VarNames() []string {
	names := make([]string, 0, len(d.VarConfigs))
	for name := range d.VarConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlaySkill returns the skill used when the card is played.
func (d *Definition) PlaySkill() *SkillDefinition {
	for _, sk := range d.Skills {
		if sk.Type == SkillPlayCard {
			return sk
		}
	}
	return nil
}

// SkillType distinguishes initiative skills from triggered ones.
type SkillType string

const (
	SkillNormal    SkillType = "normal"
	SkillElemental SkillType = "elemental"
	SkillBurst     SkillType = "burst"
	SkillTechnique SkillType = "technique"
	SkillPlayCard  SkillType = "playCard"
	SkillTriggered SkillType = "triggered"
)

// IsCharacterSkill reports whether the type is a character initiative skill.
// Techniques count only when allowTechnique is set.
func (t SkillType) IsCharacterSkill(allowTechnique bool) bool {
	switch t {
	case SkillNormal, SkillElemental, SkillBurst:
		return true
	case SkillTechnique:
		return allowTechnique
	}
	return false
}

// SkillFilter decides whether a skill reacts to an event. It must not mutate anything.
type SkillFilter func(st *GameState, info SkillInfo, arg EventArg) bool

// SkillAction runs a skill against a snapshot and returns the next snapshot.
type SkillAction func(st *GameState, info SkillInfo, arg EventArg) (*GameState, SkillResult, error)

// TargetFunc enumerates the target candidates of an initiative skill.
type TargetFunc func(st *GameState, info SkillInfo) [][]AnyState

// InitiativeConfig carries the extra data of initiative skills.
type InitiativeConfig struct {
	RequiredCost dice.Requirement
	Fast         bool
	Prepared     bool
	GetTarget    TargetFunc
}

// SkillDefinition is an authored effect. TriggerOn is TriggerInitiative for
// skills that are used as an action.
type SkillDefinition struct {
	ID         int
	Type       SkillType
	TriggerOn  EventName
	Initiative *InitiativeConfig
	GainEnergy bool
	Filter     SkillFilter
	Action     SkillAction
}

func (sk *SkillDefinition) IsInitiative() bool {
	return sk.TriggerOn == TriggerInitiative
}

// Accepts runs the filter, treating a nil filter as always true.
func (sk *SkillDefinition) Accepts(st *GameState, info SkillInfo, arg EventArg) bool {
	if sk.Filter == nil {
		return true
	}
	return sk.Filter(st, info, arg)
}

// Targets enumerates initiative targets; skills without a target function
// have exactly one empty candidate.
func (sk *SkillDefinition) Targets(st *GameState, info SkillInfo) [][]AnyState {
	if sk.Initiative == nil || sk.Initiative.GetTarget == nil {
		return [][]AnyState{nil}
	}
	return sk.Initiative.GetTarget(st, info)
}

// ExtensionDefinition is a process-wide listener with its own small state.
type ExtensionDefinition struct {
	ID      int
	Initial map[string]int
	Skills  []*SkillDefinition
}

// GameData is the read-only registry of definitions shared by all matches.
type GameData struct {
	Definitions map[int]*Definition
	Skills      map[int]*SkillDefinition
	Extensions  []*ExtensionDefinition
	// Reactions holds the inline effects run after an elemental reaction.
	Reactions map[Reaction]*SkillDefinition
}

func NewGameData() *GameData {
	return &GameData{
		Definitions: make(map[int]*Definition),
		Skills:      make(map[int]*SkillDefinition),
		Reactions:   make(map[Reaction]*SkillDefinition),
	}
}

// RegisterReaction installs the inline effect of a reaction.
func (g *GameData) RegisterReaction(r Reaction, sk *SkillDefinition) error {
	if sk == nil || sk.Action == nil {
		return NewDataError("reaction %s without action", r)
	}
	if g.Reactions == nil {
		g.Reactions = make(map[Reaction]*SkillDefinition)
	}
	g.Reactions[r] = sk
	return nil
}

// Register adds a definition and its skills. Duplicated ids are data errors.
func (g *GameData) Register(def *Definition) error {
	if def == nil {
		return NewDataError("nil definition")
	}
	if _, exists := g.Definitions[def.ID]; exists {
		return NewDataError("duplicated definition id %d", def.ID)
	}
	if def.Type == TypeCharacter {
		for _, name := range []string{VarHealth, VarMaxHealth, VarEnergy, VarMaxEnergy, VarAura, VarAlive} {
			if _, ok := def.VarConfigs[name]; !ok {
				return NewDataError("character %d does not declare %s", def.ID, name)
			}
		}
	}
	for _, sk := range def.Skills {
		if err := g.registerSkill(sk); err != nil {
			return err
		}
	}
	g.Definitions[def.ID] = def
	return nil
}

// RegisterExtension adds an extension and keeps extensions ordered by id.
func (g *GameData) RegisterExtension(ext *ExtensionDefinition) error {
	for _, existing := range g.Extensions {
		if existing.ID == ext.ID {
			return NewDataError("duplicated extension id %d", ext.ID)
		}
	}
	for _, sk := range ext.Skills {
		if err := g.registerSkill(sk); err != nil {
			return err
		}
	}
	g.Extensions = append(g.Extensions, ext)
	sort.Slice(g.Extensions, func(i, j int) bool { return g.Extensions[i].ID < g.Extensions[j].ID })
	return nil
}

func (g *GameData) registerSkill(sk *SkillDefinition) error {
	if sk == nil || sk.Action == nil {
		return NewDataError("skill without action")
	}
	if _, exists := g.Skills[sk.ID]; exists {
		return NewDataError("duplicated skill id %d", sk.ID)
	}
	if sk.IsInitiative() && sk.Initiative == nil {
		return NewDataError("initiative skill %d has no initiative config", sk.ID)
	}
	g.Skills[sk.ID] = sk
	return nil
}

// Definition looks up a definition by id.
func (g *GameData) Definition(id int) (*Definition, error) {
	def, ok := g.Definitions[id]
	if !ok {
		return nil, NewDataError("unknown definition id %d", id)
	}
	return def, nil
}

// Skill looks up a skill by id.
func (g *GameData) Skill(id int) (*SkillDefinition, error) {
	sk, ok := g.Skills[id]
	if !ok {
		return nil, NewDataError("unknown skill id %d", id)
	}
	return sk, nil
}

// Extension looks up an extension by id.
func (g *GameData) Extension(id int) (*ExtensionDefinition, error) {
	for _, ext := range g.Extensions {
		if ext.ID == id {
			return ext, nil
		}
	}
	return nil, NewDataError("unknown extension id %d", id)
}

func (g *GameData) String() string {
	return fmt.Sprintf("GameData(definitions=%d, skills=%d, extensions=%d)",
		len(g.Definitions), len(g.Skills), len(g.Extensions))
}
