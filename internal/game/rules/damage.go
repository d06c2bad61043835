package rules

import (
	"fmt"
	"strings"
)

// DamageType is the element of a damage, or heal.
type DamageType int

const (
	DamagePhysical DamageType = iota
	DamageCryo
	DamageHydro
	DamagePyro
	DamageElectro
	DamageAnemo
	DamageGeo
	DamageDendro
	DamagePiercing
	DamageHeal
)

var damageTypeNames = map[DamageType]string{
	DamagePhysical: "physical",
	DamageCryo:     "cryo",
	DamageHydro:    "hydro",
	DamagePyro:     "pyro",
	DamageElectro:  "electro",
	DamageAnemo:    "anemo",
	DamageGeo:      "geo",
	DamageDendro:   "dendro",
	DamagePiercing: "piercing",
	DamageHeal:     "heal",
}

func (d DamageType) String() string {
	if name, ok := damageTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DAMAGE_%d", int(d))
}

// ParseDamageType is the inverse of DamageType.String.
func ParseDamageType(name string) (DamageType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d, n := range damageTypeNames {
		if n == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown damage type %q", name)
}

// IsElemental reports whether the damage can apply an aura.
func (d DamageType) IsElemental() bool {
	return d >= DamageCryo && d <= DamageDendro
}

// Aura is the elemental aura attached to a character.
type Aura int

const (
	AuraNone       Aura = 0
	AuraCryo       Aura = 1
	AuraHydro      Aura = 2
	AuraPyro       Aura = 3
	AuraElectro    Aura = 4
	AuraDendro     Aura = 7
	AuraCryoDendro Aura = 8
)

// Reaction is an elemental reaction.
type Reaction int

const (
	ReactionNone Reaction = iota
	Melt
	Vaporize
	Overloaded
	Superconduct
	ElectroCharged
	Frozen
	SwirlCryo
	SwirlHydro
	SwirlPyro
	SwirlElectro
	CrystallizeCryo
	CrystallizeHydro
	CrystallizePyro
	CrystallizeElectro
	Burning
	Bloom
	Quicken
)

var reactionNames = map[Reaction]string{
	ReactionNone:       "none",
	Melt:               "melt",
	Vaporize:           "vaporize",
	Overloaded:         "overloaded",
	Superconduct:       "superconduct",
	ElectroCharged:     "electroCharged",
	Frozen:             "frozen",
	SwirlCryo:          "swirlCryo",
	SwirlHydro:         "swirlHydro",
	SwirlPyro:          "swirlPyro",
	SwirlElectro:       "swirlElectro",
	CrystallizeCryo:    "crystallizeCryo",
	CrystallizeHydro:   "crystallizeHydro",
	CrystallizePyro:    "crystallizePyro",
	CrystallizeElectro: "crystallizeElectro",
	Burning:            "burning",
	Bloom:              "bloom",
	Quicken:            "quicken",
}

func (r Reaction) String() string {
	if name, ok := reactionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("REACTION_%d", int(r))
}

// IsSwirl returns the swirled element, if any.
func (r Reaction) IsSwirl() (DamageType, bool) {
	switch r {
	case SwirlCryo:
		return DamageCryo, true
	case SwirlHydro:
		return DamageHydro, true
	case SwirlPyro:
		return DamagePyro, true
	case SwirlElectro:
		return DamageElectro, true
	}
	return DamagePhysical, false
}

// DamageBonus is the flat damage increase a reaction grants.
func (r Reaction) DamageBonus() int {
	switch r {
	case Melt, Vaporize, Overloaded:
		return 2
	case Superconduct, ElectroCharged, Frozen,
		CrystallizeCryo, CrystallizeHydro, CrystallizePyro, CrystallizeElectro,
		Burning, Bloom, Quicken:
		return 1
	}
	return 0
}

type auraResult struct {
	aura     Aura
	reaction Reaction
}

var reactionMap = map[Aura]map[DamageType]auraResult{
	AuraNone: {
		DamageCryo:    {AuraCryo, ReactionNone},
		DamageHydro:   {AuraHydro, ReactionNone},
		DamagePyro:    {AuraPyro, ReactionNone},
		DamageElectro: {AuraElectro, ReactionNone},
		DamageAnemo:   {AuraNone, ReactionNone},
		DamageGeo:     {AuraNone, ReactionNone},
		DamageDendro:  {AuraDendro, ReactionNone},
	},
	AuraCryo: {
		DamageCryo:    {AuraCryo, ReactionNone},
		DamageHydro:   {AuraNone, Frozen},
		DamagePyro:    {AuraNone, Melt},
		DamageElectro: {AuraNone, Superconduct},
		DamageAnemo:   {AuraNone, SwirlCryo},
		DamageGeo:     {AuraNone, CrystallizeCryo},
		DamageDendro:  {AuraCryoDendro, ReactionNone},
	},
	AuraHydro: {
		DamageCryo:    {AuraNone, Frozen},
		DamageHydro:   {AuraHydro, ReactionNone},
		DamagePyro:    {AuraNone, Vaporize},
		DamageElectro: {AuraNone, ElectroCharged},
		DamageAnemo:   {AuraNone, SwirlHydro},
		DamageGeo:     {AuraNone, CrystallizeHydro},
		DamageDendro:  {AuraNone, Bloom},
	},
	AuraPyro: {
		DamageCryo:    {AuraNone, Melt},
		DamageHydro:   {AuraNone, Vaporize},
		DamagePyro:    {AuraPyro, ReactionNone},
		DamageElectro: {AuraNone, Overloaded},
		DamageAnemo:   {AuraNone, SwirlPyro},
		DamageGeo:     {AuraNone, CrystallizePyro},
		DamageDendro:  {AuraNone, Burning},
	},
	AuraElectro: {
		DamageCryo:    {AuraNone, Superconduct},
		DamageHydro:   {AuraNone, ElectroCharged},
		DamagePyro:    {AuraNone, Overloaded},
		DamageElectro: {AuraElectro, ReactionNone},
		DamageAnemo:   {AuraNone, SwirlElectro},
		DamageGeo:     {AuraNone, CrystallizeElectro},
		DamageDendro:  {AuraNone, Quicken},
	},
	AuraDendro: {
		DamageCryo:    {AuraCryoDendro, ReactionNone},
		DamageHydro:   {AuraNone, Bloom},
		DamagePyro:    {AuraNone, Burning},
		DamageElectro: {AuraNone, Quicken},
		DamageAnemo:   {AuraDendro, ReactionNone},
		DamageGeo:     {AuraDendro, ReactionNone},
		DamageDendro:  {AuraDendro, ReactionNone},
	},
	AuraCryoDendro: {
		DamageCryo:    {AuraCryoDendro, ReactionNone},
		DamageHydro:   {AuraDendro, Frozen},
		DamagePyro:    {AuraDendro, Melt},
		DamageElectro: {AuraDendro, Superconduct},
		DamageAnemo:   {AuraDendro, SwirlCryo},
		DamageGeo:     {AuraDendro, CrystallizeCryo},
		DamageDendro:  {AuraCryoDendro, ReactionNone},
	},
}

// React returns the aura left on a target and the reaction triggered when an
// element is applied to it. Non-elemental types leave the aura untouched.
func React(aura Aura, element DamageType) (Aura, Reaction) {
	row, ok := reactionMap[aura]
	if !ok {
		return aura, ReactionNone
	}
	res, ok := row[element]
	if !ok {
		return aura, ReactionNone
	}
	return res.aura, res.reaction
}

// HealKind distinguishes regular heals from revives.
type HealKind string

const (
	HealCommon         HealKind = "common"
	HealImmuneDefeated HealKind = "immuneDefeated"
	HealRevive         HealKind = "revive"
)

// DamageInfo describes one damage or heal. For heals Type is DamageHeal and
// HealKind is set.
type DamageInfo struct {
	Type              DamageType
	Value             int
	ExpectedValue     int
	Source            AnyState
	Via               SkillInfo
	Target            CharacterState
	TargetAura        Aura
	IsSkillMainDamage bool
	CauseDefeated     bool
	FromReaction      Reaction
	RoundNumber       int
	HealKind          HealKind
	Log               string
}

// IsHeal reports whether the info describes a heal.
func (d DamageInfo) IsHeal() bool {
	return d.Type == DamageHeal
}

// Reaction returns the reaction this damage triggers on its target.
func (d DamageInfo) Reaction() Reaction {
	if !d.Type.IsElemental() {
		return ReactionNone
	}
	_, r := React(d.TargetAura, d.Type)
	return r
}

func (d DamageInfo) String() string {
	if d.IsHeal() {
		return fmt.Sprintf("heal %d to %s", d.Value, d.Target)
	}
	return fmt.Sprintf("%d %s damage to %s", d.Value, d.Type, d.Target)
}

// ReactionInfo describes a reaction that happened.
type ReactionInfo struct {
	Target     CharacterState
	Type       Reaction
	Via        SkillInfo
	FromDamage *DamageInfo
}
