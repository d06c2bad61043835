package rules

import (
	"fmt"

	"github.com/magefree/tcg-server-go/internal/game/dice"
)

// SkillInfo identifies one invocation of a skill.
type SkillInfo struct {
	Caller     AnyState
	Definition *SkillDefinition
	Charged    bool
	Plunging   bool
	Prepared   bool
	RequestBy  *SkillInfo
	FromCard   *EntityState
	IsPreview  bool
}

func (s SkillInfo) String() string {
	if s.Definition == nil {
		return fmt.Sprintf("skill(?) by %s", Stringify(s.Caller))
	}
	return fmt.Sprintf("skill(%d) by %s", s.Definition.ID, Stringify(s.Caller))
}

// SkillResult is what a skill action emits besides its new snapshot.
type SkillResult struct {
	Events     []Event
	Mutations  []Mutation
	Exposed    []ExposedMutation
	MainDamage *DamageInfo
}

// Append merges another result into r.
func (r *SkillResult) Append(other SkillResult) {
	r.Events = append(r.Events, other.Events...)
	r.Mutations = append(r.Mutations, other.Mutations...)
	r.Exposed = append(r.Exposed, other.Exposed...)
	if r.MainDamage == nil {
		r.MainDamage = other.MainDamage
	}
}

// ChargedPlunging computes the charged/plunging flags of a normal attack.
func ChargedPlunging(sk *SkillDefinition, player *PlayerState) (charged, plunging bool) {
	if sk.Type != SkillNormal {
		return false, false
	}
	return len(player.Dice)%2 == 0, player.CanPlunging
}

// ActionType enumerates the player actions.
type ActionType string

const (
	ActionUseSkill        ActionType = "useSkill"
	ActionPlayCard        ActionType = "playCard"
	ActionSwitchActive    ActionType = "switchActive"
	ActionElementalTuning ActionType = "elementalTuning"
	ActionDeclareEnd      ActionType = "declareEnd"
)

// ActionValidity annotates why an action can or cannot be taken.
type ActionValidity int

const (
	ValidityValid ActionValidity = iota
	ValidityConditionNotMet
	ValidityNoTarget
	ValidityNoDice
	ValidityNoEnergy
	ValidityDisabled
)

var validityNames = map[ActionValidity]string{
	ValidityValid:           "VALID",
	ValidityConditionNotMet: "CONDITION_NOT_MET",
	ValidityNoTarget:        "NO_TARGET",
	ValidityNoDice:          "NO_DICE",
	ValidityNoEnergy:        "NO_ENERGY",
	ValidityDisabled:        "DISABLED",
}

func (v ActionValidity) String() string {
	if name, ok := validityNames[v]; ok {
		return name
	}
	return fmt.Sprintf("VALIDITY_%d", int(v))
}

// ActionInfo is one entry of the legal action list offered to the player on turn.
type ActionInfo struct {
	Type             ActionType
	Who              Who
	Skill            *SkillInfo
	Targets          []AnyState
	FromID           int
	ToID             int
	CardID           int
	TuningResult     dice.Type
	Fast             bool
	Cost             dice.Requirement
	AutoSelectedDice []dice.Type
	Validity         ActionValidity
	WillBeEffectless bool
	PreviewState     *GameState
}

func (a *ActionInfo) String() string {
	switch a.Type {
	case ActionUseSkill, ActionPlayCard:
		if a.Skill != nil {
			return fmt.Sprintf("%s %s (%s)", a.Type, a.Skill, a.Validity)
		}
	case ActionSwitchActive:
		return fmt.Sprintf("%s %d -> %d (%s)", a.Type, a.FromID, a.ToID, a.Validity)
	case ActionElementalTuning:
		return fmt.Sprintf("%s card %d (%s)", a.Type, a.CardID, a.Validity)
	}
	return fmt.Sprintf("%s (%s)", a.Type, a.Validity)
}

// SwitchActiveInfo describes a change of active character.
type SwitchActiveInfo struct {
	Who          Who
	From         CharacterState
	To           CharacterState
	Via          *SkillInfo
	FromReaction bool
	Fast         *bool
}

// SelectCardKind is what happens to the card a player selects.
type SelectCardKind string

const (
	SelectCreateHandCard SelectCardKind = "createHandCard"
	SelectCreateSummon   SelectCardKind = "createSummon"
)

// SelectCardInfo lists the candidate definitions of a selectCard request.
type SelectCardInfo struct {
	Kind          SelectCardKind
	DefinitionIDs []int
}
