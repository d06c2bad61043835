package rules

import (
	"slices"

	"github.com/magefree/tcg-server-go/internal/game/dice"
)

// QueryResolver resolves target-selection queries authored with effects.
// The engine treats it as opaque.
type QueryResolver interface {
	Resolve(st *GameState, who Who, query string) ([]AnyState, error)
}

// AllEntities lists every entity on board in the canonical response order:
// for the current-turn side then its opponent, defeated standby characters
// with their attachments, the active character with its attachments, combat
// statuses, living standby characters with their attachments, summons,
// supports and hands. Removed entities and piles are excluded.
func AllEntities(s *GameState) []AnyState {
	var result []AnyState
	for _, who := range TurnOrder(s.CurrentTurn) {
		p := &s.Players[who]
		if len(p.Characters) == 0 {
			continue
		}
		shifted := p.ShiftedCharacters()
		active, standby := shifted[0], shifted[1:]
		for _, ch := range standby {
			if !ch.Alive() {
				result = appendCharacter(result, ch)
			}
		}
		result = appendCharacter(result, active)
		result = appendEntities(result, p.CombatStatuses)
		for _, ch := range standby {
			if ch.Alive() {
				result = appendCharacter(result, ch)
			}
		}
		result = appendEntities(result, p.Summons)
		result = appendEntities(result, p.Supports)
		result = appendEntities(result, p.Hands)
	}
	return result
}

// AllEntitiesInclPile also lists both piles, current-turn side first.
func AllEntitiesInclPile(s *GameState) []AnyState {
	result := AllEntities(s)
	for _, who := range TurnOrder(s.CurrentTurn) {
		result = appendEntities(result, s.Players[who].Pile)
	}
	return result
}

func appendCharacter(dst []AnyState, ch CharacterState) []AnyState {
	dst = append(dst, ch)
	return appendEntities(dst, ch.Entities)
}

func appendEntities(dst []AnyState, list []EntityState) []AnyState {
	for _, e := range list {
		dst = append(dst, e)
	}
	return dst
}

// CallerAndSkill pairs a listening skill with the state that owns it.
type CallerAndSkill struct {
	Caller AnyState
	Skill  *SkillDefinition
}

// AllSkills lists the skills listening to an event: extensions first (called
// by the current-turn active character), then entities in scan order.
func AllSkills(s *GameState, event EventName) []CallerAndSkill {
	var result []CallerAndSkill
	if s.Data != nil {
		if active, err := s.Players[s.CurrentTurn].Active(); err == nil {
			for _, ext := range s.Data.Extensions {
				for _, sk := range ext.Skills {
					if sk.TriggerOn == event {
						result = append(result, CallerAndSkill{Caller: active, Skill: sk})
					}
				}
			}
		}
	}
	for _, entity := range AllEntities(s) {
		def, err := s.DefinitionOf(entity)
		if err != nil {
			continue
		}
		for _, sk := range def.Skills {
			if sk.TriggerOn == event {
				result = append(result, CallerAndSkill{Caller: entity, Skill: sk})
			}
		}
	}
	return result
}

// EntityByID finds a character or entity on board, in hands or pile.
func EntityByID(s *GameState, id int) (AnyState, error) {
	loc, ok := locate(s, id)
	if !ok {
		for _, p := range s.Players {
			for _, e := range p.RemovedEntities {
				if e.ID == id {
					return e, nil
				}
			}
		}
		return nil, NewInternalError("entity %d not found", id)
	}
	return stateAt(s, loc), nil
}

func stateAt(s *GameState, loc location) AnyState {
	p := &s.Players[loc.who]
	if loc.area == AreaCharacters {
		ch := p.Characters[loc.charIdx]
		if loc.idx < 0 {
			return ch
		}
		return ch.Entities[loc.idx]
	}
	return (*areaSlice(p, loc.area))[loc.idx]
}

// CharacterByID finds a character.
func CharacterByID(s *GameState, id int) (CharacterState, error) {
	st, err := EntityByID(s, id)
	if err != nil {
		return CharacterState{}, err
	}
	ch, ok := st.(CharacterState)
	if !ok {
		return CharacterState{}, NewInternalError("entity %d is not a character", id)
	}
	return ch, nil
}

// Exists reports whether id is still on board, in hands or pile.
func Exists(s *GameState, id int) bool {
	_, ok := locate(s, id)
	return ok
}

// AreaOf returns where an entity lives, including removed entities.
func AreaOf(s *GameState, id int) (EntityArea, error) {
	if loc, ok := locate(s, id); ok {
		area := EntityArea{Who: loc.who, Type: loc.area}
		if loc.area == AreaCharacters {
			area.CharacterID = s.Players[loc.who].Characters[loc.charIdx].ID
		}
		return area, nil
	}
	for _, p := range s.Players {
		for _, e := range p.RemovedEntities {
			if e.ID == id {
				return EntityArea{Who: p.Who, Type: AreaRemoved}, nil
			}
		}
	}
	return EntityArea{}, NewInternalError("entity %d not found", id)
}

// EntitiesAtArea lists states of an area. For a characters area the
// character itself comes first.
func EntitiesAtArea(s *GameState, area EntityArea) ([]AnyState, error) {
	p := &s.Players[area.Who]
	if area.Type == AreaCharacters {
		idx := slices.IndexFunc(p.Characters, func(c CharacterState) bool { return c.ID == area.CharacterID })
		if idx < 0 {
			return nil, NewInternalError("character %d not found", area.CharacterID)
		}
		return appendCharacter(nil, p.Characters[idx]), nil
	}
	list := areaSlice(p, area.Type)
	if list == nil {
		return nil, NewInternalError("unknown area %s", area.Type)
	}
	return appendEntities(nil, *list), nil
}

// ActiveCharacter returns the active character of a side.
func ActiveCharacter(s *GameState, who Who) (CharacterState, error) {
	return s.Players[who].Active()
}

// InitiativeSkills lists the initiative skills of the active character and of
// the statuses attached to it. Prepared skills are excluded.
func InitiativeSkills(s *GameState, who Who) []CallerAndSkill {
	active, err := s.Players[who].Active()
	if err != nil {
		return nil
	}
	var result []CallerAndSkill
	for _, e := range active.Entities {
		for _, sk := range s.MustDefinition(e).Skills {
			if sk.IsInitiative() {
				result = append(result, CallerAndSkill{Caller: e, Skill: sk})
			}
		}
	}
	for _, sk := range s.MustDefinition(active).Skills {
		if sk.IsInitiative() && !sk.Initiative.Prepared {
			result = append(result, CallerAndSkill{Caller: active, Skill: sk})
		}
	}
	return result
}

// IsSkillDisabled reports whether a disableSkill status is attached.
func IsSkillDisabled(s *GameState, ch CharacterState) bool {
	for _, e := range ch.Entities {
		if s.MustDefinition(e).HasTag(TagDisableSkill) {
			return true
		}
	}
	return false
}

// FindReplaceAction returns the replaceAction skill of the first status of
// the active character that provides one.
func FindReplaceAction(s *GameState, who Who) (*SkillInfo, bool) {
	active, err := s.Players[who].Active()
	if err != nil {
		return nil, false
	}
	for _, e := range active.Entities {
		for _, sk := range s.MustDefinition(e).Skills {
			if sk.TriggerOn == EventReplaceAction {
				return &SkillInfo{Caller: e, Definition: sk}, true
			}
		}
	}
	return nil, false
}

// CheckImmune reports whether some modifyZeroHealth skill would accept arg.
func CheckImmune(s *GameState, arg *ZeroHealthArg) bool {
	for _, cs := range AllSkills(s, EventModifyZeroHealth) {
		info := SkillInfo{Caller: cs.Caller, Definition: cs.Skill}
		if cs.Skill.Accepts(s, info, arg) {
			return true
		}
	}
	return false
}

// ElementOfCharacter maps a character to its dice type.
func ElementOfCharacter(s *GameState, ch CharacterState) dice.Type {
	return s.MustDefinition(ch).Element()
}

// SortDice orders dice for a player: omni, then the elements of the
// characters starting from the active one, then by count and value.
func SortDice(s *GameState, who Who, values []dice.Type) []dice.Type {
	var preferred []dice.Type
	for _, ch := range s.Players[who].ShiftedCharacters() {
		preferred = append(preferred, ElementOfCharacter(s, ch))
	}
	return dice.Sort(values, preferred)
}

// Variable reads a declared variable.
func Variable(s *GameState, st AnyState, name string) (int, error) {
	v, ok := st.StateVariables()[name]
	if !ok {
		return 0, NewDataError("variable %q is not declared on %s", name, Stringify(st))
	}
	return v, nil
}

// Finished reports whether the match reached gameEnd.
func (s *GameState) Finished() bool {
	return s.Phase == PhaseGameEnd
}
