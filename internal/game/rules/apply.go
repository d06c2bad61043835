package rules

import (
	"maps"
	"slices"
)

// location points at an entity inside a snapshot. charIdx is set for the
// characters area; idx is -1 when the location is the character itself.
type location struct {
	who     Who
	area    AreaType
	charIdx int
	idx     int
}

var searchAreas = []AreaType{AreaCombatStatuses, AreaSummons, AreaSupports, AreaHands, AreaPile}

func areaSlice(p *PlayerState, t AreaType) *[]EntityState {
	switch t {
	case AreaCombatStatuses:
		return &p.CombatStatuses
	case AreaSummons:
		return &p.Summons
	case AreaSupports:
		return &p.Supports
	case AreaHands:
		return &p.Hands
	case AreaPile:
		return &p.Pile
	case AreaRemoved:
		return &p.RemovedEntities
	}
	return nil
}

func locate(s *GameState, id int) (location, bool) {
	for _, who := range []Who{Player0, Player1} {
		p := &s.Players[who]
		for ci, ch := range p.Characters {
			if ch.ID == id {
				return location{who: who, area: AreaCharacters, charIdx: ci, idx: -1}, true
			}
			for ei, e := range ch.Entities {
				if e.ID == id {
					return location{who: who, area: AreaCharacters, charIdx: ci, idx: ei}, true
				}
			}
		}
		for _, area := range searchAreas {
			for ei, e := range *areaSlice(p, area) {
				if e.ID == id {
					return location{who: who, area: area, charIdx: -1, idx: ei}, true
				}
			}
		}
	}
	return location{}, false
}

func insertAt(list []EntityState, e EntityState, index *int) []EntityState {
	out := slices.Clone(list)
	if index == nil || *index >= len(out) {
		return append(out, e)
	}
	i := max(0, *index)
	return slices.Insert(out, i, e)
}

// detach removes the entity at loc from ns and returns it. Characters cannot be detached.
func detach(ns *GameState, loc location) (EntityState, error) {
	p := &ns.Players[loc.who]
	if loc.area == AreaCharacters {
		if loc.idx < 0 {
			return EntityState{}, NewInternalError("cannot detach character %d", p.Characters[loc.charIdx].ID)
		}
		chars := slices.Clone(p.Characters)
		ch := chars[loc.charIdx]
		e := ch.Entities[loc.idx]
		ch.Entities = slices.Delete(slices.Clone(ch.Entities), loc.idx, loc.idx+1)
		chars[loc.charIdx] = ch
		p.Characters = chars
		return e, nil
	}
	list := areaSlice(p, loc.area)
	e := (*list)[loc.idx]
	*list = slices.Delete(slices.Clone(*list), loc.idx, loc.idx+1)
	return e, nil
}

func attach(ns *GameState, area EntityArea, e EntityState, index *int) error {
	if !area.Who.Valid() {
		return NewInternalError("invalid side %d", area.Who)
	}
	p := &ns.Players[area.Who]
	if area.Type == AreaCharacters {
		ci := slices.IndexFunc(p.Characters, func(c CharacterState) bool { return c.ID == area.CharacterID })
		if ci < 0 {
			return NewInternalError("character %d not found", area.CharacterID)
		}
		chars := slices.Clone(p.Characters)
		chars[ci].Entities = insertAt(chars[ci].Entities, e, index)
		p.Characters = chars
		return nil
	}
	list := areaSlice(p, area.Type)
	if list == nil || area.Type == AreaRemoved {
		return NewInternalError("cannot attach entity to %s", area)
	}
	*list = insertAt(*list, e, index)
	return nil
}

func clampVar(vars map[string]int, name string, value int) int {
	switch name {
	case VarHealth:
		return max(0, min(value, vars[VarMaxHealth]))
	case VarEnergy:
		return max(0, min(value, vars[VarMaxEnergy]))
	}
	return value
}

func modifyVar(ns *GameState, loc location, name string, value int) (bool, error) {
	p := &ns.Players[loc.who]
	if loc.area == AreaCharacters && loc.idx < 0 {
		ch := p.Characters[loc.charIdx]
		old, ok := ch.Variables[name]
		if !ok {
			return false, NewDataError("variable %q is not declared on %s", name, ch)
		}
		value = clampVar(ch.Variables, name, value)
		if old == value {
			return false, nil
		}
		ch = ch.With(name, value)
		switch name {
		case VarMaxHealth:
			ch.Variables[VarHealth] = min(ch.Variables[VarHealth], value)
		case VarMaxEnergy:
			ch.Variables[VarEnergy] = min(ch.Variables[VarEnergy], value)
		}
		chars := slices.Clone(p.Characters)
		chars[loc.charIdx] = ch
		p.Characters = chars
		return true, nil
	}
	var list []EntityState
	if loc.area == AreaCharacters {
		list = p.Characters[loc.charIdx].Entities
	} else {
		list = *areaSlice(p, loc.area)
	}
	e := list[loc.idx]
	old, ok := e.Variables[name]
	if !ok {
		return false, NewDataError("variable %q is not declared on %s", name, e)
	}
	if old == value {
		return false, nil
	}
	list = slices.Clone(list)
	list[loc.idx] = e.With(name, value)
	if loc.area == AreaCharacters {
		chars := slices.Clone(p.Characters)
		chars[loc.charIdx].Entities = list
		p.Characters = chars
	} else {
		*areaSlice(p, loc.area) = list
	}
	return true, nil
}

func checkDeclared(s *GameState, defID int, vars map[string]int) error {
	if s.Data == nil {
		return nil
	}
	def, err := s.Data.Definition(defID)
	if err != nil {
		return err
	}
	for name := range vars {
		if _, ok := def.VarConfigs[name]; !ok {
			return NewDataError("variable %q is not declared by definition %d", name, defID)
		}
	}
	return nil
}

// Apply returns the snapshot produced by one mutation. s is never modified.
// A ModifyEntityVar that does not change anything returns s itself.
func Apply(s *GameState, m Mutation) (*GameState, error) {
	if s == nil {
		return nil, NewInternalError("apply %s on nil state", m.Type())
	}
	ns := s.clone()
	switch mut := m.(type) {
	case *CreateCharacter:
		if mut.Value.ID == 0 {
			return nil, NewInternalError("createCharacter without id")
		}
		if err := checkDeclared(s, mut.Value.DefinitionID, mut.Value.Variables); err != nil {
			return nil, err
		}
		p := &ns.Players[mut.Who]
		p.Characters = append(slices.Clone(p.Characters), mut.Value)
		ns.Iterators.ID--

	case *CreateEntity:
		if mut.Value.ID == 0 {
			return nil, NewInternalError("createEntity without id")
		}
		if mut.Where.Type == AreaHands || mut.Where.Type == AreaPile {
			return nil, NewInternalError("createEntity cannot target %s", mut.Where.Type)
		}
		if err := checkDeclared(s, mut.Value.DefinitionID, mut.Value.Variables); err != nil {
			return nil, err
		}
		if err := attach(ns, mut.Where, mut.Value, nil); err != nil {
			return nil, err
		}
		ns.Iterators.ID--

	case *RemoveEntity:
		loc, ok := locate(s, mut.ID)
		if !ok {
			return nil, NewInternalError("remove entity: entity %d not found", mut.ID)
		}
		e, err := detach(ns, loc)
		if err != nil {
			return nil, err
		}
		p := &ns.Players[loc.who]
		p.RemovedEntities = append(slices.Clone(p.RemovedEntities), e)

	case *MoveEntity:
		loc, ok := locate(s, mut.ID)
		if !ok {
			return nil, NewInternalError("move entity: entity %d not found", mut.ID)
		}
		e, err := detach(ns, loc)
		if err != nil {
			return nil, err
		}
		if err := attach(ns, mut.To, e, mut.TargetIndex); err != nil {
			return nil, err
		}

	case *ModifyEntityVar:
		loc, ok := locate(s, mut.ID)
		if !ok {
			return nil, NewInternalError("modify variable: entity %d not found", mut.ID)
		}
		changed, err := modifyVar(ns, loc, mut.VarName, mut.Value)
		if err != nil {
			return nil, err
		}
		if !changed {
			return s, nil
		}

	case *TransformDefinition:
		loc, ok := locate(s, mut.ID)
		if !ok {
			return nil, NewInternalError("transform: entity %d not found", mut.ID)
		}
		p := &ns.Players[loc.who]
		switch {
		case loc.area == AreaCharacters && loc.idx < 0:
			chars := slices.Clone(p.Characters)
			chars[loc.charIdx].DefinitionID = mut.NewDefinitionID
			p.Characters = chars
		case loc.area == AreaCharacters:
			chars := slices.Clone(p.Characters)
			ents := slices.Clone(chars[loc.charIdx].Entities)
			ents[loc.idx].DefinitionID = mut.NewDefinitionID
			chars[loc.charIdx].Entities = ents
			p.Characters = chars
		default:
			list := slices.Clone(*areaSlice(p, loc.area))
			list[loc.idx].DefinitionID = mut.NewDefinitionID
			*areaSlice(p, loc.area) = list
		}

	case *ResetDice:
		p := &ns.Players[mut.Who]
		value := slices.Clone(mut.Value)
		if limit := s.Config.MaxDiceCount; limit > 0 && len(value) > limit {
			value = value[:limit]
		}
		p.Dice = value

	case *ChangePhase:
		if !CanTransition(s.Phase, mut.NewPhase) {
			return nil, NewInternalError("illegal phase transition %s -> %s", s.Phase, mut.NewPhase)
		}
		ns.Phase = mut.NewPhase

	case *SwitchTurn:
		ns.CurrentTurn = s.CurrentTurn.Flip()

	case *StepRound:
		ns.RoundNumber++

	case *SwitchActive:
		p := &ns.Players[mut.Who]
		if !slices.ContainsFunc(p.Characters, func(c CharacterState) bool { return c.ID == mut.CharacterID }) {
			return nil, NewInternalError("switch active: character %d not found for %s", mut.CharacterID, mut.Who)
		}
		p.ActiveCharacterID = mut.CharacterID

	case *SetWinner:
		if mut.Winner != nil {
			w := *mut.Winner
			ns.Winner = &w
		} else {
			ns.Winner = nil
		}

	case *SetPlayerFlag:
		if err := ns.Players[mut.Who].setFlag(mut.Flag, mut.Value); err != nil {
			return nil, err
		}

	case *SwapCharacterPosition:
		p := &ns.Players[mut.Who]
		i0 := slices.IndexFunc(p.Characters, func(c CharacterState) bool { return c.ID == mut.CharacterID0 })
		i1 := slices.IndexFunc(p.Characters, func(c CharacterState) bool { return c.ID == mut.CharacterID1 })
		if i0 < 0 || i1 < 0 {
			return nil, NewInternalError("swap characters: %d or %d not found", mut.CharacterID0, mut.CharacterID1)
		}
		chars := slices.Clone(p.Characters)
		chars[i0], chars[i1] = chars[i1], chars[i0]
		p.Characters = chars

	case *StepRandom:
		ns.Iterators.Random = mut.Value

	case *StepID:
		ns.Iterators.ID--

	case *CreateCard:
		if mut.Value.ID == 0 {
			return nil, NewInternalError("createCard without id")
		}
		if mut.Target != AreaHands && mut.Target != AreaPile {
			return nil, NewInternalError("createCard cannot target %s", mut.Target)
		}
		if err := attach(ns, EntityArea{Who: mut.Who, Type: mut.Target}, mut.Value, mut.TargetIndex); err != nil {
			return nil, err
		}
		ns.Iterators.ID--

	case *TransferCard:
		from := areaSlice(&s.Players[mut.Who], mut.From)
		if from == nil {
			return nil, NewInternalError("transfer card: bad area %s", mut.From)
		}
		list := *from
		idx := slices.IndexFunc(list, func(e EntityState) bool { return e.ID == mut.ID })
		if idx < 0 {
			return nil, NewInternalError("transfer card: card %d not in %s of %s", mut.ID, mut.From, mut.Who)
		}
		e, err := detach(ns, location{who: mut.Who, area: mut.From, charIdx: -1, idx: idx})
		if err != nil {
			return nil, err
		}
		if err := attach(ns, EntityArea{Who: mut.Who, Type: mut.To}, e, mut.TargetIndex); err != nil {
			return nil, err
		}

	case *RemoveCard:
		list := areaSlice(&s.Players[mut.Who], mut.Where)
		if list == nil {
			return nil, NewInternalError("remove card: bad area %s", mut.Where)
		}
		idx := slices.IndexFunc(*list, func(e EntityState) bool { return e.ID == mut.ID })
		if idx < 0 {
			return nil, NewInternalError("remove card: card %d not in %s of %s", mut.ID, mut.Where, mut.Who)
		}
		e, err := detach(ns, location{who: mut.Who, area: mut.Where, charIdx: -1, idx: idx})
		if err != nil {
			return nil, err
		}
		p := &ns.Players[mut.Who]
		p.RemovedEntities = append(slices.Clone(p.RemovedEntities), e)

	case *ClearRemovedEntities:
		for i := range ns.Players {
			ns.Players[i].RemovedEntities = nil
		}

	case *PushRoundSkillLog:
		p := &ns.Players[mut.Who]
		log := make(map[int][]int, len(p.RoundSkillLog)+1)
		for k, v := range p.RoundSkillLog {
			log[k] = v
		}
		log[mut.CharacterDefinitionID] = append(slices.Clone(log[mut.CharacterDefinitionID]), mut.SkillID)
		p.RoundSkillLog = log

	case *ClearRoundSkillLog:
		ns.Players[mut.Who].RoundSkillLog = nil

	case *MutateExtensionState:
		idx := slices.IndexFunc(s.Extensions, func(e ExtensionState) bool { return e.DefinitionID == mut.DefinitionID })
		if idx < 0 {
			return nil, NewInternalError("extension %d not found", mut.DefinitionID)
		}
		exts := slices.Clone(s.Extensions)
		exts[idx].Values = maps.Clone(mut.Values)
		ns.Extensions = exts

	default:
		return nil, NewInternalError("unknown mutation %T", m)
	}
	return ns, nil
}

// ApplyAll applies mutations in order.
func ApplyAll(s *GameState, muts ...Mutation) (*GameState, error) {
	var err error
	for _, m := range muts {
		if s, err = Apply(s, m); err != nil {
			return nil, err
		}
	}
	return s, nil
}
