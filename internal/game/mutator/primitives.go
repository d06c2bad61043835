package mutator

import (
	"strconv"
	"strings"

	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// DamageOption carries the context needed to describe reactions.
type DamageOption struct {
	Via            rules.SkillInfo
	CallerWho      rules.Who
	TargetWho      rules.Who
	TargetIsActive bool
}

// ApplyOption extends DamageOption with the damage that applied the element.
type ApplyOption struct {
	DamageOption
	FromDamage *rules.DamageInfo
}

// HealOption selects the heal kind.
type HealOption struct {
	Via  rules.SkillInfo
	Kind rules.HealKind
}

// ApplyAura applies an element to a living character, emitting onReaction and
// running the reaction's inline effect when one is triggered.
func (m *Mutator) ApplyAura(target rules.CharacterState, element rules.DamageType, opt ApplyOption) ([]rules.Event, error) {
	if !target.Alive() {
		return nil, nil
	}
	aura := target.AuraOf()
	newAura, reaction := rules.React(aura, element)
	if err := m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarAura, Value: int(newAura)}); err != nil {
		return nil, err
	}
	if opt.FromDamage == nil {
		m.Notify(NotifyOption{Exposed: []rules.ExposedMutation{{
			Kind:               rules.ExposedApplyAura,
			Who:                opt.TargetWho,
			TargetID:           target.ID,
			TargetDefinitionID: target.DefinitionID,
			DamageType:         element,
			Reaction:           reaction,
			OldAura:            aura,
			NewAura:            newAura,
		}}})
	}
	if reaction == rules.ReactionNone {
		return nil, nil
	}
	m.logger.Debug("apply reaction", zap.String("reaction", reaction.String()), zap.String("target", target.String()))
	info := rules.ReactionInfo{
		Target:     target,
		Type:       reaction,
		Via:        opt.Via,
		FromDamage: opt.FromDamage,
	}
	events := []rules.Event{rules.NewEvent(rules.EventReaction, rules.NewReactionArg(m.state, info))}
	if m.state.Data == nil {
		return events, nil
	}
	if effect, ok := m.state.Data.Reactions[reaction]; ok {
		arg := rules.NewReactionEffectArg(m.state, info, opt.TargetWho, opt.CallerWho, opt.TargetIsActive)
		emitted, err := m.executeInline(effect.Action, opt.Via, arg)
		if err != nil {
			return nil, err
		}
		events = append(events, emitted...)
	}
	return events, nil
}

// Heal restores health. Dead characters are only healed by a revive, which
// sets alive first. The heal passes modifyHeal0 and modifyHeal1 and may be
// cancelled there.
func (m *Mutator) Heal(value int, target rules.CharacterState, opt HealOption) ([]rules.Event, error) {
	var events []rules.Event
	if !target.Alive() {
		if opt.Kind != rules.HealRevive {
			return nil, nil
		}
		m.logger.Debug("revive before heal", zap.String("target", target.String()))
		if err := m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarAlive, Value: 1, Direction: rules.DirectionIncrease}); err != nil {
			return nil, err
		}
		events = append(events, rules.NewEvent(rules.EventRevive, rules.NewCharacterArg(m.state, target)))
	}
	done := m.SubLog("heal", zap.Int("value", value), zap.String("target", target.String()))
	defer done()

	injury := target.Var(rules.VarMaxHealth) - target.Health()
	info := rules.DamageInfo{
		Type:          rules.DamageHeal,
		Value:         min(value, injury),
		ExpectedValue: value,
		Source:        opt.Via.Caller,
		Via:           opt.Via,
		Target:        target,
		TargetAura:    target.AuraOf(),
		RoundNumber:   m.state.RoundNumber,
		HealKind:      opt.Kind,
	}
	modifier := rules.NewModifyHealArg(m.state, info)
	for _, name := range []rules.EventName{rules.EventModifyHeal0, rules.EventModifyHeal1} {
		emitted, err := m.handleInlineEvent(opt.Via, name, modifier)
		if err != nil {
			return nil, err
		}
		events = append(events, emitted...)
	}
	if modifier.Cancelled() {
		return events, nil
	}
	info = modifier.Heal()
	newHealth := target.Health() + info.Value
	if opt.Kind == rules.HealImmuneDefeated {
		newHealth = info.Value
	}
	if err := m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarHealth, Value: newHealth, Direction: rules.DirectionIncrease}); err != nil {
		return nil, err
	}
	m.Notify(NotifyOption{Exposed: []rules.ExposedMutation{{
		Kind:               rules.ExposedDamage,
		SourceID:           stateID(opt.Via.Caller),
		SourceDefinitionID: stateDefinitionID(opt.Via.Caller),
		TargetID:           target.ID,
		TargetDefinitionID: target.DefinitionID,
		DamageType:         rules.DamageHeal,
		Value:              info.Value,
		OldAura:            target.AuraOf(),
		NewAura:            target.AuraOf(),
		OldHealth:          target.Health(),
		NewHealth:          newHealth,
		HealKind:           info.HealKind,
	}}})
	events = append(events, rules.NewEvent(rules.EventDamageOrHeal, rules.NewDamageOrHealArg(m.state, info)))
	return events, nil
}

// Damage deals a damage. Non-piercing damage passes modifyDamage0, the
// reaction bonus, then modifyDamage1..3. Elemental damage applies its
// element afterwards.
func (m *Mutator) Damage(info rules.DamageInfo, opt DamageOption) (rules.DamageInfo, []rules.Event, error) {
	target := info.Target
	done := m.SubLog("deal damage", zap.Int("value", info.Value), zap.String("type", info.Type.String()), zap.String("target", target.String()))
	defer done()

	var events []rules.Event
	if info.Type != rules.DamagePiercing {
		modifier := rules.NewModifyDamageArg(m.state, info)
		stages := []rules.EventName{rules.EventModifyDamage0, rules.EventModifyDamage1, rules.EventModifyDamage2, rules.EventModifyDamage3}
		for i, name := range stages {
			if i == 1 {
				modifier.IncreaseDamageByReaction()
			}
			emitted, err := m.handleInlineEvent(opt.Via, name, modifier)
			if err != nil {
				return info, nil, err
			}
			events = append(events, emitted...)
		}
		info = modifier.Damage()
	} else {
		info.CauseDefeated = target.Alive() && target.Health() <= info.Value
	}
	if info.Log != "" {
		m.logger.Debug("damage modified", zap.String("log", info.Log))
	}
	finalHealth := max(0, target.Health()-info.Value)
	if err := m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarHealth, Value: finalHealth, Direction: rules.DirectionDecrease}); err != nil {
		return info, nil, err
	}
	if target.Alive() {
		newAura, reaction := info.TargetAura, rules.ReactionNone
		if info.Type.IsElemental() {
			newAura, reaction = rules.React(info.TargetAura, info.Type)
		}
		m.Notify(NotifyOption{Exposed: []rules.ExposedMutation{{
			Kind:               rules.ExposedDamage,
			Who:                opt.TargetWho,
			SourceID:           stateID(info.Source),
			SourceDefinitionID: stateDefinitionID(info.Source),
			TargetID:           target.ID,
			TargetDefinitionID: target.DefinitionID,
			DamageType:         info.Type,
			Value:              info.Value,
			Reaction:           reaction,
			OldAura:            info.TargetAura,
			NewAura:            newAura,
			OldHealth:          target.Health(),
			NewHealth:          finalHealth,
			CauseDefeated:      info.CauseDefeated,
			IsSkillMainDamage:  info.IsSkillMainDamage,
		}}})
	}
	events = append(events, rules.NewEvent(rules.EventDamageOrHeal, rules.NewDamageOrHealArg(m.state, info)))
	if info.Type.IsElemental() {
		from := info
		emitted, err := m.ApplyAura(target, info.Type, ApplyOption{DamageOption: opt, FromDamage: &from})
		if err != nil {
			return info, nil, err
		}
		events = append(events, emitted...)
	}
	return info, events, nil
}

func stateID(s rules.AnyState) int {
	if s == nil {
		return 0
	}
	return s.StateID()
}

func stateDefinitionID(s rules.AnyState) int {
	if s == nil {
		return 0
	}
	return s.StateDefinitionID()
}

// InsertHandCard applies a createCard or transferCard into the hands. A card
// that overflows MaxHandsCount is discarded with reason "overflow" and raises
// no event.
func (m *Mutator) InsertHandCard(who rules.Who, mut rules.Mutation) ([]rules.Event, error) {
	var reason string
	switch v := mut.(type) {
	case *rules.CreateCard:
		v.Who, v.Target, v.TargetIndex = who, rules.AreaHands, nil
		reason = "create"
	case *rules.TransferCard:
		v.Who, v.To, v.TargetIndex = who, rules.AreaHands, nil
		reason = v.Reason
	default:
		return nil, rules.NewInternalError("cannot insert hand card with %s", mut.Type())
	}
	if err := m.Mutate(mut); err != nil {
		return nil, err
	}
	hands := m.state.Players[who].Hands
	card := hands[len(hands)-1]
	if len(hands) > m.state.Config.MaxHandsCount {
		if err := m.Mutate(&rules.RemoveCard{Who: who, Where: rules.AreaHands, ID: card.ID, Reason: "overflow"}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return []rules.Event{rules.NewEvent(rules.EventHandCardInserted, rules.NewHandCardInsertedArg(m.state, who, card, reason))}, nil
}

// DrawCards moves up to count cards from the top of the pile into the hands.
func (m *Mutator) DrawCards(who rules.Who, count int) ([]rules.Event, error) {
	var events []rules.Event
	for i := 0; i < count; i++ {
		pile := m.state.Players[who].Pile
		if len(pile) == 0 {
			continue
		}
		emitted, err := m.InsertHandCard(who, &rules.TransferCard{From: rules.AreaPile, ID: pile[0].ID, Reason: "draw"})
		if err != nil {
			return nil, err
		}
		events = append(events, emitted...)
	}
	return events, nil
}

// CreateHandCard creates a fresh card of a definition in the hands.
func (m *Mutator) CreateHandCard(who rules.Who, definitionID int) ([]rules.Event, error) {
	def, err := m.definition(definitionID)
	if err != nil {
		return nil, err
	}
	done := m.SubLog("create hand card", zap.Int("definition_id", definitionID))
	defer done()
	return m.InsertHandCard(who, &rules.CreateCard{Value: rules.EntityState{DefinitionID: def.ID, Variables: def.InitialVariables(nil)}})
}

func (m *Mutator) definition(id int) (*rules.Definition, error) {
	if m.state.Data == nil {
		return nil, rules.NewInternalError("state has no game data")
	}
	return m.state.Data.Definition(id)
}

// PileStrategy places inserted pile cards: "top", "bottom", "random",
// "spaceAround", "topRangeN" (random among the top N) or "topIndexN".
type PileStrategy string

const (
	PileTop         PileStrategy = "top"
	PileBottom      PileStrategy = "bottom"
	PileRandom      PileStrategy = "random"
	PileSpaceAround PileStrategy = "spaceAround"
)

// InsertPileCards applies createCard or transferCard mutations into the pile.
// Payloads beyond MaxPileCount are dropped.
func (m *Mutator) InsertPileCards(who rules.Who, payloads []rules.Mutation, strategy PileStrategy) error {
	pileLen := func() int { return len(m.state.Players[who].Pile) }
	room := max(0, m.state.Config.MaxPileCount-pileLen())
	if len(payloads) > room {
		payloads = payloads[:room]
	}
	if len(payloads) == 0 {
		return nil
	}
	insert := func(mut rules.Mutation, index int) error {
		switch v := mut.(type) {
		case *rules.CreateCard:
			v.Who, v.Target, v.TargetIndex = who, rules.AreaPile, &index
		case *rules.TransferCard:
			v.Who, v.To, v.TargetIndex = who, rules.AreaPile, &index
		default:
			return rules.NewInternalError("cannot insert pile card with %s", mut.Type())
		}
		return m.Mutate(mut)
	}
	randomIndex := func(bound int) (int, error) {
		v, err := m.StepRandom()
		if err != nil {
			return 0, err
		}
		return v % bound, nil
	}

	count := len(payloads)
	switch strategy {
	case PileTop:
		for _, mut := range payloads {
			if err := insert(mut, 0); err != nil {
				return err
			}
		}
	case PileBottom:
		for _, mut := range payloads {
			if err := insert(mut, pileLen()); err != nil {
				return err
			}
		}
	case PileRandom:
		for _, mut := range payloads {
			index, err := randomIndex(pileLen() + 1)
			if err != nil {
				return err
			}
			if err := insert(mut, index); err != nil {
				return err
			}
		}
	case PileSpaceAround:
		original := pileLen()
		spaces := count + 1
		step := original / spaces
		rest := original % spaces
		for i, j := 0, step; i < count; i, j = i+1, j+step {
			if i < rest {
				j++
			}
			if err := insert(payloads[i], i+j); err != nil {
				return err
			}
		}
	default:
		if s, ok := strings.CutPrefix(string(strategy), "topRange"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return rules.NewDataError("invalid pile strategy %q", strategy)
			}
			for _, mut := range payloads {
				index, err := randomIndex(max(1, min(n, pileLen())))
				if err != nil {
					return err
				}
				if err := insert(mut, index); err != nil {
					return err
				}
			}
			return nil
		}
		if s, ok := strings.CutPrefix(string(strategy), "topIndex"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return rules.NewDataError("invalid pile strategy %q", strategy)
			}
			for _, mut := range payloads {
				if err := insert(mut, min(n, pileLen())); err != nil {
					return err
				}
			}
			return nil
		}
		return rules.NewDataError("invalid pile strategy %q", strategy)
	}
	return nil
}

// CreateEntityOptions tunes CreateEntity.
type CreateEntityOptions struct {
	// OverrideVariables replaces initial values of declared variables.
	OverrideVariables map[string]int
	// ModifyOverriddenVariablesOnly limits a refresh to the overridden variables.
	ModifyOverriddenVariablesOnly bool
	FromCardID                    int
}

// CreateEntityResult reports what CreateEntity did. Both states are nil
// when nothing was created.
type CreateEntityResult struct {
	Old    *rules.EntityState
	New    *rules.EntityState
	Events []rules.Event
}

// CreateEntity creates an entity in an area, or refreshes the variables of an
// existing entity with the same definition according to each variable's
// recreate policy.
func (m *Mutator) CreateEntity(def *rules.Definition, area rules.EntityArea, opt CreateEntityOptions) (CreateEntityResult, error) {
	done := m.SubLog("create entity", zap.Int("definition_id", def.ID), zap.String("area", area.String()))
	defer done()

	existing, err := rules.EntitiesAtArea(m.state, area)
	if err != nil {
		return CreateEntityResult{}, err
	}
	if def.Type == rules.TypeStatus && def.HasTag(rules.TagDisableSkill) {
		for _, e := range existing {
			d := m.state.MustDefinition(e)
			if d.Type == rules.TypeStatus && d.HasTag(rules.TagImmuneControl) {
				m.logger.Debug("immune control blocks disable skill status", zap.Int("definition_id", def.ID))
				return CreateEntityResult{}, nil
			}
		}
	}

	var old *rules.EntityState
	for _, e := range existing {
		es, ok := e.(rules.EntityState)
		if !ok || es.DefinitionID != def.ID {
			continue
		}
		if t := m.state.MustDefinition(es).Type; t == rules.TypeCharacter || t == rules.TypeSupport {
			continue
		}
		old = &es
		break
	}

	if old != nil {
		for _, name := range def.VarNames() {
			override, overridden := opt.OverrideVariables[name]
			if opt.ModifyOverriddenVariablesOnly && !overridden {
				continue
			}
			oldValue, declared := old.Variables[name]
			if !declared {
				continue
			}
			cfg := def.VarConfigs[name]
			initial := cfg.Initial
			if overridden {
				initial = override
			}
			kind := cfg.Recreate.Kind
			if kind == "" || kind == rules.RecreateDefault {
				kind = m.state.Behavior.DefaultRecreate
			}
			var value int
			switch kind {
			case rules.RecreateOverwrite:
				value = initial
			case rules.RecreateTakeMax:
				value = max(initial, oldValue)
			case rules.RecreateAppend:
				if oldValue > cfg.Recreate.AppendLimit {
					continue
				}
				appendValue := cfg.Recreate.AppendValue
				if overridden {
					appendValue = override
				}
				value = min(appendValue+oldValue, cfg.Recreate.AppendLimit)
			default:
				continue
			}
			if err := m.Mutate(&rules.ModifyEntityVar{ID: old.ID, VarName: name, Value: value, Direction: rules.DirectionIncrease}); err != nil {
				return CreateEntityResult{}, err
			}
		}
		st, err := rules.EntityByID(m.state, old.ID)
		if err != nil {
			return CreateEntityResult{}, err
		}
		newState := st.(rules.EntityState)
		return CreateEntityResult{
			Old:    old,
			New:    &newState,
			Events: []rules.Event{rules.NewEvent(rules.EventEnter, rules.NewEnterArg(m.state, old, newState, area))},
		}, nil
	}

	if area.Type == rules.AreaSummons && len(existing) >= m.state.Config.MaxSummonsCount {
		return CreateEntityResult{}, nil
	}
	mut := &rules.CreateEntity{
		Where: area,
		Value: rules.EntityState{
			DefinitionID: def.ID,
			Variables:    def.InitialVariables(opt.OverrideVariables),
			FromCardID:   opt.FromCardID,
		},
	}
	if err := m.Mutate(mut); err != nil {
		return CreateEntityResult{}, err
	}
	newState := mut.Value
	return CreateEntityResult{
		New:    &newState,
		Events: []rules.Event{rules.NewEvent(rules.EventEnter, rules.NewEnterArg(m.state, nil, newState, area))},
	}, nil
}

// SwitchActiveOption describes why the active character changes.
type SwitchActiveOption struct {
	Via          *rules.SkillInfo
	Fast         *bool
	FromReaction bool
}

// SwitchActive makes target the active character of who. Switching to the
// current active character does nothing. A switch caused by a skill is
// blocked by an immuneControl entity on the outgoing character.
func (m *Mutator) SwitchActive(who rules.Who, target rules.CharacterState, opt SwitchActiveOption) ([]rules.Event, error) {
	from, err := m.state.Players[who].Active()
	if err != nil {
		return nil, err
	}
	if from.ID == target.ID {
		return nil, nil
	}
	if opt.Via != nil {
		for _, e := range from.Entities {
			if m.state.MustDefinition(e).HasTag(rules.TagImmuneControl) {
				m.logger.Debug("switch active blocked by immune control",
					zap.String("from", from.String()),
					zap.String("to", target.String()),
					zap.String("by", e.String()))
				return nil, nil
			}
		}
	}
	done := m.SubLog("switch active", zap.String("from", from.String()), zap.String("to", target.String()))
	defer done()

	if err := m.Mutate(&rules.SwitchActive{Who: who, CharacterID: target.ID}); err != nil {
		return nil, err
	}
	info := rules.SwitchActiveInfo{
		Who:          who,
		From:         from,
		To:           target,
		Via:          opt.Via,
		FromReaction: opt.FromReaction,
		Fast:         opt.Fast,
	}
	exposed := rules.ExposedMutation{
		Kind:                  rules.ExposedSwitchActive,
		Who:                   who,
		CharacterID:           target.ID,
		CharacterDefinitionID: target.DefinitionID,
		FromAction:            rules.SwitchFromNone,
	}
	switch {
	case opt.FromReaction:
		exposed.Reaction = rules.Overloaded
	case opt.Via != nil && opt.Via.Definition != nil:
		exposed.SkillDefinitionID = opt.Via.Definition.ID
	}
	if opt.Fast != nil {
		exposed.FromAction = rules.SwitchFromSlow
		if *opt.Fast {
			exposed.FromAction = rules.SwitchFromFast
		}
	}
	m.Notify(NotifyOption{Exposed: []rules.ExposedMutation{exposed}})
	if err := m.Mutate(&rules.SetPlayerFlag{Who: who, Flag: rules.FlagCanPlunging, Value: true}); err != nil {
		return nil, err
	}
	return []rules.Event{rules.NewEvent(rules.EventSwitchActive, rules.NewSwitchActiveArg(m.state, info))}, nil
}
