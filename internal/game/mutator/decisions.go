package mutator

import (
	"context"
	"slices"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Both runs one call per side concurrently. The first failure is returned as
// soon as it is observed; the other call is left to finish on its own and its
// result is discarded. fn must not mutate state.
func Both[T any](ctx context.Context, fn func(ctx context.Context, who rules.Who) (T, error)) ([2]T, error) {
	type result struct {
		who   rules.Who
		value T
		err   error
	}
	ch := make(chan result, 2)
	for _, who := range []rules.Who{rules.Player0, rules.Player1} {
		go func(who rules.Who) {
			v, err := fn(ctx, who)
			ch <- result{who: who, value: v, err: err}
		}(who)
	}
	var out [2]T
	for i := 0; i < 2; i++ {
		select {
		case r := <-ch:
			if r.err != nil {
				return out, r.err
			}
			out[r.who] = r.value
		case <-ctx.Done():
			return out, context.Cause(ctx)
		}
	}
	return out, nil
}

// RerollAnswer asks a side which dice to reroll. It only reads state.
func (m *Mutator) RerollAnswer(ctx context.Context, who rules.Who) ([]dice.Type, error) {
	if m.hooks.Reroll == nil {
		return nil, rules.ErrIONotProvided
	}
	return m.hooks.Reroll(ctx, who)
}

// ApplyReroll rerolls the given dice. It reports false when the answer was
// empty, which ends the side's reroll rounds.
func (m *Mutator) ApplyReroll(who rules.Who, answer []dice.Type) (bool, error) {
	if len(answer) == 0 {
		return false, nil
	}
	kept, ok := dice.Remove(m.state.Players[who].Dice, answer)
	if !ok {
		return false, rules.NewIoError(who, "requested to reroll dice %v that do not exist", answer)
	}
	rolled, err := m.RandomDice(len(answer))
	if err != nil {
		return false, err
	}
	value := rules.SortDice(m.state, who, append(kept, rolled...))
	if err := m.Mutate(&rules.ResetDice{Who: who, Value: value, Reason: "roll"}); err != nil {
		return false, err
	}
	m.Notify(NotifyOption{})
	return true, nil
}

// Reroll runs up to times reroll rounds for one side.
func (m *Mutator) Reroll(ctx context.Context, who rules.Who, times int) error {
	for i := 0; i < times; i++ {
		answer, err := m.RerollAnswer(ctx, who)
		if err != nil {
			return err
		}
		more, err := m.ApplyReroll(who, answer)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// SwitchHandsAnswer asks a side which hand cards to put back.
func (m *Mutator) SwitchHandsAnswer(ctx context.Context, who rules.Who) ([]int, error) {
	if m.hooks.SwitchHands == nil {
		return nil, rules.ErrIONotProvided
	}
	return m.hooks.SwitchHands(ctx, who)
}

// ApplySwitchHands puts the given cards back at random pile positions, then
// draws as many, skipping cards of the definitions just put back while other
// cards remain.
func (m *Mutator) ApplySwitchHands(who rules.Who, cardIDs []int) error {
	player := func() *rules.PlayerState { return &m.state.Players[who] }
	swapIn := make([]rules.EntityState, 0, len(cardIDs))
	seen := make(map[int]bool, len(cardIDs))
	for _, id := range cardIDs {
		if seen[id] {
			return rules.NewIoError(who, "switchHands returned card %d twice", id)
		}
		seen[id] = true
		idx := slices.IndexFunc(player().Hands, func(c rules.EntityState) bool { return c.ID == id })
		if idx < 0 {
			return rules.NewIoError(who, "switchHands returned unknown card %d", id)
		}
		swapIn = append(swapIn, player().Hands[idx])
	}
	swapInDefs := make([]int, 0, len(swapIn))
	for _, card := range swapIn {
		swapInDefs = append(swapInDefs, card.DefinitionID)
		v, err := m.StepRandom()
		if err != nil {
			return err
		}
		index := v % (len(player().Pile) + 1)
		if err := m.Mutate(&rules.TransferCard{
			Who: who, From: rules.AreaHands, To: rules.AreaPile,
			ID: card.ID, TargetIndex: &index, Reason: "switch",
		}); err != nil {
			return err
		}
	}
	top := 0
	for range swapIn {
		pile := player().Pile
		for top < len(pile) && slices.Contains(swapInDefs, pile[top].DefinitionID) {
			top++
		}
		candidate := pile[0]
		if top < len(pile) {
			candidate = pile[top]
		}
		if err := m.Mutate(&rules.TransferCard{
			Who: who, From: rules.AreaPile, To: rules.AreaHands,
			ID: candidate.ID, Reason: "switch",
		}); err != nil {
			return err
		}
	}
	m.Notify(NotifyOption{})
	return nil
}

// SwitchHands asks and applies in one go.
func (m *Mutator) SwitchHands(ctx context.Context, who rules.Who) error {
	answer, err := m.SwitchHandsAnswer(ctx, who)
	if err != nil {
		return err
	}
	return m.ApplySwitchHands(who, answer)
}

// SelectCard lets a side pick one definition and applies the selection.
func (m *Mutator) SelectCard(ctx context.Context, who rules.Who, via rules.SkillInfo, info rules.SelectCardInfo) ([]rules.Event, error) {
	if m.hooks.SelectCard == nil {
		return nil, rules.ErrIONotProvided
	}
	selected, err := m.hooks.SelectCard(ctx, who, slices.Clone(info.DefinitionIDs))
	if err != nil {
		return nil, err
	}
	if !slices.Contains(info.DefinitionIDs, selected) {
		return nil, rules.NewIoError(who, "selected card %d is not a candidate", selected)
	}
	m.logger.Debug("card selected", zap.Stringer("who", who), zap.Int("definition_id", selected))
	switch info.Kind {
	case rules.SelectCreateHandCard:
		return m.CreateHandCard(who, selected)
	case rules.SelectCreateSummon:
		def, err := m.definition(selected)
		if err != nil {
			return nil, err
		}
		if def.Type != rules.TypeSummon {
			return nil, rules.NewDataError("entity type %s cannot be selected as summon", def.Type)
		}
		res, err := m.CreateEntity(def, rules.EntityArea{Who: who, Type: rules.AreaSummons}, CreateEntityOptions{})
		if err != nil {
			return nil, err
		}
		return res.Events, nil
	}
	return nil, rules.NewDataError("unknown select card kind %q", info.Kind)
}

// ActiveCandidates lists the living non-active characters of a side.
func (m *Mutator) ActiveCandidates(who rules.Who) []int {
	p := &m.state.Players[who]
	var ids []int
	for _, ch := range p.Characters {
		if ch.Alive() && ch.ID != p.ActiveCharacterID {
			ids = append(ids, ch.ID)
		}
	}
	return ids
}

// ChooseActive asks a side to pick its next active character. It only reads
// state and may run concurrently for both sides.
func (m *Mutator) ChooseActive(ctx context.Context, who rules.Who) (rules.CharacterState, error) {
	if m.hooks.ChooseActive == nil {
		return rules.CharacterState{}, rules.ErrIONotProvided
	}
	return m.chooseFrom(ctx, m.state, who, m.ActiveCandidates(who))
}

func (m *Mutator) chooseFrom(ctx context.Context, st *rules.GameState, who rules.Who, candidates []int) (rules.CharacterState, error) {
	if len(candidates) == 0 {
		return rules.CharacterState{}, rules.NewInternalError("no candidate active character for %s", who)
	}
	id, err := m.hooks.ChooseActive(ctx, who, slices.Clone(candidates))
	if err != nil {
		return rules.CharacterState{}, err
	}
	if !slices.Contains(candidates, id) {
		return rules.CharacterState{}, rules.NewIoError(who, "chosen active %d is not a candidate", id)
	}
	for _, ch := range st.Players[who].Characters {
		if ch.ID == id {
			return ch, nil
		}
	}
	return rules.CharacterState{}, rules.NewInternalError("character %d disappeared", id)
}

// ChooseActiveBoth asks the given sides concurrently. Sides not listed get
// a zero result. Candidates are computed before any hook runs.
func (m *Mutator) ChooseActiveBoth(ctx context.Context, sides [2]bool) ([2]*rules.CharacterState, error) {
	if m.hooks.ChooseActive == nil {
		return [2]*rules.CharacterState{}, rules.ErrIONotProvided
	}
	var candidates [2][]int
	for _, who := range []rules.Who{rules.Player0, rules.Player1} {
		if sides[who] {
			candidates[who] = m.ActiveCandidates(who)
			if len(candidates[who]) == 0 {
				return [2]*rules.CharacterState{}, rules.NewInternalError("no candidate active character for %s", who)
			}
		}
	}
	st := m.state
	return Both(ctx, func(ctx context.Context, who rules.Who) (*rules.CharacterState, error) {
		if !sides[who] {
			return nil, nil
		}
		ch, err := m.chooseFrom(ctx, st, who, candidates[who])
		if err != nil {
			return nil, err
		}
		return &ch, nil
	})
}

// PostChooseActive tells clients which characters were chosen.
func (m *Mutator) PostChooseActive(chosen [2]*rules.CharacterState) {
	for who, ch := range chosen {
		if ch == nil {
			continue
		}
		m.Notify(NotifyOption{Exposed: []rules.ExposedMutation{{
			Kind:                  rules.ExposedChooseActiveDone,
			Who:                   rules.Who(who),
			CharacterID:           ch.ID,
			CharacterDefinitionID: ch.DefinitionID,
		}}})
	}
}
