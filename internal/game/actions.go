package game

import (
	"context"
	"errors"
	"slices"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/executor"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// AvailableActions lists what the side on turn may do in st, with costs
// after modifyAction listeners and auto-selected dice. st is not changed.
func AvailableActions(ctx context.Context, st *rules.GameState, cfg PlayerConfig, logger *zap.Logger) ([]*rules.ActionInfo, error) {
	_, shown, err := listActions(ctx, st, cfg, logger)
	return shown, err
}

// AvailableActions lists the actions of the side on turn in the latest
// notified state.
func (g *Game) AvailableActions(ctx context.Context) ([]*rules.ActionInfo, error) {
	st := g.State()
	return AvailableActions(ctx, st, g.players[st.CurrentTurn], g.logger)
}

// listActions returns the unmodified actions and the displayed ones, index
// aligned.
func listActions(ctx context.Context, st *rules.GameState, cfg PlayerConfig, logger *zap.Logger) ([]rules.ActionInfo, []*rules.ActionInfo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bases, err := baseActions(st, logger)
	if err != nil {
		return nil, nil, err
	}
	shown := make([]*rules.ActionInfo, len(bases))
	for i := range bases {
		a := bases[i]
		a.Cost = a.Cost.Clone()
		if err := previewAction(ctx, st, &a, cfg, logger); err != nil {
			return nil, nil, err
		}
		shown[i] = &a
	}
	return bases, shown, nil
}

func baseActions(st *rules.GameState, logger *zap.Logger) ([]rules.ActionInfo, error) {
	who := st.CurrentTurn
	player := &st.Players[who]
	active, err := player.Active()
	if err != nil {
		return nil, err
	}
	var result []rules.ActionInfo

	disabled := rules.IsSkillDisabled(st, active)
	for _, cs := range rules.InitiativeSkills(st, who) {
		charged, plunging := rules.ChargedPlunging(cs.Skill, player)
		info := &rules.SkillInfo{Caller: cs.Caller, Definition: cs.Skill, Charged: charged, Plunging: plunging}
		base := rules.ActionInfo{
			Type:  rules.ActionUseSkill,
			Who:   who,
			Skill: info,
			Fast:  cs.Skill.Initiative.Fast,
			Cost:  cs.Skill.Initiative.RequiredCost,
		}
		result = append(result, expandTargets(st, base, disabled, nil)...)
	}

	effectless := hasTaggedCombatStatus(st, who, rules.TagEventEffectless)
	for _, card := range player.Hands {
		def := st.MustDefinition(card)
		sk := def.PlaySkill()
		if sk == nil || sk.Initiative == nil {
			logger.Warn("hand card without play skill", zap.String("card", card.String()))
			continue
		}
		base := rules.ActionInfo{
			Type:             rules.ActionPlayCard,
			Who:              who,
			Skill:            &rules.SkillInfo{Caller: card, Definition: sk, FromCard: &card},
			CardID:           card.ID,
			Fast:             sk.Initiative.Fast,
			Cost:             sk.Initiative.RequiredCost,
			WillBeEffectless: effectless && def.Type == rules.TypeEventCard,
		}
		var targets [][]rules.AnyState
		if def.Type == rules.TypeSupport && len(player.Supports) >= st.Config.MaxSupportsCount {
			// A full supports area: the new support replaces one of the old.
			for _, s := range player.Supports {
				targets = append(targets, []rules.AnyState{s})
			}
		}
		result = append(result, expandTargets(st, base, false, targets)...)
	}

	for _, ch := range player.Characters {
		if !ch.Alive() || ch.ID == active.ID {
			continue
		}
		result = append(result, rules.ActionInfo{
			Type:   rules.ActionSwitchActive,
			Who:    who,
			FromID: active.ID,
			ToID:   ch.ID,
			Cost:   dice.Requirement{dice.Void: 1},
		})
	}

	tuning := rules.ElementOfCharacter(st, active)
	for _, card := range player.Hands {
		a := rules.ActionInfo{
			Type:         rules.ActionElementalTuning,
			Who:          who,
			CardID:       card.ID,
			TuningResult: tuning,
			Fast:         true,
			Cost:         dice.Requirement{dice.Void: 1},
		}
		if st.MustDefinition(card).HasTag(rules.TagNoTuning) {
			a.Validity = rules.ValidityDisabled
		}
		result = append(result, a)
	}

	result = append(result, rules.ActionInfo{
		Type: rules.ActionDeclareEnd,
		Who:  who,
		Cost: dice.Requirement{},
	})
	return result, nil
}

// expandTargets turns one skill action into one entry per target candidate.
// With targets nil the skill's own candidates are used.
func expandTargets(st *rules.GameState, base rules.ActionInfo, disabled bool, targets [][]rules.AnyState) []rules.ActionInfo {
	if disabled {
		base.Validity = rules.ValidityDisabled
		return []rules.ActionInfo{base}
	}
	sk := base.Skill.Definition
	if targets == nil {
		targets = sk.Targets(st, *base.Skill)
	}
	if len(targets) == 0 {
		base.Validity = rules.ValidityNoTarget
		return []rules.ActionInfo{base}
	}
	out := make([]rules.ActionInfo, 0, len(targets))
	for _, t := range targets {
		a := base
		a.Targets = t
		if sk.Accepts(st, *base.Skill, rules.NewInitiativeArg(st, t)) {
			a.Validity = rules.ValidityValid
		} else {
			a.Validity = rules.ValidityConditionNotMet
		}
		out = append(out, a)
	}
	return out
}

func hasTaggedCombatStatus(st *rules.GameState, who rules.Who, tag string) bool {
	for _, e := range st.Players[who].CombatStatuses {
		if st.MustDefinition(e).HasTag(tag) {
			return true
		}
	}
	return false
}

// previewAction runs modifyAction0..3 on a copy of st against a, then
// checks what the side can pay and picks dice for it.
func previewAction(ctx context.Context, st *rules.GameState, a *rules.ActionInfo, cfg PlayerConfig, logger *zap.Logger) error {
	player := &st.Players[a.Who]
	if a.Validity == rules.ValidityValid {
		arg := rules.NewModifyActionArg(st, a)
		for _, name := range rules.ModifyActionEvents {
			if _, err := executor.PreviewEvent(ctx, st, rules.NewEvent(name, arg), logger); err != nil {
				return err
			}
		}
		active, err := player.Active()
		if err != nil {
			return err
		}
		switch {
		case !canPay(a, player.Dice, cfg):
			a.Validity = rules.ValidityNoDice
		case a.Cost.EnergyCount() > active.Energy():
			a.Validity = rules.ValidityNoEnergy
		}
	}
	a.AutoSelectedDice = autoSelectDice(a, player.Dice, cfg)
	if a.Validity == rules.ValidityValid && a.Skill != nil && !a.WillBeEffectless {
		next, err := executor.Preview(ctx, st, *a.Skill, rules.NewInitiativeArg(st, a.Targets), logger)
		switch {
		case err == nil:
			a.PreviewState = next
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			logger.Debug("action preview failed", zap.Stringer("action", a), zap.Error(err))
		}
	}
	return nil
}

func canPay(a *rules.ActionInfo, pool []dice.Type, cfg PlayerConfig) bool {
	if a.Type == rules.ActionElementalTuning {
		return len(tuningCandidates(a, pool, cfg)) > 0
	}
	return dice.CanPay(a.Cost, pool)
}

func autoSelectDice(a *rules.ActionInfo, pool []dice.Type, cfg PlayerConfig) []dice.Type {
	if a.Type == rules.ActionElementalTuning {
		candidates := tuningCandidates(a, pool, cfg)
		if len(candidates) == 0 {
			return nil
		}
		return candidates[len(candidates)-1:]
	}
	return dice.ChooseValues(a.Cost, pool)
}

// tuningCandidates lists the dice that may be converted. Omni dice and dice
// already of the target element are excluded unless the side allows any.
func tuningCandidates(a *rules.ActionInfo, pool []dice.Type, cfg PlayerConfig) []dice.Type {
	if cfg.AllowTuningAnyDice {
		return slices.Clone(pool)
	}
	var out []dice.Type
	for _, d := range pool {
		if d != dice.Omni && d != a.TuningResult {
			out = append(out, d)
		}
	}
	return out
}

// chooseAction asks the side on turn for an action and pays for it. The
// returned action carries the cost and speed after modifyAction listeners.
func (g *Game) chooseAction(ctx context.Context, who rules.Who) (*rules.ActionInfo, error) {
	bases, shown, err := listActions(ctx, g.m.State(), g.players[who], g.logger)
	if err != nil {
		return nil, err
	}
	views := make([]ActionView, len(shown))
	for i, a := range shown {
		views[i] = ExposeAction(a)
	}
	resp, err := g.rpc(ctx, who, Request{Method: MethodAction, Actions: views})
	if err != nil {
		return nil, err
	}
	idx := resp.ChosenActionIndex
	if shown[idx].Validity != rules.ValidityValid {
		return nil, rules.NewIoError(who, "chosen action %d is not valid: %s", idx, shown[idx].Validity)
	}
	action := bases[idx]
	action.Cost = action.Cost.Clone()
	arg := rules.NewModifyActionArg(g.m.State(), &action)
	for _, name := range rules.ModifyActionEvents {
		if err := g.exec.HandleEvents(ctx, rules.NewEvent(name, arg)); err != nil {
			return nil, err
		}
	}
	if err := g.pay(who, &action, resp.UsedDice); err != nil {
		return nil, err
	}
	g.logger.Debug("action chosen", zap.Stringer("who", who), zap.Stringer("action", &action))
	return &action, nil
}

func (g *Game) pay(who rules.Who, action *rules.ActionInfo, used []dice.Type) error {
	if !dice.Check(action.Cost, used) {
		return rules.NewIoError(who, "selected dice %v do not meet requirement %s", used, action.Cost)
	}
	if action.Type == rules.ActionElementalTuning && !g.players[who].AllowTuningAnyDice {
		if used[0] == dice.Omni || used[0] == action.TuningResult {
			return rules.NewIoError(who, "die %s cannot be tuned to %s", used[0], action.TuningResult)
		}
	}
	player := &g.m.State().Players[who]
	if len(used) > 0 {
		remaining, ok := dice.Remove(player.Dice, used)
		if !ok {
			return rules.NewIoError(who, "selected dice %v are not owned", used)
		}
		if err := g.m.Mutate(&rules.ResetDice{Who: who, Value: remaining, Reason: "consume"}); err != nil {
			return err
		}
	}
	energy := action.Cost.EnergyCount()
	if energy == 0 {
		return nil
	}
	active, err := g.m.State().Players[who].Active()
	if err != nil {
		return err
	}
	if active.Energy() < energy {
		return rules.NewIoError(who, "%s has %d energy, %d required", active, active.Energy(), energy)
	}
	return g.m.Mutate(&rules.ModifyEntityVar{
		ID:        active.ID,
		VarName:   rules.VarEnergy,
		Value:     active.Energy() - energy,
		Direction: rules.DirectionDecrease,
	})
}

// performAction applies a paid action and raises its events.
func (g *Game) performAction(ctx context.Context, action *rules.ActionInfo) error {
	who := action.Who
	g.m.Notify(mutator.NotifyOption{Exposed: []rules.ExposedMutation{actionDone(action)}})

	switch action.Type {
	case rules.ActionUseSkill:
		skill := *action.Skill
		if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventBeforeUseSkill, rules.NewUseSkillArg(g.m.State(), who, skill))); err != nil {
			return err
		}
		if g.m.State().Finished() {
			return nil
		}
		if err := g.exec.FinalizeSkill(ctx, skill, rules.NewInitiativeArg(g.m.State(), action.Targets)); err != nil {
			return err
		}
		return g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventUseSkill, rules.NewUseSkillArg(g.m.State(), who, skill)))

	case rules.ActionPlayCard:
		return g.playCard(ctx, action)

	case rules.ActionSwitchActive:
		target, err := rules.CharacterByID(g.m.State(), action.ToID)
		if err != nil {
			return err
		}
		fast := action.Fast
		events, err := g.m.SwitchActive(who, target, mutator.SwitchActiveOption{Fast: &fast})
		if err != nil {
			return err
		}
		return g.exec.HandleEvents(ctx, events...)

	case rules.ActionElementalTuning:
		return g.elementalTuning(ctx, action)

	case rules.ActionDeclareEnd:
		return g.m.Mutate(&rules.SetPlayerFlag{Who: who, Flag: rules.FlagDeclaredEnd, Value: true})
	}
	return rules.NewInternalError("unknown action type %q", action.Type)
}

func actionDone(a *rules.ActionInfo) rules.ExposedMutation {
	rec := rules.ExposedMutation{Kind: rules.ExposedActionDone, Who: a.Who, ActionType: a.Type}
	switch a.Type {
	case rules.ActionUseSkill:
		rec.SkillDefinitionID = a.Skill.Definition.ID
		rec.CharacterID = a.Skill.Caller.StateID()
	case rules.ActionPlayCard:
		rec.SourceID = a.CardID
		rec.SourceDefinitionID = a.Skill.Caller.StateDefinitionID()
	case rules.ActionSwitchActive:
		rec.CharacterID = a.ToID
	case rules.ActionElementalTuning:
		rec.SourceID = a.CardID
	}
	return rec
}

// playCard removes the card from hand before its play skill runs. An event
// card played under an eventEffectless combat status is spent without
// effect.
func (g *Game) playCard(ctx context.Context, action *rules.ActionInfo) error {
	who := action.Who
	st := g.m.State()
	card, err := rules.EntityByID(st, action.CardID)
	if err != nil {
		return err
	}
	entity, ok := card.(rules.EntityState)
	if !ok {
		return rules.NewInternalError("card %d is not an entity", action.CardID)
	}
	def := st.MustDefinition(entity)
	if def.HasTag(rules.TagLegend) {
		if err := g.m.Mutate(&rules.SetPlayerFlag{Who: who, Flag: rules.FlagLegendUsed, Value: true}); err != nil {
			return err
		}
	}
	if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventBeforePlayCard, rules.NewPlayCardArg(g.m.State(), action, entity))); err != nil {
		return err
	}
	if g.m.State().Finished() {
		return nil
	}
	effectless := def.Type == rules.TypeEventCard && hasTaggedCombatStatus(g.m.State(), who, rules.TagEventEffectless)
	reason := "play"
	if effectless {
		reason = "playNoEffect"
	}
	if err := g.m.Mutate(&rules.RemoveCard{Who: who, Where: rules.AreaHands, ID: entity.ID, Reason: reason}); err != nil {
		return err
	}
	if !effectless {
		if err := g.exec.FinalizeSkill(ctx, *action.Skill, rules.NewInitiativeArg(g.m.State(), action.Targets)); err != nil {
			return err
		}
	}
	return g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventPlayCard, rules.NewPlayCardArg(g.m.State(), action, entity)))
}

func (g *Game) elementalTuning(ctx context.Context, action *rules.ActionInfo) error {
	who := action.Who
	st := g.m.State()
	card, err := rules.EntityByID(st, action.CardID)
	if err != nil {
		return err
	}
	entity, ok := card.(rules.EntityState)
	if !ok {
		return rules.NewInternalError("card %d is not an entity", action.CardID)
	}
	arg := rules.NewDisposeArg(st, entity, "elementalTuning", rules.EntityArea{Who: who, Type: rules.AreaHands})
	if err := g.m.Mutate(&rules.RemoveCard{Who: who, Where: rules.AreaHands, ID: entity.ID, Reason: "elementalTuning"}); err != nil {
		return err
	}
	st = g.m.State()
	value := rules.SortDice(st, who, append(slices.Clone(st.Players[who].Dice), action.TuningResult))
	if err := g.m.Mutate(&rules.ResetDice{Who: who, Value: value, Reason: "elementalTuning"}); err != nil {
		return err
	}
	return g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventDispose, arg))
}
