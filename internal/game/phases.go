package game

import (
	"context"
	"slices"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/effects"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

var bothSides = []rules.Who{rules.Player0, rules.Player1}

func (g *Game) initHands(ctx context.Context) error {
	count := g.m.State().Config.InitialHandsCount
	for _, who := range bothSides {
		events, err := g.m.DrawCards(who, count)
		if err != nil {
			return err
		}
		if err := g.exec.HandleEvents(ctx, events...); err != nil {
			return err
		}
	}
	if err := g.m.NotifyAndPause(ctx, mutator.NotifyOption{CanResume: true}); err != nil {
		return err
	}
	answers, err := mutator.Both(ctx, g.m.SwitchHandsAnswer)
	if err != nil {
		return err
	}
	for _, who := range bothSides {
		if err := g.m.ApplySwitchHands(who, answers[who]); err != nil {
			return err
		}
	}
	return g.m.Mutate(&rules.ChangePhase{NewPhase: rules.PhaseInitActives})
}

func (g *Game) initActives(ctx context.Context) error {
	chosen, err := g.m.ChooseActiveBoth(ctx, [2]bool{true, true})
	if err != nil {
		return err
	}
	g.m.PostChooseActive(chosen)
	for _, who := range bothSides {
		ch := chosen[who]
		if ch == nil {
			return rules.NewInternalError("no active character chosen for %s", who)
		}
		// No previous active, so this bypasses the onSwitchActive event.
		if err := g.m.Mutate(&rules.SwitchActive{Who: who, CharacterID: ch.ID}); err != nil {
			return err
		}
		g.m.Notify(mutator.NotifyOption{Exposed: []rules.ExposedMutation{{
			Kind:                  rules.ExposedSwitchActive,
			Who:                   who,
			CharacterID:           ch.ID,
			CharacterDefinitionID: ch.DefinitionID,
			FromAction:            rules.SwitchFromNone,
		}}})
	}
	if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventBattleBegin, rules.NewGenericArg(g.m.State()))); err != nil {
		return err
	}
	if g.m.State().Finished() {
		return nil
	}
	return g.m.MutateAll(&rules.ChangePhase{NewPhase: rules.PhaseRoll}, &rules.StepRound{})
}

func (g *Game) rollPhase(ctx context.Context) error {
	if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventRoundBegin, rules.NewGenericArg(g.m.State()))); err != nil {
		return err
	}
	if g.m.State().Finished() {
		return nil
	}
	var rerolls [2]int
	for _, who := range bothSides {
		arg := rules.NewModifyRollArg(g.m.State(), who)
		if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventModifyRoll, arg)); err != nil {
			return err
		}
		fixed := arg.FixedDice()
		count := max(0, g.m.State().Config.InitialDiceCount-len(fixed))
		var rolled []dice.Type
		if g.players[who].AlwaysOmni {
			rolled = slices.Repeat([]dice.Type{dice.Omni}, count)
		} else {
			var err error
			if rolled, err = g.m.RandomDice(count); err != nil {
				return err
			}
		}
		value := rules.SortDice(g.m.State(), who, append(slices.Clone(fixed), rolled...))
		if err := g.m.Mutate(&rules.ResetDice{Who: who, Value: value, Reason: "roll"}); err != nil {
			return err
		}
		rerolls[who] = 1 + arg.ExtraRerolls()
	}
	g.m.Notify(mutator.NotifyOption{})
	if err := g.rerollRounds(ctx, rerolls); err != nil {
		return err
	}
	if err := g.m.Mutate(&rules.ChangePhase{NewPhase: rules.PhaseAction}); err != nil {
		return err
	}
	return g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventActionPhase, rules.NewGenericArg(g.m.State())))
}

// rerollRounds asks both sides concurrently, round by round, and applies the
// answers of player0 before player1. A side stops after its first empty
// answer or when its rounds run out.
func (g *Game) rerollRounds(ctx context.Context, remaining [2]int) error {
	for remaining[0] > 0 || remaining[1] > 0 {
		answers, err := mutator.Both(ctx, func(ctx context.Context, who rules.Who) ([]dice.Type, error) {
			if remaining[who] <= 0 {
				return nil, nil
			}
			return g.m.RerollAnswer(ctx, who)
		})
		if err != nil {
			return err
		}
		for _, who := range bothSides {
			if remaining[who] <= 0 {
				continue
			}
			more, err := g.m.ApplyReroll(who, answers[who])
			if err != nil {
				return err
			}
			remaining[who]--
			if !more {
				remaining[who] = 0
			}
		}
	}
	return nil
}

func (g *Game) actionPhase(ctx context.Context) error {
	st := g.m.State()
	who := st.CurrentTurn
	player := st.Players[who]
	if err := g.m.Mutate(&rules.SetPlayerFlag{Who: who, Flag: rules.FlagCanCharged, Value: len(player.Dice)%2 == 0}); err != nil {
		return err
	}
	switch {
	case player.DeclaredEnd:
		if err := g.m.Mutate(&rules.SwitchTurn{}); err != nil {
			return err
		}
	case player.SkipNextTurn:
		if err := g.m.MutateAll(
			&rules.SetPlayerFlag{Who: who, Flag: rules.FlagSkipNextTurn, Value: false},
			&rules.SwitchTurn{},
		); err != nil {
			return err
		}
	default:
		if err := g.takeTurn(ctx, who); err != nil {
			return err
		}
	}
	st = g.m.State()
	if st.Finished() {
		return nil
	}
	if st.Players[rules.Player0].DeclaredEnd && st.Players[rules.Player1].DeclaredEnd {
		return g.m.Mutate(&rules.ChangePhase{NewPhase: rules.PhaseEnd})
	}
	return nil
}

func (g *Game) takeTurn(ctx context.Context, who rules.Who) error {
	if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventBeforeAction, rules.NewPlayerArg(g.m.State(), who))); err != nil {
		return err
	}
	if g.m.State().Finished() {
		return nil
	}
	if replace, ok := rules.FindReplaceAction(g.m.State(), who); ok {
		g.logger.Debug("action replaced", zap.Stringer("who", who), zap.Int("skill_id", replace.Definition.ID))
		if err := g.exec.FinalizeSkill(ctx, *replace, rules.NewGenericArg(g.m.State())); err != nil {
			return err
		}
		if g.m.State().Finished() {
			return nil
		}
		return g.m.Mutate(&rules.SwitchTurn{})
	}

	action, err := g.chooseAction(ctx, who)
	if err != nil {
		return err
	}
	if err := g.performAction(ctx, action); err != nil {
		return err
	}
	if g.m.State().Finished() {
		return nil
	}
	if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventAction, rules.NewActionArg(g.m.State(), action))); err != nil {
		return err
	}
	if g.m.State().Finished() || action.Fast {
		return nil
	}
	return g.m.Mutate(&rules.SwitchTurn{})
}

func (g *Game) endPhase(ctx context.Context) error {
	if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventEndPhase, rules.NewGenericArg(g.m.State()))); err != nil {
		return err
	}
	for _, who := range rules.TurnOrder(g.m.State().CurrentTurn) {
		if g.m.State().Finished() {
			return nil
		}
		events, err := g.m.DrawCards(who, 2)
		if err != nil {
			return err
		}
		if err := g.exec.HandleEvents(ctx, events...); err != nil {
			return err
		}
	}
	if err := g.exec.HandleEvents(ctx, rules.NewEvent(rules.EventRoundEnd, rules.NewGenericArg(g.m.State()))); err != nil {
		return err
	}
	if g.m.State().Finished() {
		return nil
	}
	for _, who := range bothSides {
		if err := g.m.MutateAll(
			&rules.SetPlayerFlag{Who: who, Flag: rules.FlagHasDefeated, Value: false},
			&rules.SetPlayerFlag{Who: who, Flag: rules.FlagCanPlunging, Value: false},
			&rules.SetPlayerFlag{Who: who, Flag: rules.FlagDeclaredEnd, Value: false},
			&rules.ClearRoundSkillLog{Who: who},
		); err != nil {
			return err
		}
	}
	if err := g.resetUsagePerRound(); err != nil {
		return err
	}
	if err := g.m.Mutate(&rules.StepRound{}); err != nil {
		return err
	}
	st := g.m.State()
	if st.RoundNumber >= st.Config.MaxRoundsCount {
		g.logger.Info("round limit reached", zap.Int("round", st.RoundNumber))
		return g.m.MutateAll(&rules.SetWinner{}, &rules.ChangePhase{NewPhase: rules.PhaseGameEnd})
	}
	return g.m.Mutate(&rules.ChangePhase{NewPhase: rules.PhaseRoll})
}

// resetUsagePerRound zeroes the per-round counters kept by skills limited to
// a number of uses each round.
func (g *Game) resetUsagePerRound() error {
	for _, e := range rules.AllEntities(g.m.State()) {
		if used, ok := e.StateVariables()[effects.VarUsagePerRound]; ok && used != 0 {
			if err := g.m.Mutate(&rules.ModifyEntityVar{
				ID:        e.StateID(),
				VarName:   effects.VarUsagePerRound,
				Value:     0,
				Direction: rules.DirectionDecrease,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
