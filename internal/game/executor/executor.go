// Package executor runs skills and resolves the events they emit, depth
// first and in emission order, including the defeat and active character
// replacement that follow damage.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Executor drives skills on top of a mutator.
type Executor struct {
	m       *mutator.Mutator
	logger  *zap.Logger
	preview bool
}

// New creates an executor bound to a mutator.
func New(m *mutator.Mutator, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = m.Logger()
	}
	return &Executor{m: m, logger: logger}
}

// Mutator returns the underlying mutator.
func (e *Executor) Mutator() *mutator.Mutator {
	return e.m
}

// ExecuteSkill runs one skill with full resolution.
func (e *Executor) ExecuteSkill(ctx context.Context, info rules.SkillInfo, arg rules.EventArg) error {
	return e.FinalizeSkill(ctx, info, arg)
}

// FinalizeSkill runs a skill action, commits its snapshot and resolves what
// it emitted: defeats and immunity, energy gain, non-damage events, then
// non-fatal and fatal damage events, then active character replacement.
func (e *Executor) FinalizeSkill(ctx context.Context, info rules.SkillInfo, arg rules.EventArg) error {
	st := e.m.State()
	if st.Finished() {
		return nil
	}
	if info.Definition == nil {
		return rules.NewInternalError("finalize skill without definition")
	}
	done := e.m.SubLog("using skill",
		zap.Int("skill_id", info.Definition.ID),
		zap.String("caller", rules.Stringify(info.Caller)),
		zap.Bool("charged", info.Charged),
		zap.Bool("plunging", info.Plunging))
	defer done()

	callerWho := st.CurrentTurn
	if area, err := rules.AreaOf(st, info.Caller.StateID()); err == nil {
		callerWho = area.Who
	}
	originalDefinitionID := info.Caller.StateDefinitionID()
	info.IsPreview = info.IsPreview || e.preview

	e.m.Notify(mutator.NotifyOption{})
	next, result, err := info.Definition.Action(st, info, arg)
	if err != nil {
		return fmt.Errorf("skill %d: %w", info.Definition.ID, err)
	}
	if next == nil {
		return rules.NewInternalError("skill %d returned no state", info.Definition.ID)
	}
	var exposed []rules.ExposedMutation
	if info.FromCard == nil {
		exposed = append(exposed, rules.ExposedMutation{
			Kind:               rules.ExposedTriggered,
			Who:                callerWho,
			SourceID:           info.Caller.StateID(),
			SourceDefinitionID: originalDefinitionID,
		})
		if info.Definition.IsInitiative() {
			exposed = append(exposed, rules.ExposedMutation{
				Kind:              rules.ExposedSkillUsed,
				Who:               callerWho,
				SourceID:          info.Caller.StateID(),
				SkillDefinitionID: info.Definition.ID,
			})
		}
	}
	e.m.ResetState(next, result.Mutations, append(exposed, result.Exposed...))

	if info.Definition.IsInitiative() && info.Caller.IsCharacter() && info.Definition.Type.IsCharacterSkill(true) {
		if err := e.m.Mutate(&rules.PushRoundSkillLog{
			Who:                   callerWho,
			CharacterDefinitionID: originalDefinitionID,
			SkillID:               info.Definition.ID,
		}); err != nil {
			return err
		}
	}

	var damages []*rules.DamageOrHealArg
	var others []rules.Event
	for _, ev := range result.Events {
		if ev.Name != rules.EventDamageOrHeal {
			others = append(others, ev)
			continue
		}
		d, ok := ev.Arg.(*rules.DamageOrHealArg)
		if !ok {
			return rules.NewInternalError("onDamageOrHeal with %T", ev.Arg)
		}
		damages = append(damages, d)
	}

	var safe, critical []rules.Event
	var immune []*rules.ZeroHealthArg
	defeated := false
	for _, d := range damages {
		if !d.Info.CauseDefeated {
			safe = append(safe, rules.NewEvent(rules.EventDamageOrHeal, d))
			continue
		}
		zero := rules.NewZeroHealthArg(e.m.State(), d.Info)
		critical = append(critical, rules.NewEvent(rules.EventDamageOrHeal, d.WithZeroHealth(zero)))
		if rules.CheckImmune(e.m.State(), zero) {
			immune = append(immune, zero)
			continue
		}
		marked, err := e.markDefeated(d.Info.Target.ID)
		if err != nil {
			return err
		}
		defeated = defeated || marked
	}
	if defeated {
		ended, err := e.checkWinner()
		if err != nil || ended {
			return err
		}
	}
	if len(critical) > 0 {
		e.m.Notify(mutator.NotifyOption{})
	}

	for _, zero := range immune {
		if err := e.HandleEvents(ctx, rules.NewEvent(rules.EventModifyZeroHealth, zero)); err != nil {
			return err
		}
		im := zero.ImmuneInfo()
		if im == nil {
			continue
		}
		target, err := rules.CharacterByID(e.m.State(), zero.Info.Target.ID)
		if err != nil {
			return err
		}
		e.logger.Debug("immune to defeat", zap.String("target", target.String()), zap.Int("new_health", im.NewHealth))
		events, err := e.m.Heal(im.NewHealth, target, mutator.HealOption{Via: im.Skill, Kind: rules.HealImmuneDefeated})
		if err != nil {
			return err
		}
		if err := e.HandleEvents(ctx, events...); err != nil {
			return err
		}
	}

	if info.Definition.GainEnergy && info.Caller.IsCharacter() {
		if err := e.gainEnergy(info.Caller.StateID()); err != nil {
			return err
		}
	}

	if err := e.HandleEvents(ctx, others...); err != nil {
		return err
	}
	if err := e.HandleEvents(ctx, safe...); err != nil {
		return err
	}
	if err := e.HandleEvents(ctx, critical...); err != nil {
		return err
	}
	return e.replaceDefeatedActives(ctx)
}

// markDefeated flags a character as defeated. It reports false when the
// character was already dead.
func (e *Executor) markDefeated(id int) (bool, error) {
	ch, err := rules.CharacterByID(e.m.State(), id)
	if err != nil {
		return false, err
	}
	if !ch.Alive() {
		return false, nil
	}
	area, err := rules.AreaOf(e.m.State(), id)
	if err != nil {
		return false, err
	}
	e.logger.Debug("character defeated", zap.String("character", ch.String()))
	return true, e.m.MutateAll(
		&rules.ModifyEntityVar{ID: id, VarName: rules.VarAlive, Value: 0, Direction: rules.DirectionDecrease},
		&rules.ModifyEntityVar{ID: id, VarName: rules.VarEnergy, Value: 0, Direction: rules.DirectionDecrease},
		&rules.ModifyEntityVar{ID: id, VarName: rules.VarAura, Value: int(rules.AuraNone)},
		&rules.SetPlayerFlag{Who: area.Who, Flag: rules.FlagHasDefeated, Value: true},
	)
}

// checkWinner ends the match when a side has no living character. Both
// sides wiped out in the same skill is a draw.
func (e *Executor) checkWinner() (bool, error) {
	st := e.m.State()
	lost0 := st.Players[rules.Player0].AliveCharacters() == 0
	lost1 := st.Players[rules.Player1].AliveCharacters() == 0
	if !lost0 && !lost1 {
		return false, nil
	}
	var winner *rules.Who
	switch {
	case lost0 && lost1:
	case lost0:
		w := rules.Player1
		winner = &w
	default:
		w := rules.Player0
		winner = &w
	}
	e.logger.Info("game decided by defeat", zap.Bool("draw", winner == nil))
	if err := e.m.MutateAll(
		&rules.SetWinner{Winner: winner},
		&rules.ChangePhase{NewPhase: rules.PhaseGameEnd},
	); err != nil {
		return true, err
	}
	e.m.Notify(mutator.NotifyOption{})
	return true, nil
}

func (e *Executor) gainEnergy(id int) error {
	ch, err := rules.CharacterByID(e.m.State(), id)
	if err != nil || !ch.Alive() {
		return nil
	}
	energy := min(ch.Energy()+1, ch.Var(rules.VarMaxEnergy))
	if energy == ch.Energy() {
		return nil
	}
	if err := e.m.Mutate(&rules.ModifyEntityVar{ID: id, VarName: rules.VarEnergy, Value: energy, Direction: rules.DirectionIncrease}); err != nil {
		return err
	}
	e.m.Notify(mutator.NotifyOption{})
	return nil
}

// replaceDefeatedActives asks every side whose active character is dead
// for a replacement. Both sides answer concurrently; switches are applied
// side 0 then side 1 and onSwitchActive is raised current turn first.
func (e *Executor) replaceDefeatedActives(ctx context.Context) error {
	st := e.m.State()
	if st.Finished() {
		return nil
	}
	var sides [2]bool
	var from [2]rules.CharacterState
	pending := false
	for _, who := range []rules.Who{rules.Player0, rules.Player1} {
		active, err := st.Players[who].Active()
		if err != nil || active.Alive() {
			continue
		}
		e.logger.Debug("active character defeated, waiting for choice", zap.Stringer("who", who))
		sides[who], from[who], pending = true, active, true
	}
	if !pending {
		return nil
	}
	chosen, err := e.m.ChooseActiveBoth(ctx, sides)
	if err != nil {
		return err
	}
	var args [2]*rules.SwitchActiveArg
	for _, who := range []rules.Who{rules.Player0, rules.Player1} {
		to := chosen[who]
		if to == nil {
			continue
		}
		done := e.m.SubLog("switch active after defeat", zap.Stringer("who", who), zap.String("to", to.String()))
		if err := e.m.Mutate(&rules.SwitchActive{Who: who, CharacterID: to.ID}); err != nil {
			done()
			return err
		}
		done()
		args[who] = rules.NewSwitchActiveArg(e.m.State(), rules.SwitchActiveInfo{Who: who, From: from[who], To: *to})
	}
	e.m.PostChooseActive(chosen)
	for _, who := range rules.TurnOrder(e.m.State().CurrentTurn) {
		if args[who] == nil {
			continue
		}
		if err := e.HandleEvents(ctx, rules.NewEvent(rules.EventSwitchActive, args[who])); err != nil {
			return err
		}
	}
	return nil
}

// HandleEvents resolves events in order. Requests are served by the
// mutator's decision primitives; other events run every listening skill.
func (e *Executor) HandleEvents(ctx context.Context, events ...rules.Event) error {
	for _, ev := range events {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		if e.m.State().Finished() {
			return nil
		}
		if err := e.handleEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) handleEvent(ctx context.Context, ev rules.Event) error {
	switch ev.Name {
	case rules.RequestReroll:
		arg, ok := ev.Arg.(*rules.RerollRequest)
		if !ok {
			return badArg(ev)
		}
		done := e.m.SubLog("request reroll", zap.Stringer("who", arg.Who), zap.Int("times", arg.Times))
		defer done()
		return e.m.Reroll(ctx, arg.Who, arg.Times)

	case rules.RequestSwitchHands:
		arg, ok := ev.Arg.(*rules.SwitchHandsRequest)
		if !ok {
			return badArg(ev)
		}
		done := e.m.SubLog("request switch hands", zap.Stringer("who", arg.Who))
		defer done()
		return e.m.SwitchHands(ctx, arg.Who)

	case rules.RequestSelectCard:
		arg, ok := ev.Arg.(*rules.SelectCardRequest)
		if !ok {
			return badArg(ev)
		}
		done := e.m.SubLog("request select card", zap.Stringer("who", arg.Who))
		defer done()
		emitted, err := e.m.SelectCard(ctx, arg.Who, arg.Via, arg.Info)
		if err != nil {
			return err
		}
		return e.HandleEvents(ctx, emitted...)

	case rules.RequestUseSkill:
		arg, ok := ev.Arg.(*rules.UseSkillRequest)
		if !ok {
			return badArg(ev)
		}
		done := e.m.SubLog("another skill requested", zap.Int("skill_id", arg.SkillID))
		defer done()
		def, err := e.m.State().Data.Skill(arg.SkillID)
		if err != nil {
			return fmt.Errorf("requested by %s: %w", rules.Stringify(arg.Caller), err)
		}
		charged, plunging := rules.ChargedPlunging(def, &e.m.State().Players[arg.Who])
		return e.FinalizeSkill(ctx, rules.SkillInfo{
			Caller:     arg.Caller,
			Definition: def,
			RequestBy:  arg.Via,
			Charged:    charged,
			Plunging:   plunging,
		}, rules.NewGenericArg(e.m.State()))

	case rules.RequestTriggerEndPhaseSkill:
		arg, ok := ev.Arg.(*rules.TriggerEndPhaseSkillRequest)
		if !ok {
			return badArg(ev)
		}
		done := e.m.SubLog("trigger end phase skill", zap.String("entity", arg.Entity.String()))
		defer done()
		for _, sk := range e.m.State().MustDefinition(arg.Entity).Skills {
			if sk.TriggerOn != rules.EventEndPhase {
				continue
			}
			if err := e.FinalizeSkill(ctx, rules.SkillInfo{Caller: arg.Entity, Definition: sk}, rules.NewGenericArg(e.m.State())); err != nil {
				return err
			}
		}
		return nil
	}
	return e.broadcast(ctx, ev)
}

// broadcast runs every skill listening to a plain event. Listeners and
// filters are evaluated on the snapshot the event was raised on; entities
// gone since then are skipped, except the entity an onDispose is about,
// which reacts with its owner's active character as caller.
func (e *Executor) broadcast(ctx context.Context, ev rules.Event) error {
	if ev.Arg == nil {
		return badArg(ev)
	}
	onTime := ev.Arg.State()
	done := e.m.SubLog("handling event", zap.String("event", string(ev.Name)), zap.String("arg", ev.Arg.String()))
	defer done()

	var disposed *rules.DisposeArg
	if ev.Name == rules.EventDispose {
		disposed, _ = ev.Arg.(*rules.DisposeArg)
	}
	for _, cs := range rules.AllSkills(onTime, ev.Name) {
		info := rules.SkillInfo{Caller: cs.Caller, Definition: cs.Skill, IsPreview: e.preview}
		if !cs.Skill.Accepts(onTime, info, ev.Arg) {
			continue
		}
		current := e.m.State()
		if disposed != nil && disposed.Entity.ID == cs.Caller.StateID() {
			active, err := rules.ActiveCharacter(current, disposed.From.Who)
			if err != nil {
				return err
			}
			info.Caller = active
		} else if !rules.Exists(current, cs.Caller.StateID()) {
			continue
		}
		if err := e.FinalizeSkill(ctx, info, ev.Arg); err != nil {
			return err
		}
	}
	return nil
}

func badArg(ev rules.Event) error {
	return rules.NewInternalError("event %s with unexpected arg %T", ev.Name, ev.Arg)
}

// Preview runs a skill on a copy of st without any player interaction and
// returns the resulting snapshot. Resolution stops silently where a player
// decision would be needed.
func Preview(ctx context.Context, st *rules.GameState, info rules.SkillInfo, arg rules.EventArg, logger *zap.Logger) (*rules.GameState, error) {
	e := newPreview(st, logger)
	info.IsPreview = true
	if err := e.FinalizeSkill(ctx, info, arg); err != nil && !errors.Is(err, rules.ErrPreviewAborted) {
		return nil, err
	}
	return e.m.State(), nil
}

// PreviewEvent is Preview for a single event.
func PreviewEvent(ctx context.Context, st *rules.GameState, ev rules.Event, logger *zap.Logger) (*rules.GameState, error) {
	e := newPreview(st, logger)
	if err := e.HandleEvents(ctx, ev); err != nil && !errors.Is(err, rules.ErrPreviewAborted) {
		return nil, err
	}
	return e.m.State(), nil
}

func newPreview(st *rules.GameState, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := New(mutator.New(st, mutator.Hooks{}, logger.Named("preview")), nil)
	e.preview = true
	return e
}
