package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/effects"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap/zaptest"
)

const (
	defFighter = 1
	defHealer  = 2
	defArcher  = 3

	skillStrike    = 101
	skillBigHit    = 102
	skillMutualKO  = 103
	skillCallOther = 104
	skillProbe     = 105
	skillRerollHit = 106
	skillHitAndAdd = 107

	defImmune      = 200
	defWatcher     = 201
	defSelfDispose = 202
	defGreedy      = 203
	defMinion      = 204
)

type fixture struct {
	data *rules.GameData
	log  []string
}

func (f *fixture) record(format string, args ...any) {
	f.log = append(f.log, fmt.Sprintf(format, args...))
}

func hitOpponent(value int, typ rules.DamageType) effects.ActionFunc {
	return func(c *effects.Context, arg rules.EventArg) error {
		opp, err := c.OppActive()
		if err != nil {
			return err
		}
		return c.Damage(typ, value, opp.ID)
	}
}

func characterDef(id int, skills ...*rules.SkillDefinition) *rules.Definition {
	return &rules.Definition{
		ID:   id,
		Type: rules.TypeCharacter,
		Tags: []string{"pyro"},
		VarConfigs: map[string]rules.VarConfig{
			rules.VarHealth:    {Initial: 10},
			rules.VarMaxHealth: {Initial: 10},
			rules.VarEnergy:    {Initial: 0},
			rules.VarMaxEnergy: {Initial: 2},
			rules.VarAura:      {Initial: 0},
			rules.VarAlive:     {Initial: 1},
		},
		Skills: skills,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{data: rules.NewGameData()}

	fighterSkills := []*rules.SkillDefinition{
		effects.NewInitiativeSkill(skillStrike, rules.SkillNormal).Do(hitOpponent(3, rules.DamagePhysical)).Build(),
		effects.NewInitiativeSkill(skillBigHit, rules.SkillNormal).Do(hitOpponent(5, rules.DamagePhysical)).Build(),
		effects.NewInitiativeSkill(skillMutualKO, rules.SkillBurst).Do(func(c *effects.Context, arg rules.EventArg) error {
			opp, err := c.OppActive()
			if err != nil {
				return err
			}
			me, err := c.MyActive()
			if err != nil {
				return err
			}
			if err := c.Damage(rules.DamagePiercing, 10, opp.ID); err != nil {
				return err
			}
			return c.Damage(rules.DamagePiercing, 10, me.ID)
		}).Build(),
		effects.NewInitiativeSkill(skillCallOther, rules.SkillElemental).Do(func(c *effects.Context, arg rules.EventArg) error {
			return c.RequestUseSkill(skillProbe)
		}).Build(),
		effects.NewInitiativeSkill(skillProbe, rules.SkillNormal).Prepared().Do(func(c *effects.Context, arg rules.EventArg) error {
			f.record("probe charged=%v", c.Info().Charged)
			return hitOpponent(3, rules.DamagePhysical)(c, arg)
		}).Build(),
		effects.NewInitiativeSkill(skillRerollHit, rules.SkillNormal).Do(func(c *effects.Context, arg rules.EventArg) error {
			if err := hitOpponent(1, rules.DamagePhysical)(c, arg); err != nil {
				return err
			}
			c.RequestReroll(c.Who(), 1)
			return nil
		}).Build(),
		effects.NewInitiativeSkill(skillHitAndAdd, rules.SkillNormal).Do(func(c *effects.Context, arg rules.EventArg) error {
			if err := hitOpponent(1, rules.DamagePhysical)(c, arg); err != nil {
				return err
			}
			_, err := c.Summon(defMinion)
			return err
		}).Build(),
	}

	defs := []*rules.Definition{
		characterDef(defFighter, fighterSkills...),
		characterDef(defHealer),
		characterDef(defArcher),
		{
			ID:   defImmune,
			Type: rules.TypeStatus,
			Skills: []*rules.SkillDefinition{
				effects.NewSkill(2001, rules.EventModifyZeroHealth).
					If(func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) bool {
						area, err := rules.AreaOf(st, info.Caller.StateID())
						return err == nil && arg.(*rules.ZeroHealthArg).Info.Target.ID == area.CharacterID
					}).
					Do(func(c *effects.Context, arg rules.EventArg) error {
						arg.(*rules.ZeroHealthArg).Immune(c.Info(), 1)
						return c.Dispose(c.Info().Caller.StateID(), "immune")
					}).Build(),
			},
		},
		{
			ID:   defWatcher,
			Type: rules.TypeCombatStatus,
			Skills: []*rules.SkillDefinition{
				effects.NewSkill(2011, rules.EventDamageOrHeal).Do(func(c *effects.Context, arg rules.EventArg) error {
					d := arg.(*rules.DamageOrHealArg)
					if d.ImmuneInfo() != nil {
						f.record("damage %d immune", d.Info.Value)
						return nil
					}
					f.record("damage %d", d.Info.Value)
					return nil
				}).Build(),
				effects.NewSkill(2012, rules.EventEnter).Do(func(c *effects.Context, arg rules.EventArg) error {
					f.record("enter")
					return nil
				}).Build(),
				effects.NewSkill(2013, rules.EventSwitchActive).Do(func(c *effects.Context, arg rules.EventArg) error {
					f.record("switch %s", arg.(*rules.SwitchActiveArg).Info.Who)
					return nil
				}).Build(),
			},
		},
		{
			ID:   defSelfDispose,
			Type: rules.TypeCombatStatus,
			Skills: []*rules.SkillDefinition{
				effects.NewSkill(2021, rules.EventRoundEnd).Do(func(c *effects.Context, arg rules.EventArg) error {
					return c.Dispose(c.Info().Caller.StateID(), "expired")
				}).Build(),
				effects.NewSkill(2022, rules.EventDispose).Do(func(c *effects.Context, arg rules.EventArg) error {
					f.record("disposed caller=%d", c.Info().Caller.StateID())
					return nil
				}).Build(),
			},
		},
		{
			ID:   defGreedy,
			Type: rules.TypeSummon,
			Skills: []*rules.SkillDefinition{
				effects.NewSkill(2031, rules.EventRoundEnd).Do(func(c *effects.Context, arg rules.EventArg) error {
					self := c.Info().Caller.StateID()
					f.record("greedy %d", self)
					for _, s := range c.State().Players[c.Who()].Summons {
						if s.ID != self {
							if err := c.Dispose(s.ID, "eaten"); err != nil {
								return err
							}
						}
					}
					return nil
				}).Build(),
			},
		},
		{ID: defMinion, Type: rules.TypeSummon, VarConfigs: map[string]rules.VarConfig{rules.VarUsage: {Initial: 1}}},
	}
	for _, def := range defs {
		if err := f.data.Register(def); err != nil {
			t.Fatalf("register %d: %v", def.ID, err)
		}
	}
	return f
}

func (f *fixture) state(t *testing.T) *rules.GameState {
	t.Helper()
	deck := rules.DeckConfig{Characters: []int{defFighter, defHealer, defArcher}}
	config := rules.DefaultGameConfig()
	config.RandomSeed = 99
	st, err := rules.NewInitialState(f.data, [2]rules.DeckConfig{deck, deck}, config, rules.CurrentVersionBehavior())
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	st.Phase = rules.PhaseAction
	for w := range st.Players {
		st.Players[w].ActiveCharacterID = st.Players[w].Characters[0].ID
	}
	return st
}

// setCharacter rewrites variables of a character in place on a fresh state.
func setCharacter(st *rules.GameState, who rules.Who, idx int, vars map[string]int) {
	ch := st.Players[who].Characters[idx]
	for k, v := range vars {
		ch = ch.With(k, v)
	}
	st.Players[who].Characters[idx] = ch
}

func newExecutor(t *testing.T, st *rules.GameState, hooks mutator.Hooks) *Executor {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return New(mutator.New(st, hooks, logger), logger)
}

func useSkill(t *testing.T, e *Executor, who rules.Who, skillID int) error {
	t.Helper()
	st := e.Mutator().State()
	caller, err := st.Players[who].Active()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	def, err := st.Data.Skill(skillID)
	if err != nil {
		t.Fatalf("skill: %v", err)
	}
	return e.FinalizeSkill(t.Context(), rules.SkillInfo{Caller: caller, Definition: def}, rules.NewInitiativeArg(st, nil))
}

func noChoice(t *testing.T) func(ctx context.Context, who rules.Who, candidates []int) (int, error) {
	return func(ctx context.Context, who rules.Who, candidates []int) (int, error) {
		t.Errorf("unexpected choose active for %s", who)
		return 0, errors.New("unexpected")
	}
}
