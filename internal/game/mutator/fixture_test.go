package mutator

import (
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap/zaptest"
)

const (
	defCryo          = 1101
	defPyro          = 1102
	defHydro         = 1103
	defBarrier       = 110 // combat status: -1 damage per usage
	defTakeMaxStatus = 111
	defAppendStatus  = 112
	defFrozen        = 113 // disableSkill
	defUnshakable    = 114 // immuneControl
	defSummon        = 120
	defCard          = 130
	defSupport       = 131
	skillBarrier     = 1101001
)

func characterVars(health int) map[string]rules.VarConfig {
	return map[string]rules.VarConfig{
		rules.VarHealth:    {Initial: health},
		rules.VarMaxHealth: {Initial: health},
		rules.VarEnergy:    {Initial: 0},
		rules.VarMaxEnergy: {Initial: 2},
		rules.VarAura:      {Initial: 0},
		rules.VarAlive:     {Initial: 1},
	}
}

func testData(t *testing.T) *rules.GameData {
	t.Helper()
	data := rules.NewGameData()
	defs := []*rules.Definition{
		{ID: defCryo, Type: rules.TypeCharacter, Tags: []string{"cryo"}, VarConfigs: characterVars(10)},
		{ID: defPyro, Type: rules.TypeCharacter, Tags: []string{"pyro"}, VarConfigs: characterVars(10)},
		{ID: defHydro, Type: rules.TypeCharacter, Tags: []string{"hydro"}, VarConfigs: characterVars(10)},
		{
			ID:         defBarrier,
			Type:       rules.TypeCombatStatus,
			VarConfigs: map[string]rules.VarConfig{rules.VarUsage: {Initial: 1}},
			Skills: []*rules.SkillDefinition{{
				ID:        skillBarrier,
				Type:      rules.SkillTriggered,
				TriggerOn: rules.EventModifyDamage0,
				Filter: func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) bool {
					md := arg.(*rules.ModifyDamageArg)
					return md.Value() > 0 && md.Type() != rules.DamagePiercing
				},
				Action: func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) (*rules.GameState, rules.SkillResult, error) {
					arg.(*rules.ModifyDamageArg).DecreaseDamage(1)
					return st, rules.SkillResult{}, nil
				},
			}},
		},
		{
			ID:         defTakeMaxStatus,
			Type:       rules.TypeStatus,
			VarConfigs: map[string]rules.VarConfig{rules.VarUsage: {Initial: 1, Recreate: rules.RecreateBehavior{Kind: rules.RecreateTakeMax}}},
		},
		{
			ID:   defAppendStatus,
			Type: rules.TypeCombatStatus,
			VarConfigs: map[string]rules.VarConfig{
				rules.VarUsage: {Initial: 1, Recreate: rules.RecreateBehavior{Kind: rules.RecreateAppend, AppendValue: 1, AppendLimit: 3}},
			},
		},
		{ID: defFrozen, Type: rules.TypeStatus, Tags: []string{rules.TagDisableSkill}, VarConfigs: map[string]rules.VarConfig{rules.VarDuration: {Initial: 1}}},
		{ID: defUnshakable, Type: rules.TypeStatus, Tags: []string{rules.TagImmuneControl}},
		{ID: defSummon, Type: rules.TypeSummon, VarConfigs: map[string]rules.VarConfig{rules.VarUsage: {Initial: 2}}},
		{ID: defCard, Type: rules.TypeEventCard},
		{ID: defSupport, Type: rules.TypeSupport},
	}
	for _, def := range defs {
		if err := data.Register(def); err != nil {
			t.Fatalf("register %d: %v", def.ID, err)
		}
	}
	return data
}

func testState(t *testing.T, data *rules.GameData, cards int) *rules.GameState {
	t.Helper()
	deck := rules.DeckConfig{Characters: []int{defCryo, defPyro, defHydro}, NoShuffle: true}
	for i := 0; i < cards; i++ {
		if i%2 == 0 {
			deck.Cards = append(deck.Cards, defCard)
		} else {
			deck.Cards = append(deck.Cards, defSupport)
		}
	}
	config := rules.DefaultGameConfig()
	config.RandomSeed = 1234
	st, err := rules.NewInitialState(data, [2]rules.DeckConfig{deck, deck}, config, rules.CurrentVersionBehavior())
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	for w := range st.Players {
		st.Players[w].ActiveCharacterID = st.Players[w].Characters[0].ID
	}
	return st
}

type recorder struct {
	notifications []Notification
	pauses        []Pause
}

func newTestMutator(t *testing.T, st *rules.GameState, hooks Hooks) (*Mutator, *recorder) {
	t.Helper()
	rec := &recorder{}
	if hooks.OnNotify == nil {
		hooks.OnNotify = func(n Notification) { rec.notifications = append(rec.notifications, n) }
	}
	return New(st, hooks, zaptest.NewLogger(t)), rec
}

func skillOf(caller rules.AnyState) rules.SkillInfo {
	return rules.SkillInfo{Caller: caller, Definition: &rules.SkillDefinition{ID: 99}}
}
