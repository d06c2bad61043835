package effects

import (
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/rules"
)

const (
	defKeqing   = 1401
	defGanyu    = 1001
	defShield   = 201
	defCounter  = 202
	defOz       = 301
	defCard     = 401
	skillStrike = 14011
)

func characterDef(id int, element string) *rules.Definition {
	return &rules.Definition{
		ID:   id,
		Type: rules.TypeCharacter,
		Tags: []string{element},
		VarConfigs: map[string]rules.VarConfig{
			rules.VarHealth:    {Initial: 10},
			rules.VarMaxHealth: {Initial: 10},
			rules.VarEnergy:    {Initial: 0},
			rules.VarMaxEnergy: {Initial: 3},
			rules.VarAura:      {Initial: 0},
			rules.VarAlive:     {Initial: 1},
		},
	}
}

func newTestState(t *testing.T, extra ...*rules.Definition) *rules.GameState {
	t.Helper()
	data := rules.NewGameData()
	defs := append([]*rules.Definition{
		characterDef(defKeqing, "electro"),
		characterDef(defGanyu, "cryo"),
		{
			ID:                     defShield,
			Type:                   rules.TypeCombatStatus,
			VarConfigs:             map[string]rules.VarConfig{rules.VarUsage: {Initial: 2}},
			DisposeWhenUsageIsZero: true,
		},
		{
			ID:   defCounter,
			Type: rules.TypeStatus,
			VarConfigs: map[string]rules.VarConfig{
				rules.VarUsage:   {Initial: 3},
				VarUsagePerRound: {Initial: 0},
			},
		},
		{ID: defOz, Type: rules.TypeSummon, VarConfigs: map[string]rules.VarConfig{rules.VarUsage: {Initial: 2}}},
		{ID: defCard, Type: rules.TypeEventCard},
	}, extra...)
	for _, def := range defs {
		if err := data.Register(def); err != nil {
			t.Fatalf("register %d: %v", def.ID, err)
		}
	}
	deck := rules.DeckConfig{Characters: []int{defKeqing, defGanyu}, Cards: []int{defCard, defCard, defCard}, NoShuffle: true}
	config := rules.DefaultGameConfig()
	config.RandomSeed = 7
	st, err := rules.NewInitialState(data, [2]rules.DeckConfig{deck, deck}, config, rules.CurrentVersionBehavior())
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	for w := range st.Players {
		st.Players[w].ActiveCharacterID = st.Players[w].Characters[0].ID
	}
	return st
}

func active(st *rules.GameState, who rules.Who) rules.CharacterState {
	ch, _ := st.Players[who].Active()
	return ch
}

func normalSkill() *rules.SkillDefinition {
	return &rules.SkillDefinition{ID: skillStrike, Type: rules.SkillNormal, TriggerOn: rules.TriggerInitiative}
}
