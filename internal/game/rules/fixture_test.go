package rules

import (
	"github.com/magefree/tcg-server-go/internal/game/dice"
)

const (
	testCryoChar    = 1101
	testPyroChar    = 1102
	testHydroChar   = 1103
	testStatus      = 100
	testShield      = 101
	testSummon      = 200
	testSupport     = 300
	testEvent       = 400
	testLegend      = 401
	testNormalSkill = 11011
	testImmuneSkill = 1011
)

func noopAction(st *GameState, _ SkillInfo, _ EventArg) (*GameState, SkillResult, error) {
	return st, SkillResult{}, nil
}

func characterVars(health, maxEnergy int) map[string]VarConfig {
	return map[string]VarConfig{
		VarHealth:    {Initial: health},
		VarMaxHealth: {Initial: health},
		VarEnergy:    {Initial: 0},
		VarMaxEnergy: {Initial: maxEnergy},
		VarAura:      {Initial: 0},
		VarAlive:     {Initial: 1},
	}
}

func newTestData() *GameData {
	data := NewGameData()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(data.Register(&Definition{
		ID:         testCryoChar,
		Type:       TypeCharacter,
		Tags:       []string{"cryo"},
		VarConfigs: characterVars(10, 3),
		Skills: []*SkillDefinition{{
			ID:         testNormalSkill,
			Type:       SkillNormal,
			TriggerOn:  TriggerInitiative,
			Initiative: &InitiativeConfig{RequiredCost: dice.Requirement{dice.Cryo: 1, dice.Void: 2}},
			GainEnergy: true,
			Action:     noopAction,
		}},
	}))
	must(data.Register(&Definition{ID: testPyroChar, Type: TypeCharacter, Tags: []string{"pyro"}, VarConfigs: characterVars(10, 2)}))
	must(data.Register(&Definition{ID: testHydroChar, Type: TypeCharacter, Tags: []string{"hydro"}, VarConfigs: characterVars(10, 2)}))
	must(data.Register(&Definition{
		ID:         testStatus,
		Type:       TypeStatus,
		Tags:       []string{TagDisableSkill},
		VarConfigs: map[string]VarConfig{VarUsage: {Initial: 1}},
	}))
	must(data.Register(&Definition{
		ID:         testShield,
		Type:       TypeCombatStatus,
		Tags:       []string{TagShield},
		VarConfigs: map[string]VarConfig{VarUsage: {Initial: 2}},
		Skills: []*SkillDefinition{{
			ID:        testImmuneSkill,
			Type:      SkillTriggered,
			TriggerOn: EventModifyZeroHealth,
			Filter: func(st *GameState, info SkillInfo, arg EventArg) bool {
				zh, ok := arg.(*ZeroHealthArg)
				return ok && zh.Info.Value < 5
			},
			Action: noopAction,
		}},
	}))
	must(data.Register(&Definition{ID: testSummon, Type: TypeSummon, VarConfigs: map[string]VarConfig{VarUsage: {Initial: 2}}}))
	must(data.Register(&Definition{ID: testSupport, Type: TypeSupport}))
	must(data.Register(&Definition{ID: testEvent, Type: TypeEventCard}))
	must(data.Register(&Definition{ID: testLegend, Type: TypeEventCard, Tags: []string{TagLegend}}))
	return data
}

func testDecks() [2]DeckConfig {
	cards := []int{testEvent, testEvent, testSupport, testLegend, testEvent, testSupport}
	return [2]DeckConfig{
		{Characters: []int{testCryoChar, testPyroChar, testHydroChar}, Cards: cards},
		{Characters: []int{testPyroChar, testHydroChar, testCryoChar}, Cards: cards},
	}
}

// newTestState returns a started board: both sides have their first character active.
func newTestState() *GameState {
	config := DefaultGameConfig()
	config.RandomSeed = 42
	st, err := NewInitialState(newTestData(), testDecks(), config, CurrentVersionBehavior())
	if err != nil {
		panic(err)
	}
	for w := range st.Players {
		st.Players[w].ActiveCharacterID = st.Players[w].Characters[0].ID
	}
	return st
}
