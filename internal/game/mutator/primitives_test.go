package mutator

import (
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func character(m *Mutator, who rules.Who, idx int) rules.CharacterState {
	return m.State().Players[who].Characters[idx]
}

func damageTo(m *Mutator, typ rules.DamageType, value int) (rules.DamageInfo, []rules.Event, error) {
	source := character(m, rules.Player0, 0)
	target := character(m, rules.Player1, 0)
	return m.Damage(rules.DamageInfo{
		Type:       typ,
		Value:      value,
		Source:     source,
		Via:        skillOf(source),
		Target:     target,
		TargetAura: target.AuraOf(),
	}, DamageOption{Via: skillOf(source), CallerWho: rules.Player0, TargetWho: rules.Player1, TargetIsActive: true})
}

func TestDamagePhysical(t *testing.T) {
	m, rec := newTestMutator(t, testState(t, testData(t), 0), Hooks{})

	info, events, err := damageTo(m, rules.DamagePhysical, 3)
	require.NoError(t, err)
	assert.False(t, info.CauseDefeated)
	target := character(m, rules.Player1, 0)
	assert.Equal(t, 7, target.Health())
	assert.True(t, target.Alive())
	require.Len(t, events, 1)
	assert.Equal(t, rules.EventDamageOrHeal, events[0].Name)

	require.NotEmpty(t, rec.notifications)
	last := rec.notifications[len(rec.notifications)-1]
	require.Len(t, last.Exposed, 1)
	assert.Equal(t, 10, last.Exposed[0].OldHealth)
	assert.Equal(t, 7, last.Exposed[0].NewHealth)
}

func TestDamageOverkillFloorsAtZero(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	info, _, err := damageTo(m, rules.DamagePhysical, 15)
	require.NoError(t, err)
	assert.True(t, info.CauseDefeated)
	assert.Equal(t, 0, character(m, rules.Player1, 0).Health())
	assert.True(t, character(m, rules.Player1, 0).Alive(), "defeat is decided by the executor")
}

func TestDamageModifiers(t *testing.T) {
	data := testData(t)
	m, _ := newTestMutator(t, testState(t, data, 0), Hooks{})
	_, err := m.CreateEntity(data.Definitions[defBarrier], rules.EntityArea{Who: rules.Player1, Type: rules.AreaCombatStatuses}, CreateEntityOptions{})
	require.NoError(t, err)

	info, _, err := damageTo(m, rules.DamagePhysical, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Value)
	assert.Equal(t, "-1", info.Log)
	assert.Equal(t, 8, character(m, rules.Player1, 0).Health())

	info, _, err = damageTo(m, rules.DamagePiercing, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Value, "piercing skips modifiers")
	assert.Equal(t, 5, character(m, rules.Player1, 0).Health())
}

func TestDamageReaction(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	target := character(m, rules.Player1, 0)
	require.NoError(t, m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarAura, Value: int(rules.AuraCryo)}))

	info, events, err := damageTo(m, rules.DamagePyro, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Value)
	assert.Equal(t, rules.Melt, info.Reaction())
	target = character(m, rules.Player1, 0)
	assert.Equal(t, 7, target.Health())
	assert.Equal(t, rules.AuraNone, target.AuraOf())

	var names []rules.EventName
	for _, e := range events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []rules.EventName{rules.EventDamageOrHeal, rules.EventReaction}, names)
}

func TestReactionEffectRunsInline(t *testing.T) {
	data := testData(t)
	var seen *rules.ReactionEffectArg
	require.NoError(t, data.RegisterReaction(rules.Frozen, &rules.SkillDefinition{
		ID:   9001,
		Type: rules.SkillTriggered,
		Action: func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) (*rules.GameState, rules.SkillResult, error) {
			seen = arg.(*rules.ReactionEffectArg)
			return st, rules.SkillResult{Events: []rules.Event{rules.NewEvent(rules.EventEnter, rules.NewGenericArg(st))}}, nil
		},
	}))
	m, _ := newTestMutator(t, testState(t, data, 0), Hooks{})
	target := character(m, rules.Player1, 0)

	events, err := m.ApplyAura(target, rules.DamageHydro, ApplyOption{DamageOption: DamageOption{TargetWho: rules.Player1}})
	require.NoError(t, err)
	assert.Empty(t, events)
	target = character(m, rules.Player1, 0)
	assert.Equal(t, rules.AuraHydro, target.AuraOf())

	events, err = m.ApplyAura(target, rules.DamageCryo, ApplyOption{DamageOption: DamageOption{CallerWho: rules.Player0, TargetWho: rules.Player1, TargetIsActive: true}})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, rules.EventReaction, events[0].Name)
	require.NotNil(t, seen)
	assert.Equal(t, rules.Frozen, seen.Info.Type)
	assert.True(t, seen.IsActive)
	assert.False(t, seen.FromDamage)
}

func TestApplyAuraSkipsDead(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	target := character(m, rules.Player1, 0)
	require.NoError(t, m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarAlive, Value: 0}))
	events, err := m.ApplyAura(character(m, rules.Player1, 0), rules.DamagePyro, ApplyOption{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, rules.AuraNone, character(m, rules.Player1, 0).AuraOf())
}

func TestHeal(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	target := character(m, rules.Player0, 1)
	via := skillOf(character(m, rules.Player0, 0))

	require.NoError(t, m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarHealth, Value: 4}))
	events, err := m.Heal(10, character(m, rules.Player0, 1), HealOption{Via: via, Kind: rules.HealCommon})
	require.NoError(t, err)
	require.Len(t, events, 1)
	healed := events[0].Arg.(*rules.DamageOrHealArg).Info
	assert.Equal(t, 6, healed.Value)
	assert.Equal(t, 10, healed.ExpectedValue)
	assert.Equal(t, 10, character(m, rules.Player0, 1).Health())
}

func TestHealDeadCharacter(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	target := character(m, rules.Player0, 2)
	via := skillOf(character(m, rules.Player0, 0))
	require.NoError(t, m.MutateAll(
		&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarHealth, Value: 0},
		&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarAlive, Value: 0},
	))

	events, err := m.Heal(3, character(m, rules.Player0, 2), HealOption{Via: via, Kind: rules.HealCommon})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, character(m, rules.Player0, 2).Alive())

	events, err = m.Heal(3, character(m, rules.Player0, 2), HealOption{Via: via, Kind: rules.HealRevive})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, rules.EventRevive, events[0].Name)
	revived := character(m, rules.Player0, 2)
	assert.True(t, revived.Alive())
	assert.Equal(t, 3, revived.Health())
}

func TestHealImmuneDefeatedSetsHealth(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	target := character(m, rules.Player0, 0)
	require.NoError(t, m.Mutate(&rules.ModifyEntityVar{ID: target.ID, VarName: rules.VarHealth, Value: 0}))
	_, err := m.Heal(1, character(m, rules.Player0, 0), HealOption{Via: skillOf(target), Kind: rules.HealImmuneDefeated})
	require.NoError(t, err)
	assert.Equal(t, 1, character(m, rules.Player0, 0).Health())
}

func TestCreateEntityTakeMax(t *testing.T) {
	data := testData(t)
	m, _ := newTestMutator(t, testState(t, data, 0), Hooks{})
	ch := character(m, rules.Player0, 0)
	area := rules.EntityArea{Who: rules.Player0, Type: rules.AreaCharacters, CharacterID: ch.ID}
	def := data.Definitions[defTakeMaxStatus]

	first, err := m.CreateEntity(def, area, CreateEntityOptions{OverrideVariables: map[string]int{rules.VarUsage: 2}})
	require.NoError(t, err)
	require.NotNil(t, first.New)
	assert.Nil(t, first.Old)

	second, err := m.CreateEntity(def, area, CreateEntityOptions{})
	require.NoError(t, err)
	require.NotNil(t, second.Old)
	assert.Equal(t, first.New.ID, second.New.ID)
	assert.Equal(t, 2, second.New.Var(rules.VarUsage))
	require.Len(t, character(m, rules.Player0, 0).Entities, 1)

	require.Len(t, second.Events, 1)
	enter := second.Events[0].Arg.(*rules.EnterArg)
	require.NotNil(t, enter.Overridden)
	assert.Equal(t, 2, enter.Overridden.Var(rules.VarUsage))
}

func TestCreateEntityAppend(t *testing.T) {
	data := testData(t)
	m, _ := newTestMutator(t, testState(t, data, 0), Hooks{})
	area := rules.EntityArea{Who: rules.Player1, Type: rules.AreaCombatStatuses}
	def := data.Definitions[defAppendStatus]

	var usage []int
	for i := 0; i < 4; i++ {
		res, err := m.CreateEntity(def, area, CreateEntityOptions{})
		require.NoError(t, err)
		usage = append(usage, res.New.Var(rules.VarUsage))
	}
	assert.Equal(t, []int{1, 2, 3, 3}, usage)
}

func TestCreateEntityVersionDefault(t *testing.T) {
	data := testData(t)
	st := testState(t, data, 0)
	st.Behavior = rules.LegacyVersionBehavior()
	m, _ := newTestMutator(t, st, Hooks{})
	area := rules.EntityArea{Who: rules.Player0, Type: rules.AreaSummons}

	_, err := m.CreateEntity(data.Definitions[defSummon], area, CreateEntityOptions{OverrideVariables: map[string]int{rules.VarUsage: 5}})
	require.NoError(t, err)
	res, err := m.CreateEntity(data.Definitions[defSummon], area, CreateEntityOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.New.Var(rules.VarUsage), "legacy data overwrites")
}

func TestCreateEntityImmuneControl(t *testing.T) {
	data := testData(t)
	m, _ := newTestMutator(t, testState(t, data, 0), Hooks{})
	ch := character(m, rules.Player1, 0)
	area := rules.EntityArea{Who: rules.Player1, Type: rules.AreaCharacters, CharacterID: ch.ID}

	_, err := m.CreateEntity(data.Definitions[defUnshakable], area, CreateEntityOptions{})
	require.NoError(t, err)
	res, err := m.CreateEntity(data.Definitions[defFrozen], area, CreateEntityOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.New)
	assert.Empty(t, res.Events)
	assert.Len(t, character(m, rules.Player1, 0).Entities, 1)
}

func TestCreateEntitySummonsFull(t *testing.T) {
	data := testData(t)
	st := testState(t, data, 0)
	st.Config.MaxSummonsCount = 1
	m, _ := newTestMutator(t, st, Hooks{})
	area := rules.EntityArea{Who: rules.Player0, Type: rules.AreaSummons}
	other := &rules.Definition{ID: 121, Type: rules.TypeSummon}
	require.NoError(t, data.Register(other))

	_, err := m.CreateEntity(data.Definitions[defSummon], area, CreateEntityOptions{})
	require.NoError(t, err)
	res, err := m.CreateEntity(other, area, CreateEntityOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.New)
	assert.Len(t, m.State().Players[rules.Player0].Summons, 1)
}

func TestDrawCardsOverflow(t *testing.T) {
	st := testState(t, testData(t), 12)
	st.Config.MaxHandsCount = 2
	m, _ := newTestMutator(t, st, Hooks{})

	events, err := m.DrawCards(rules.Player0, 3)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	p := m.State().Players[rules.Player0]
	assert.Len(t, p.Hands, 2)
	assert.Len(t, p.Pile, 9)
	require.Len(t, p.RemovedEntities, 1)

	var overflow *rules.RemoveCard
	for _, n := range drainMutations(m) {
		if rc, ok := n.(*rules.RemoveCard); ok {
			overflow = rc
		}
	}
	require.NotNil(t, overflow)
	assert.Equal(t, "overflow", overflow.Reason)
}

// drainMutations empties the notify buffer of m.
func drainMutations(m *Mutator) []rules.Mutation {
	out := m.toNotify
	m.toNotify = nil
	return out
}

func TestDrawCardsEmptyPile(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 1), Hooks{})
	events, err := m.DrawCards(rules.Player1, 3)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, m.State().Players[rules.Player1].Hands, 1)
}

func TestCreateHandCard(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	events, err := m.CreateHandCard(rules.Player0, defCard)
	require.NoError(t, err)
	require.Len(t, events, 1)
	arg := events[0].Arg.(*rules.HandCardInsertedArg)
	assert.Equal(t, "create", arg.Reason)
	assert.NotZero(t, arg.Card.ID)

	_, err = m.CreateHandCard(rules.Player0, 424242)
	assert.True(t, rules.IsDataError(err))
}

func TestInsertPileCards(t *testing.T) {
	newCards := func(n int) []rules.Mutation {
		out := make([]rules.Mutation, n)
		for i := range out {
			out[i] = &rules.CreateCard{Value: rules.EntityState{DefinitionID: defSupport}}
		}
		return out
	}
	positions := func(m *Mutator) []int {
		var idx []int
		for i, c := range m.State().Players[rules.Player0].Pile {
			if c.DefinitionID == defSupport {
				idx = append(idx, i)
			}
		}
		return idx
	}
	pileOf := func(n int) *rules.GameState {
		st := testState(t, testData(t), 0)
		for i := 0; i < n; i++ {
			st.Players[rules.Player0].Pile = append(st.Players[rules.Player0].Pile, rules.EntityState{ID: 1000 + i, DefinitionID: defCard})
		}
		return st
	}

	m, _ := newTestMutator(t, pileOf(4), Hooks{})
	require.NoError(t, m.InsertPileCards(rules.Player0, newCards(2), PileTop))
	assert.Equal(t, []int{0, 1}, positions(m))

	m, _ = newTestMutator(t, pileOf(4), Hooks{})
	require.NoError(t, m.InsertPileCards(rules.Player0, newCards(2), PileBottom))
	assert.Equal(t, []int{4, 5}, positions(m))

	m, _ = newTestMutator(t, pileOf(4), Hooks{})
	require.NoError(t, m.InsertPileCards(rules.Player0, newCards(2), PileSpaceAround))
	assert.Equal(t, []int{2, 4}, positions(m))

	m, _ = newTestMutator(t, pileOf(4), Hooks{})
	require.NoError(t, m.InsertPileCards(rules.Player0, newCards(1), "topIndex1"))
	assert.Equal(t, []int{1}, positions(m))

	m, _ = newTestMutator(t, pileOf(4), Hooks{})
	require.NoError(t, m.InsertPileCards(rules.Player0, newCards(3), PileRandom))
	assert.Len(t, positions(m), 3)

	st := pileOf(4)
	st.Config.MaxPileCount = 5
	m, _ = newTestMutator(t, st, Hooks{})
	require.NoError(t, m.InsertPileCards(rules.Player0, newCards(3), PileTop))
	assert.Len(t, m.State().Players[rules.Player0].Pile, 5)

	m, _ = newTestMutator(t, pileOf(4), Hooks{})
	assert.Error(t, m.InsertPileCards(rules.Player0, newCards(1), "sideways"))
}

func TestSwitchActive(t *testing.T) {
	data := testData(t)
	m, _ := newTestMutator(t, testState(t, data, 0), Hooks{})
	from := character(m, rules.Player0, 0)
	to := character(m, rules.Player0, 1)

	events, err := m.SwitchActive(rules.Player0, from, SwitchActiveOption{})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = m.CreateEntity(data.Definitions[defUnshakable], rules.EntityArea{Who: rules.Player0, Type: rules.AreaCharacters, CharacterID: from.ID}, CreateEntityOptions{})
	require.NoError(t, err)
	via := skillOf(character(m, rules.Player1, 0))
	events, err = m.SwitchActive(rules.Player0, to, SwitchActiveOption{Via: &via})
	require.NoError(t, err)
	assert.Empty(t, events, "immune control blocks forced switches")

	fast := false
	events, err = m.SwitchActive(rules.Player0, to, SwitchActiveOption{Fast: &fast})
	require.NoError(t, err)
	require.Len(t, events, 1)
	arg := events[0].Arg.(*rules.SwitchActiveArg)
	assert.Equal(t, from.ID, arg.Info.From.ID)
	assert.Equal(t, to.ID, arg.Info.To.ID)
	p := m.State().Players[rules.Player0]
	assert.Equal(t, to.ID, p.ActiveCharacterID)
	assert.True(t, p.CanPlunging)
}
