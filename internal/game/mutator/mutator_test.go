package mutator

import (
	"context"
	"errors"
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutateFillsIDs(t *testing.T) {
	st := testState(t, testData(t), 4)
	m, _ := newTestMutator(t, st, Hooks{})
	next := st.Iterators.ID

	mut := &rules.CreateEntity{
		Where: rules.EntityArea{Who: rules.Player0, Type: rules.AreaSummons},
		Value: rules.EntityState{DefinitionID: defSummon, Variables: map[string]int{rules.VarUsage: 2}},
	}
	require.NoError(t, m.Mutate(mut))
	assert.Equal(t, next, mut.Value.ID)
	assert.Equal(t, next-1, m.State().Iterators.ID)
	assert.Equal(t, next, m.State().Players[rules.Player0].Summons[0].ID)
}

func TestMutateRejectsInvalid(t *testing.T) {
	st := testState(t, testData(t), 0)
	m, _ := newTestMutator(t, st, Hooks{})
	err := m.Mutate(&rules.ChangePhase{NewPhase: rules.PhaseEnd})
	require.Error(t, err)
	assert.Same(t, st, m.State())
}

func TestNotifyBuffering(t *testing.T) {
	st := testState(t, testData(t), 0)
	var pauses []Pause
	m, rec := newTestMutator(t, st, Hooks{
		OnPause: func(ctx context.Context, p Pause) error {
			pauses = append(pauses, p)
			return nil
		},
	})

	m.Notify(NotifyOption{})
	assert.Empty(t, rec.notifications, "nothing buffered")

	m.Notify(NotifyOption{Force: true})
	require.Len(t, rec.notifications, 1)

	require.NoError(t, m.Mutate(&rules.StepID{}))
	require.NoError(t, m.Mutate(&rules.SwitchTurn{}))
	m.Notify(NotifyOption{})
	require.Len(t, rec.notifications, 2)
	assert.Len(t, rec.notifications[1].Mutations, 2)

	require.NoError(t, m.Mutate(&rules.StepRound{}))
	require.NoError(t, m.NotifyAndPause(context.Background(), NotifyOption{CanResume: true}))
	require.Len(t, rec.notifications, 3)
	assert.Len(t, rec.notifications[2].Mutations, 1)
	require.Len(t, pauses, 1)
	assert.Len(t, pauses[0].Mutations, 3, "pause sees everything since the previous pause")
	assert.True(t, pauses[0].CanResume)
	assert.Same(t, m.State(), pauses[0].State)
}

func TestNotifyAndPauseError(t *testing.T) {
	st := testState(t, testData(t), 0)
	boom := errors.New("disk full")
	m, _ := newTestMutator(t, st, Hooks{
		OnPause: func(ctx context.Context, p Pause) error { return boom },
	})
	err := m.NotifyAndPause(context.Background(), NotifyOption{})
	assert.ErrorIs(t, err, boom)
}

func TestResetStateAppendsMutations(t *testing.T) {
	st := testState(t, testData(t), 0)
	m, rec := newTestMutator(t, st, Hooks{})

	next, err := rules.Apply(st, &rules.SwitchTurn{})
	require.NoError(t, err)
	m.ResetState(next, []rules.Mutation{&rules.SwitchTurn{}}, []rules.ExposedMutation{{Kind: rules.ExposedSkillUsed}})

	assert.Same(t, next, m.State())
	require.Len(t, rec.notifications, 1)
	assert.Len(t, rec.notifications[0].Mutations, 1)
	assert.Len(t, rec.notifications[0].Exposed, 1)
}

func TestRandomDiceDeterministic(t *testing.T) {
	data := testData(t)
	roll := func() []int {
		m, _ := newTestMutator(t, testState(t, data, 0), Hooks{})
		values, err := m.RandomDice(16)
		require.NoError(t, err)
		out := make([]int, len(values))
		for i, v := range values {
			out[i] = int(v)
			assert.True(t, v >= 1 && v <= 8, "face %d out of range", v)
		}
		return out
	}
	assert.Equal(t, roll(), roll())
}

func TestSubLogDepth(t *testing.T) {
	m, _ := newTestMutator(t, testState(t, testData(t), 0), Hooks{})
	outer := m.SubLog("outer")
	inner := m.SubLog("inner")
	assert.Equal(t, 2, m.depth)
	inner()
	outer()
	assert.Equal(t, 0, m.depth)
}
