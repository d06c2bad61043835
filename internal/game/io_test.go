package game

import (
	"encoding/json"
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExposeState(t *testing.T) {
	f := newFixture(t)
	st := f.actionState(t, 3, dice.Pyro, dice.Omni)
	st.Players[rules.Player1].Dice = []dice.Type{dice.Cryo}

	view := ExposeState(rules.Player0, st)
	me, opp := view.Players[rules.Player0], view.Players[rules.Player1]

	assert.Equal(t, st.Players[rules.Player0].Hands, me.Hands)
	assert.Equal(t, []dice.Type{dice.Pyro, dice.Omni}, me.Dice)
	require.Len(t, opp.Hands, 3)
	for i, c := range opp.Hands {
		assert.Equal(t, st.Players[rules.Player1].Hands[i].ID, c.ID)
		assert.Zero(t, c.DefinitionID)
	}
	assert.Equal(t, []dice.Type{dice.Void}, opp.Dice)
	for _, c := range me.Pile {
		assert.Zero(t, c.DefinitionID)
	}

	// the source snapshot is shared with the engine and must not change
	assert.NotZero(t, st.Players[rules.Player1].Hands[0].DefinitionID)
	assert.NotZero(t, st.Players[rules.Player0].Pile[0].DefinitionID)
	assert.Equal(t, []dice.Type{dice.Cryo}, st.Players[rules.Player1].Dice)

	assert.Nil(t, ExposeState(rules.Player0, nil))
}

func TestExposeMutation(t *testing.T) {
	tests := []struct {
		name     string
		who      rules.Who
		mut      rules.Mutation
		wantSent bool
		check    func(t *testing.T, m rules.Mutation)
	}{
		{name: "bookkeeping", mut: &rules.StepID{}},
		{name: "switch active", mut: &rules.SwitchActive{Who: rules.Player0, CharacterID: 1}},
		{name: "internal flag", mut: &rules.SetPlayerFlag{Who: rules.Player0, Flag: rules.FlagCanCharged, Value: true}},
		{
			name:     "declared end",
			mut:      &rules.SetPlayerFlag{Who: rules.Player1, Flag: rules.FlagDeclaredEnd, Value: true},
			wantSent: true,
		},
		{
			name:     "own card",
			who:      rules.Player0,
			mut:      &rules.CreateCard{Who: rules.Player0, Target: rules.AreaHands, Value: rules.EntityState{ID: 5, DefinitionID: defScroll}},
			wantSent: true,
			check: func(t *testing.T, m rules.Mutation) {
				assert.Equal(t, defScroll, m.(*rules.CreateCard).Value.DefinitionID)
			},
		},
		{
			name:     "opponent card",
			who:      rules.Player1,
			mut:      &rules.CreateCard{Who: rules.Player0, Target: rules.AreaHands, Value: rules.EntityState{ID: 5, DefinitionID: defScroll}},
			wantSent: true,
			check: func(t *testing.T, m rules.Mutation) {
				card := m.(*rules.CreateCard).Value
				assert.Equal(t, 5, card.ID)
				assert.Zero(t, card.DefinitionID)
			},
		},
		{
			name:     "own pile",
			who:      rules.Player0,
			mut:      &rules.CreateCard{Who: rules.Player0, Target: rules.AreaPile, Value: rules.EntityState{ID: 6, DefinitionID: defRelic}},
			wantSent: true,
			check: func(t *testing.T, m rules.Mutation) {
				assert.Zero(t, m.(*rules.CreateCard).Value.DefinitionID)
			},
		},
		{
			name:     "opponent dice",
			who:      rules.Player0,
			mut:      &rules.ResetDice{Who: rules.Player1, Value: []dice.Type{dice.Pyro, dice.Geo}, Reason: "roll"},
			wantSent: true,
			check: func(t *testing.T, m rules.Mutation) {
				assert.Equal(t, []dice.Type{dice.Void, dice.Void}, m.(*rules.ResetDice).Value)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, sent, err := ExposeMutation(tt.who, tt.mut)
			require.NoError(t, err)
			require.Equal(t, tt.wantSent, sent)
			if !sent {
				assert.Nil(t, data)
				return
			}
			decoded, err := rules.DecodeMutation(data)
			require.NoError(t, err)
			assert.Equal(t, tt.mut.Type(), decoded.Type())
			if tt.check != nil {
				tt.check(t, decoded)
			}
		})
	}

	// the original mutation is kept intact
	card := &rules.CreateCard{Who: rules.Player0, Target: rules.AreaHands, Value: rules.EntityState{ID: 5, DefinitionID: defScroll}}
	_, _, err := ExposeMutation(rules.Player1, card)
	require.NoError(t, err)
	assert.Equal(t, defScroll, card.Value.DefinitionID)
}

func TestResponseValidate(t *testing.T) {
	actions := Request{Method: MethodAction, Actions: make([]ActionView, 3)}
	assert.NoError(t, Response{ChosenActionIndex: 2}.validate(actions))
	assert.Error(t, Response{ChosenActionIndex: 3}.validate(actions))
	assert.Error(t, Response{ChosenActionIndex: -1}.validate(actions))
	assert.Error(t, Response{UsedDice: []dice.Type{dice.Type(42)}}.validate(actions))

	active := Request{Method: MethodChooseActive, CandidateIDs: []int{-1, -2}}
	assert.NoError(t, Response{ActiveCharacterID: -2}.validate(active))
	assert.Error(t, Response{ActiveCharacterID: -3}.validate(active))

	selectCard := Request{Method: MethodSelectCard, CandidateDefinitionIDs: []int{300}}
	assert.NoError(t, Response{SelectedDefinitionID: 300}.validate(selectCard))
	assert.Error(t, Response{}.validate(selectCard))

	assert.NoError(t, Response{DiceToReroll: []dice.Type{dice.Pyro}}.validate(Request{Method: MethodRerollDice}))
	assert.NoError(t, Response{}.validate(Request{Method: MethodSwitchHands}))
	assert.NoError(t, Response{RemovedHandIDs: []int{-3, -4}}.validate(Request{Method: MethodSwitchHands}))
	assert.Error(t, Response{RemovedHandIDs: []int{-3, -3}}.validate(Request{Method: MethodSwitchHands}))
	assert.Error(t, Response{}.validate(Request{Method: "unknown"}))
}

func TestActionViewJSON(t *testing.T) {
	f := newFixture(t)
	st := f.actionState(t, 1, dice.Omni)
	actions, err := AvailableActions(t.Context(), st, PlayerConfig{}, nil)
	require.NoError(t, err)

	var cardView ActionView
	for _, a := range actions {
		if a.Type == rules.ActionPlayCard {
			cardView = ExposeAction(a)
		}
	}
	assert.Equal(t, defRelic, cardView.CardDefinitionID)
	assert.Equal(t, st.Players[rules.Player0].Hands[0].ID, cardView.CardID)

	data, err := json.Marshal(cardView)
	require.NoError(t, err)
	var back ActionView
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cardView.CardDefinitionID, back.CardDefinitionID)
	assert.Equal(t, rules.ActionPlayCard, back.Type)
}
