package game

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/rules"
)

// PlayerIO connects one side of a match to its client. Notify must not block
// for long; RPC must eventually return or honour ctx.
type PlayerIO interface {
	Notify(n Notification)
	RPC(ctx context.Context, req Request) (Response, error)
}

// Method names an rpc sent to a player.
type Method string

const (
	MethodAction       Method = "action"
	MethodChooseActive Method = "chooseActive"
	MethodRerollDice   Method = "rerollDice"
	MethodSwitchHands  Method = "switchHands"
	MethodSelectCard   Method = "selectCard"
)

func (m Method) status() rules.PlayerStatus {
	switch m {
	case MethodAction:
		return rules.StatusActing
	case MethodChooseActive:
		return rules.StatusChoosingActive
	case MethodRerollDice:
		return rules.StatusRerolling
	case MethodSwitchHands:
		return rules.StatusSwitchingHands
	case MethodSelectCard:
		return rules.StatusSelectingCards
	}
	return rules.StatusNone
}

// Request is an rpc payload. Only the fields of Method are set.
type Request struct {
	Method                 Method       `json:"method"`
	Actions                []ActionView `json:"actions,omitempty"`
	CandidateIDs           []int        `json:"candidateIds,omitempty"`
	CandidateDefinitionIDs []int        `json:"candidateDefinitionIds,omitempty"`
}

// Response answers a Request.
type Response struct {
	ChosenActionIndex    int         `json:"chosenActionIndex"`
	UsedDice             []dice.Type `json:"usedDice,omitempty"`
	ActiveCharacterID    int         `json:"activeCharacterId,omitempty"`
	DiceToReroll         []dice.Type `json:"diceToReroll,omitempty"`
	RemovedHandIDs       []int       `json:"removedHandIds,omitempty"`
	SelectedDefinitionID int         `json:"selectedDefinitionId,omitempty"`
}

// ActionView is the client form of rules.ActionInfo.
type ActionView struct {
	Type             rules.ActionType     `json:"type"`
	Validity         rules.ActionValidity `json:"validity"`
	Fast             bool                 `json:"fast"`
	Cost             dice.Requirement     `json:"cost"`
	AutoSelectedDice []dice.Type          `json:"autoSelectedDice"`
	SkillID          int                  `json:"skillId,omitempty"`
	CardID           int                  `json:"cardId,omitempty"`
	CardDefinitionID int                  `json:"cardDefinitionId,omitempty"`
	FromID           int                  `json:"fromId,omitempty"`
	ToID             int                  `json:"toId,omitempty"`
	TuningResult     dice.Type            `json:"tuningResult,omitempty"`
	TargetIDs        []int                `json:"targetIds,omitempty"`
	WillBeEffectless bool                 `json:"willBeEffectless,omitempty"`
}

// ExposeAction converts an action for the player on turn.
func ExposeAction(a *rules.ActionInfo) ActionView {
	v := ActionView{
		Type:             a.Type,
		Validity:         a.Validity,
		Fast:             a.Fast,
		Cost:             a.Cost.Clone(),
		AutoSelectedDice: slices.Clone(a.AutoSelectedDice),
		CardID:           a.CardID,
		FromID:           a.FromID,
		ToID:             a.ToID,
		TuningResult:     a.TuningResult,
		WillBeEffectless: a.WillBeEffectless,
	}
	if a.Skill != nil && a.Skill.Definition != nil {
		v.SkillID = a.Skill.Definition.ID
		if a.Type == rules.ActionPlayCard {
			v.CardID = a.Skill.Caller.StateID()
			v.CardDefinitionID = a.Skill.Caller.StateDefinitionID()
		}
	}
	for _, t := range a.Targets {
		v.TargetIDs = append(v.TargetIDs, t.StateID())
	}
	return v
}

// Notification is pushed to one side after state changes.
type Notification struct {
	Who       rules.Who               `json:"who"`
	State     *rules.GameState        `json:"state"`
	Mutations []json.RawMessage       `json:"mutations,omitempty"`
	Exposed   []rules.ExposedMutation `json:"exposed,omitempty"`
	Statuses  [2]rules.PlayerStatus   `json:"statuses"`
}

// ExposeState returns what who may see of st. Piles are hidden for both
// sides; the opponent's hands and dice only reveal their count.
func ExposeState(who rules.Who, st *rules.GameState) *rules.GameState {
	if st == nil {
		return nil
	}
	view := *st
	for w := range view.Players {
		p := view.Players[w]
		p.Pile = hideCards(p.Pile)
		if rules.Who(w) != who {
			p.Hands = hideCards(p.Hands)
			p.Dice = make([]dice.Type, len(p.Dice))
		}
		p.RemovedEntities = nil
		p.RoundSkillLog = nil
		view.Players[w] = p
	}
	return &view
}

func hideCards(cards []rules.EntityState) []rules.EntityState {
	out := make([]rules.EntityState, len(cards))
	for i, c := range cards {
		out[i] = rules.EntityState{ID: c.ID}
	}
	return out
}

// ExposeMutation encodes a mutation for who. Bookkeeping mutations and
// active switches (sent as exposed records instead) are dropped; cards the
// side must not see lose their definition.
func ExposeMutation(who rules.Who, m rules.Mutation) (json.RawMessage, bool, error) {
	if rules.IsBookkeeping(m) {
		return nil, false, nil
	}
	switch mut := m.(type) {
	case *rules.SwitchActive:
		return nil, false, nil
	case *rules.SetPlayerFlag:
		if mut.Flag != rules.FlagDeclaredEnd && mut.Flag != rules.FlagLegendUsed {
			return nil, false, nil
		}
	case *rules.CreateCard:
		if mut.Who != who || mut.Target == rules.AreaPile {
			hidden := *mut
			hidden.Value = rules.EntityState{ID: mut.Value.ID}
			m = &hidden
		}
	case *rules.ResetDice:
		if mut.Who != who {
			hidden := *mut
			hidden.Value = make([]dice.Type, len(mut.Value))
			m = &hidden
		}
	}
	data, err := rules.EncodeMutation(m)
	if err != nil {
		return nil, false, fmt.Errorf("expose %s: %w", m.Type(), err)
	}
	return data, true, nil
}

// validate rejects answers that do not fit the request.
func (r Response) validate(req Request) error {
	switch req.Method {
	case MethodAction:
		if r.ChosenActionIndex < 0 || r.ChosenActionIndex >= len(req.Actions) {
			return fmt.Errorf("chosen action index %d out of range", r.ChosenActionIndex)
		}
	case MethodChooseActive:
		if !slices.Contains(req.CandidateIDs, r.ActiveCharacterID) {
			return fmt.Errorf("invalid active character id %d", r.ActiveCharacterID)
		}
	case MethodSelectCard:
		if !slices.Contains(req.CandidateDefinitionIDs, r.SelectedDefinitionID) {
			return fmt.Errorf("selected card %d not in candidates", r.SelectedDefinitionID)
		}
	case MethodSwitchHands:
		seen := make(map[int]bool, len(r.RemovedHandIDs))
		for _, id := range r.RemovedHandIDs {
			if seen[id] {
				return fmt.Errorf("removed hand card %d listed twice", id)
			}
			seen[id] = true
		}
	case MethodRerollDice:
	default:
		return fmt.Errorf("unknown method %q", req.Method)
	}
	for _, d := range append(slices.Clone(r.UsedDice), r.DiceToReroll...) {
		if d < dice.Void || d > dice.Energy {
			return fmt.Errorf("invalid dice %d", d)
		}
	}
	return nil
}
