package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/game/rules"
)

// ErrScriptExhausted is returned when a ScriptedIO has no answer left and no
// fallback.
var ErrScriptExhausted = errors.New("script exhausted")

// Answer produces the response to one rpc.
type Answer func(req game.Request) (game.Response, error)

// ScriptedIO is an in-memory PlayerIO answering from a queue. It records
// every notification and request it sees.
type ScriptedIO struct {
	mu            sync.Mutex
	answers       []Answer
	fallback      Answer
	notifications []game.Notification
	requests      []game.Request
}

// NewScriptedIO returns a ScriptedIO that answers with the given answers in
// order, then with fallback. A nil fallback makes further rpcs fail.
func NewScriptedIO(fallback Answer, answers ...Answer) *ScriptedIO {
	return &ScriptedIO{answers: answers, fallback: fallback}
}

// Push appends answers to the queue.
func (s *ScriptedIO) Push(answers ...Answer) {
	s.mu.Lock()
	s.answers = append(s.answers, answers...)
	s.mu.Unlock()
}

// Notify implements game.PlayerIO.
func (s *ScriptedIO) Notify(n game.Notification) {
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()
}

// RPC implements game.PlayerIO.
func (s *ScriptedIO) RPC(ctx context.Context, req game.Request) (game.Response, error) {
	if err := ctx.Err(); err != nil {
		return game.Response{}, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	var answer Answer
	if len(s.answers) > 0 {
		answer = s.answers[0]
		s.answers = s.answers[1:]
	} else {
		answer = s.fallback
	}
	s.mu.Unlock()
	if answer == nil {
		return game.Response{}, ErrScriptExhausted
	}
	return answer(req)
}

// Notifications returns a copy of what was notified so far.
func (s *ScriptedIO) Notifications() []game.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]game.Notification(nil), s.notifications...)
}

// Requests returns a copy of the rpcs received so far.
func (s *ScriptedIO) Requests() []game.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]game.Request(nil), s.requests...)
}

// Passive answers every rpc with the least committal choice: keep hands and
// dice, take the first candidate and end the round as soon as allowed.
func Passive(req game.Request) (game.Response, error) {
	switch req.Method {
	case game.MethodChooseActive:
		if len(req.CandidateIDs) > 0 {
			return game.Response{ActiveCharacterID: req.CandidateIDs[0]}, nil
		}
	case game.MethodSelectCard:
		if len(req.CandidateDefinitionIDs) > 0 {
			return game.Response{SelectedDefinitionID: req.CandidateDefinitionIDs[0]}, nil
		}
	case game.MethodAction:
		return Choose(rules.ActionDeclareEnd)(req)
	}
	return game.Response{}, nil
}

// Choose answers an action rpc with the first valid action of typ, paying
// with the dice the engine selected.
func Choose(typ rules.ActionType) Answer {
	return func(req game.Request) (game.Response, error) {
		for i, a := range req.Actions {
			if a.Type == typ && a.Validity == rules.ValidityValid {
				return game.Response{ChosenActionIndex: i, UsedDice: a.AutoSelectedDice}, nil
			}
		}
		return game.Response{}, errors.New("no valid " + string(typ) + " action offered")
	}
}

// ChooseSkill answers an action rpc with the given skill if it is valid.
func ChooseSkill(skillID int) Answer {
	return func(req game.Request) (game.Response, error) {
		for i, a := range req.Actions {
			if a.Type == rules.ActionUseSkill && a.SkillID == skillID && a.Validity == rules.ValidityValid {
				return game.Response{ChosenActionIndex: i, UsedDice: a.AutoSelectedDice}, nil
			}
		}
		return game.Response{}, errors.New("skill not offered")
	}
}
