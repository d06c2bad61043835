package game

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/effects"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	defKnight = 1
	defMage   = 2
	defRanger = 3

	skillSlash  = 101
	skillHeavy  = 102
	skillFinale = 103

	defScroll     = 300
	defHeavyStone = 301
	defRelic      = 302

	defSilence  = 400
	defDiscount = 401
	defFrozen   = 402
)

type fixture struct {
	data *rules.GameData

	mu  sync.Mutex
	log []string
}

func (f *fixture) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, fmt.Sprintf(format, args...))
}

func (f *fixture) entries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.log)
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

func hitOpponent(value int) effects.ActionFunc {
	return func(c *effects.Context, arg rules.EventArg) error {
		opp, err := c.OppActive()
		if err != nil {
			return err
		}
		return c.Damage(rules.DamagePhysical, value, opp.ID)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{data: rules.NewGameData()}

	defs := []*rules.Definition{
		characterDef(defKnight,
			effects.NewInitiativeSkill(skillSlash, rules.SkillNormal).Cost(dice.Void, 1).Do(hitOpponent(2)).Build(),
			effects.NewInitiativeSkill(skillHeavy, rules.SkillNormal).Cost(dice.Void, 20).Do(hitOpponent(5)).Build(),
			effects.NewInitiativeSkill(skillFinale, rules.SkillBurst).Cost(dice.Energy, 2).Do(hitOpponent(8)).Build(),
		),
		characterDef(defMage),
		characterDef(defRanger),
		{
			ID:   defScroll,
			Type: rules.TypeEventCard,
			Skills: []*rules.SkillDefinition{
				effects.NewCardSkill(3001).Do(func(c *effects.Context, arg rules.EventArg) error {
					f.record("scroll played by %s", c.Who())
					return nil
				}).Build(),
			},
		},
		{
			ID:   defHeavyStone,
			Type: rules.TypeEventCard,
			Tags: []string{rules.TagNoTuning},
			Skills: []*rules.SkillDefinition{
				effects.NewCardSkill(3011).Build(),
			},
		},
		{
			ID:   defRelic,
			Type: rules.TypeEventCard,
			Tags: []string{rules.TagLegend},
			Skills: []*rules.SkillDefinition{
				effects.NewCardSkill(3021).Do(func(c *effects.Context, arg rules.EventArg) error {
					f.record("relic played")
					return nil
				}).Build(),
			},
		},
		{
			ID:   defSilence,
			Type: rules.TypeCombatStatus,
			Tags: []string{rules.TagEventEffectless},
		},
		{
			ID:   defDiscount,
			Type: rules.TypeCombatStatus,
			Skills: []*rules.SkillDefinition{
				effects.NewSkill(4011, rules.EventModifyAction0).
					If(func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) bool {
						return arg.(*rules.ModifyActionArg).Action.Type == rules.ActionUseSkill
					}).
					Do(func(c *effects.Context, arg rules.EventArg) error {
						arg.(*rules.ModifyActionArg).DeductCost(dice.Void, 1)
						return nil
					}).Build(),
			},
		},
		{
			ID:   defFrozen,
			Type: rules.TypeStatus,
			Tags: []string{rules.TagDisableSkill},
		},
	}
	for _, def := range defs {
		require.NoError(t, f.data.Register(def))
	}
	return f
}

func testDeck() rules.DeckConfig {
	cards := []int{defScroll, defScroll, defHeavyStone}
	for i := 0; i < 9; i++ {
		cards = append(cards, defScroll)
	}
	cards = append(cards, defRelic)
	return rules.DeckConfig{
		Characters: []int{defKnight, defMage, defRanger},
		Cards:      cards,
		NoShuffle:  true,
	}
}

func (f *fixture) initialState(t *testing.T, seed, rounds int) *rules.GameState {
	t.Helper()
	config := rules.DefaultGameConfig()
	config.RandomSeed = seed
	config.MaxRoundsCount = rounds
	st, err := rules.NewInitialState(f.data, [2]rules.DeckConfig{testDeck(), testDeck()}, config, rules.CurrentVersionBehavior())
	require.NoError(t, err)
	return st
}

// actionState is a state in the action phase of round 1, player0 on turn
// with the given dice and the first hands cards of the pile in hand.
func (f *fixture) actionState(t *testing.T, hands int, values ...dice.Type) *rules.GameState {
	t.Helper()
	st := f.initialState(t, 7, 15)
	st.Phase = rules.PhaseAction
	st.RoundNumber = 1
	for w := range st.Players {
		p := &st.Players[w]
		p.ActiveCharacterID = p.Characters[0].ID
		p.Hands = slices.Clone(p.Pile[:hands])
		p.Pile = slices.Clone(p.Pile[hands:])
	}
	st.Players[rules.Player0].Dice = values
	return st
}

func (f *fixture) newGame(t *testing.T, st *rules.GameState, io [2]*scriptedIO, opts Options) *Game {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.MatchID == "" {
		opts.MatchID = t.Name()
	}
	g, err := New(st, [2]PlayerIO{io[0], io[1]}, opts)
	require.NoError(t, err)
	return g
}

type answerFunc func(ctx context.Context, req Request) (Response, error)

// scriptedIO answers every request passively unless answer handles it:
// first candidates, no rerolls, no hand switches, declare end.
type scriptedIO struct {
	mu       sync.Mutex
	notes    []Notification
	requests []Request
	answer   answerFunc
}

func newScriptedIO(answer answerFunc) *scriptedIO {
	return &scriptedIO{answer: answer}
}

func (s *scriptedIO) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
}

func (s *scriptedIO) RPC(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	answer := s.answer
	s.mu.Unlock()
	if answer != nil {
		return answer(ctx, req)
	}
	return passive(req), nil
}

func (s *scriptedIO) count(method Method) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (s *scriptedIO) notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notes)
}

func passive(req Request) Response {
	switch req.Method {
	case MethodChooseActive:
		return Response{ActiveCharacterID: req.CandidateIDs[0]}
	case MethodSelectCard:
		return Response{SelectedDefinitionID: req.CandidateDefinitionIDs[0]}
	case MethodAction:
		return choose(req, func(a ActionView) bool { return a.Type == rules.ActionDeclareEnd })
	}
	return Response{}
}

// choose picks the first action matching pred and pays with the dice the
// server selected. It panics when nothing matches to fail the test loudly.
func choose(req Request, pred func(ActionView) bool) Response {
	for i, a := range req.Actions {
		if pred(a) {
			return Response{ChosenActionIndex: i, UsedDice: a.AutoSelectedDice}
		}
	}
	panic(fmt.Sprintf("no action matches in %d candidates", len(req.Actions)))
}

// onFirstAction answers the first action request with pick and everything
// else passively.
func onFirstAction(pick func(req Request) (Response, error)) answerFunc {
	var once sync.Once
	return func(ctx context.Context, req Request) (Response, error) {
		if req.Method != MethodAction {
			return passive(req), nil
		}
		var (
			resp   Response
			err    error
			picked bool
		)
		once.Do(func() {
			resp, err = pick(req)
			picked = true
		})
		if picked {
			return resp, err
		}
		return passive(req), nil
	}
}
