package game

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/effects"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchEndsInDrawAtRoundLimit(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	g := f.newGame(t, f.initialState(t, 42, 3), io, Options{})

	winner, err := g.Start(context.Background())
	require.NoError(t, err)
	assert.Nil(t, winner)

	st := g.State()
	assert.Equal(t, rules.PhaseGameEnd, st.Phase)
	assert.Equal(t, 3, st.RoundNumber)
	for _, who := range bothSides {
		p := st.Players[who]
		assert.Len(t, p.Hands, 9, "5 initial cards and 2 per end phase")
		assert.Len(t, p.Pile, 4)
		assert.NotZero(t, p.ActiveCharacterID)
		assert.Len(t, p.Dice, 8)

		assert.Equal(t, 1, io[who].count(MethodSwitchHands))
		assert.Equal(t, 1, io[who].count(MethodChooseActive))
		assert.Equal(t, 2, io[who].count(MethodRerollDice))
		assert.Equal(t, 2, io[who].count(MethodAction))
	}
	assert.Equal(t, [2]rules.PlayerStatus{}, g.Statuses())
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	g := f.newGame(t, f.initialState(t, 1, 2), io, Options{})

	_, err := g.Start(context.Background())
	require.NoError(t, err)
	_, err = g.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestNotificationsHideOpponentCards(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	g := f.newGame(t, f.initialState(t, 42, 2), io, Options{})
	_, err := g.Start(context.Background())
	require.NoError(t, err)

	notes := io[rules.Player1].notifications()
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, rules.Player1, last.Who)
	for _, card := range last.State.Players[rules.Player0].Hands {
		assert.Zero(t, card.DefinitionID)
	}
	for _, card := range last.State.Players[rules.Player1].Hands {
		assert.NotZero(t, card.DefinitionID)
	}
	for _, d := range last.State.Players[rules.Player0].Dice {
		assert.Equal(t, dice.Void, d)
	}
}

func TestPlayerStatusIsAnnouncedAroundRPC(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	g := f.newGame(t, f.initialState(t, 42, 2), io, Options{})
	_, err := g.Start(context.Background())
	require.NoError(t, err)

	var statuses []rules.PlayerStatus
	for _, n := range io[rules.Player1].notifications() {
		for _, e := range n.Exposed {
			if e.Kind == rules.ExposedPlayerStatus && e.Who == rules.Player0 {
				statuses = append(statuses, e.Status)
			}
		}
	}
	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, rules.StatusSwitchingHands, statuses[0])
	assert.Equal(t, rules.StatusNone, statuses[1])
	assert.Contains(t, statuses, rules.StatusActing)
}

func TestUseSkillAction(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{
		newScriptedIO(onFirstAction(func(req Request) (Response, error) {
			return choose(req, func(a ActionView) bool { return a.SkillID == skillSlash }), nil
		})),
		newScriptedIO(nil),
	}
	g := f.newGame(t, f.initialState(t, 42, 2), io, Options{})

	winner, err := g.Start(context.Background())
	require.NoError(t, err)
	assert.Nil(t, winner)

	st := g.State()
	me, err := st.Players[rules.Player0].Active()
	require.NoError(t, err)
	opp, err := st.Players[rules.Player1].Active()
	require.NoError(t, err)
	assert.Equal(t, 8, opp.Health())
	assert.Equal(t, 1, me.Energy())
	assert.Len(t, st.Players[rules.Player0].Dice, 7)
	assert.Empty(t, st.Players[rules.Player0].RoundSkillLog, "cleared at round end")
}

func TestPlayCardRemovesItFromHand(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{
		newScriptedIO(onFirstAction(func(req Request) (Response, error) {
			return choose(req, func(a ActionView) bool { return a.CardDefinitionID == defScroll }), nil
		})),
		newScriptedIO(nil),
	}
	g := f.newGame(t, f.initialState(t, 42, 2), io, Options{})

	_, err := g.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"scroll played by player0"}, f.entries())
	st := g.State()
	assert.Len(t, st.Players[rules.Player0].Hands, 6)
	assert.Len(t, st.Players[rules.Player1].Hands, 7)
	assert.Empty(t, st.Players[rules.Player0].RemovedEntities)
}

func TestPlayLegendSetsFlag(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{
		newScriptedIO(onFirstAction(func(req Request) (Response, error) {
			return choose(req, func(a ActionView) bool { return a.CardDefinitionID == defRelic }), nil
		})),
		newScriptedIO(nil),
	}
	g := f.newGame(t, f.initialState(t, 42, 2), io, Options{})

	_, err := g.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"relic played"}, f.entries())
	assert.True(t, g.State().Players[rules.Player0].LegendUsed)
	assert.False(t, g.State().Players[rules.Player1].LegendUsed)
}

func TestEventCardWithoutEffect(t *testing.T) {
	f := newFixture(t)
	var offered ActionView
	io := [2]*scriptedIO{
		newScriptedIO(onFirstAction(func(req Request) (Response, error) {
			resp := choose(req, func(a ActionView) bool { return a.CardDefinitionID == defScroll })
			offered = req.Actions[resp.ChosenActionIndex]
			return resp, nil
		})),
		newScriptedIO(nil),
	}
	st := f.initialState(t, 42, 2)
	st.Players[rules.Player0].CombatStatuses = []rules.EntityState{{ID: 9001, DefinitionID: defSilence, Variables: map[string]int{}}}
	g := f.newGame(t, st, io, Options{})

	_, err := g.Start(context.Background())
	require.NoError(t, err)

	assert.True(t, offered.WillBeEffectless)
	assert.Empty(t, f.entries())
	assert.Len(t, g.State().Players[rules.Player0].Hands, 6)
}

func TestSameSeedSameLog(t *testing.T) {
	run := func() []Checkpoint {
		f := newFixture(t)
		io := [2]*scriptedIO{
			newScriptedIO(onFirstAction(func(req Request) (Response, error) {
				return choose(req, func(a ActionView) bool { return a.SkillID == skillSlash }), nil
			})),
			newScriptedIO(nil),
		}
		g := f.newGame(t, f.initialState(t, 1234, 3), io, Options{MatchID: "replayable"})
		_, err := g.Start(context.Background())
		require.NoError(t, err)
		return g.Log().Checkpoints()
	}
	first, second := run(), run()
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestMatchLogReplaysFinalState(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{
		newScriptedIO(onFirstAction(func(req Request) (Response, error) {
			return choose(req, func(a ActionView) bool { return a.SkillID == skillSlash }), nil
		})),
		newScriptedIO(nil),
	}
	var pauses int
	g := f.newGame(t, f.initialState(t, 99, 2), io, Options{
		OnPause: func(ctx context.Context, p mutator.Pause) error {
			pauses++
			return nil
		},
	})
	_, err := g.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, g.Log().Size(), pauses)

	replayed, err := g.Log().Replay(f.data)
	require.NoError(t, err)
	want, err := Checksum(g.State())
	require.NoError(t, err)
	got, err := Checksum(replayed)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	first, err := g.Log().StateAt(f.data, 0)
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseInitHands, first.Phase)
}

func TestPauseErrorStopsMatch(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	boom := errors.New("store unavailable")
	g := f.newGame(t, f.initialState(t, 1, 2), io, Options{
		OnPause: func(ctx context.Context, p mutator.Pause) error { return boom },
	})

	winner, err := g.Start(context.Background())
	assert.Nil(t, winner)
	assert.ErrorIs(t, err, boom)
}

func TestGiveUpBeforeStart(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	g := f.newGame(t, f.initialState(t, 1, 2), io, Options{})

	g.GiveUp(rules.Player0)
	winner, err := g.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, rules.Player1, *winner)
	assert.Equal(t, rules.PhaseGameEnd, g.State().Phase)
}

func TestGiveUpWhileAsked(t *testing.T) {
	f := newFixture(t)
	var g *Game
	io := [2]*scriptedIO{
		newScriptedIO(nil),
		newScriptedIO(func(ctx context.Context, req Request) (Response, error) {
			if req.Method != MethodAction {
				return passive(req), nil
			}
			g.GiveUp(rules.Player1)
			<-ctx.Done()
			return Response{}, ctx.Err()
		}),
	}
	g = f.newGame(t, f.initialState(t, 1, 2), io, Options{})

	winner, err := g.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, rules.Player0, *winner)
}

func TestTerminate(t *testing.T) {
	f := newFixture(t)
	var g *Game
	io := [2]*scriptedIO{
		newScriptedIO(func(ctx context.Context, req Request) (Response, error) {
			if req.Method != MethodChooseActive {
				return passive(req), nil
			}
			g.Terminate()
			<-ctx.Done()
			return Response{}, ctx.Err()
		}),
		newScriptedIO(nil),
	}
	g = f.newGame(t, f.initialState(t, 1, 2), io, Options{})

	winner, err := g.Start(context.Background())
	assert.Nil(t, winner)
	assert.ErrorIs(t, err, rules.ErrTerminated)
}

func TestIoFailureForfeits(t *testing.T) {
	f := newFixture(t)
	io := [2]*scriptedIO{
		newScriptedIO(nil),
		newScriptedIO(func(ctx context.Context, req Request) (Response, error) {
			if req.Method == MethodChooseActive {
				return Response{}, errors.New("connection reset")
			}
			return passive(req), nil
		}),
	}
	var reported *rules.IoError
	g := f.newGame(t, f.initialState(t, 1, 2), io, Options{
		OnIoError: func(err *rules.IoError) { reported = err },
	})

	winner, err := g.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, rules.Player0, *winner)
	require.NotNil(t, reported)
	assert.Equal(t, rules.Player1, reported.Who)
}

func TestInvalidAnswersForfeit(t *testing.T) {
	tests := []struct {
		name   string
		pick   func(req Request) (Response, error)
		answer func(self *scriptedIO) answerFunc
	}{
		{
			name: "duplicate hand ids",
			answer: func(self *scriptedIO) answerFunc {
				return func(ctx context.Context, req Request) (Response, error) {
					if req.Method != MethodSwitchHands {
						return passive(req), nil
					}
					notes := self.notifications()
					hands := notes[len(notes)-1].State.Players[rules.Player0].Hands
					return Response{RemovedHandIDs: []int{hands[0].ID, hands[0].ID}}, nil
				}
			},
		},
		{
			name: "index out of range",
			pick: func(req Request) (Response, error) {
				return Response{ChosenActionIndex: len(req.Actions)}, nil
			},
		},
		{
			name: "action without enough dice",
			pick: func(req Request) (Response, error) {
				return choose(req, func(a ActionView) bool { return a.SkillID == skillHeavy }), nil
			},
		},
		{
			name: "dice not paying the cost",
			pick: func(req Request) (Response, error) {
				resp := choose(req, func(a ActionView) bool { return a.SkillID == skillSlash })
				resp.UsedDice = nil
				return resp, nil
			},
		},
		{
			name: "dice not owned",
			pick: func(req Request) (Response, error) {
				resp := choose(req, func(a ActionView) bool { return a.SkillID == skillSlash })
				resp.UsedDice = []dice.Type{dice.Energy}
				return resp, nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
			if tt.answer != nil {
				io[0].answer = tt.answer(io[0])
			} else {
				io[0].answer = onFirstAction(tt.pick)
			}
			g := f.newGame(t, f.initialState(t, 5, 2), io, Options{})

			winner, err := g.Start(context.Background())
			require.NoError(t, err)
			require.NotNil(t, winner)
			assert.Equal(t, rules.Player1, *winner)
		})
	}
}

func TestEndPhaseDrawsInTurnOrder(t *testing.T) {
	f := newFixture(t)
	st := f.actionState(t, 0)
	st.Phase = rules.PhaseEnd
	st.CurrentTurn = rules.Player1
	for w := range st.Players {
		p := &st.Players[w]
		p.DeclaredEnd = true
		p.HasDefeated = true
	}
	p1 := &st.Players[rules.Player1]
	p1.Hands = slices.Clone(p1.Pile[:st.Config.MaxHandsCount-1])
	p1.Pile = slices.Clone(p1.Pile[st.Config.MaxHandsCount-1:])
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	g := f.newGame(t, st, io, Options{})
	ctx := context.Background()

	require.NoError(t, g.endPhase(ctx))
	require.NoError(t, g.m.NotifyAndPause(ctx, mutator.NotifyOption{}))

	cp, ok := g.Log().Last()
	require.True(t, ok)
	var drawn []rules.Who
	var overflow []rules.Who
	for _, data := range cp.Mutations {
		m, err := rules.DecodeMutation(data)
		require.NoError(t, err)
		switch mut := m.(type) {
		case *rules.TransferCard:
			if mut.Reason == "draw" {
				drawn = append(drawn, mut.Who)
			}
		case *rules.RemoveCard:
			if mut.Reason == "overflow" {
				overflow = append(overflow, mut.Who)
			}
		}
	}
	assert.Equal(t, []rules.Who{rules.Player1, rules.Player1, rules.Player0, rules.Player0}, drawn)
	assert.Equal(t, []rules.Who{rules.Player1}, overflow)

	after := g.m.State()
	assert.Len(t, after.Players[rules.Player1].Hands, st.Config.MaxHandsCount)
	assert.Len(t, after.Players[rules.Player0].Hands, 2)
	assert.Equal(t, rules.PhaseRoll, after.Phase)
	assert.Equal(t, 2, after.RoundNumber)
	for _, p := range after.Players {
		assert.False(t, p.DeclaredEnd)
		assert.False(t, p.HasDefeated)
	}
}

func TestEndPhaseResetsUsagePerRound(t *testing.T) {
	f := newFixture(t)
	st := f.actionState(t, 0)
	st.Phase = rules.PhaseEnd
	st.Players[rules.Player0].CombatStatuses = []rules.EntityState{
		{ID: 9100, DefinitionID: defDiscount, Variables: map[string]int{effects.VarUsagePerRound: 2}},
	}
	io := [2]*scriptedIO{newScriptedIO(nil), newScriptedIO(nil)}
	g := f.newGame(t, st, io, Options{})

	require.NoError(t, g.endPhase(context.Background()))
	assert.Equal(t, 0, g.m.State().Players[rules.Player0].CombatStatuses[0].Var(effects.VarUsagePerRound))
}

func TestNewRejectsMissingIO(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.initialState(t, 1, 2), [2]PlayerIO{newScriptedIO(nil), nil}, Options{})
	assert.Error(t, err)
	_, err = New(nil, [2]PlayerIO{newScriptedIO(nil), newScriptedIO(nil)}, Options{})
	assert.Error(t, err)
}
