// Package game drives a two-player match from the first draw to game end.
// A Game owns the mutator and executor of one match and talks to both sides
// through PlayerIO.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/executor"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/magefree/tcg-server-go/internal/game"

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("game already started")

// PlayerConfig holds per-side options.
type PlayerConfig struct {
	// AlwaysOmni makes every rolled die omni.
	AlwaysOmni bool `json:"alwaysOmni" mapstructure:"always_omni"`
	// AllowTuningAnyDice lifts the restriction on the die spent for tuning.
	AllowTuningAnyDice bool `json:"allowTuningAnyDice" mapstructure:"allow_tuning_any_dice"`
}

// Options configure a Game.
type Options struct {
	MatchID string
	Logger  *zap.Logger
	Tracer  trace.Tracer
	Players [2]PlayerConfig
	// OnPause runs at every checkpoint after it was recorded in the match
	// log. An error ends the match.
	OnPause func(ctx context.Context, p mutator.Pause) error
	// OnIoError is told about the failure that made a side forfeit.
	OnIoError func(err *rules.IoError)
}

type giveUpError struct {
	who rules.Who
}

func (e *giveUpError) Error() string {
	return fmt.Sprintf("%s gave up", e.who)
}

// Game is one running match.
type Game struct {
	id        string
	m         *mutator.Mutator
	exec      *executor.Executor
	logger    *zap.Logger
	tracer    trace.Tracer
	io        [2]PlayerIO
	players   [2]PlayerConfig
	onPause   func(ctx context.Context, p mutator.Pause) error
	onIoError func(err *rules.IoError)
	matchLog  *MatchLog

	ioMu     sync.Mutex
	statuses [2]rules.PlayerStatus

	latest     atomic.Pointer[rules.GameState]
	started    atomic.Bool
	terminated atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelCauseFunc
	pending  error
}

// New prepares a match over an initial state, usually from
// rules.NewInitialState.
func New(st *rules.GameState, io [2]PlayerIO, opts Options) (*Game, error) {
	if st == nil || st.Data == nil {
		return nil, errors.New("game: initial state without data")
	}
	for who, p := range io {
		if p == nil {
			return nil, fmt.Errorf("game: no io for %s", rules.Who(who))
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("match_id", opts.MatchID))
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	matchLog, err := NewMatchLog(opts.MatchID, st)
	if err != nil {
		return nil, err
	}
	g := &Game{
		id:        opts.MatchID,
		logger:    logger,
		tracer:    tracer,
		io:        io,
		players:   opts.Players,
		onPause:   opts.OnPause,
		onIoError: opts.OnIoError,
		matchLog:  matchLog,
	}
	g.m = mutator.New(st, mutator.Hooks{
		OnNotify:     g.onNotify,
		OnPause:      g.pause,
		ChooseActive: g.rpcChooseActive,
		Reroll:       g.rpcReroll,
		SwitchHands:  g.rpcSwitchHands,
		SelectCard:   g.rpcSelectCard,
	}, logger)
	g.exec = executor.New(g.m, logger)
	g.latest.Store(st)
	return g, nil
}

// ID returns the match id.
func (g *Game) ID() string {
	return g.id
}

// State returns the snapshot of the last notification. It is safe to call
// from any goroutine.
func (g *Game) State() *rules.GameState {
	return g.latest.Load()
}

// Log returns the checkpoints recorded so far.
func (g *Game) Log() *MatchLog {
	return g.matchLog
}

// Statuses returns what each side is currently asked for.
func (g *Game) Statuses() [2]rules.PlayerStatus {
	g.ioMu.Lock()
	defer g.ioMu.Unlock()
	return g.statuses
}

// Start runs the match to its end and returns the winner, nil for a draw.
// A side that fails its io or gives up loses. Terminate makes Start return
// rules.ErrTerminated.
func (g *Game) Start(ctx context.Context) (*rules.Who, error) {
	if !g.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g.cancelMu.Lock()
	g.cancel = cancel
	pending := g.pending
	g.cancelMu.Unlock()
	if pending != nil {
		cancel(pending)
	}

	ctx, span := g.tracer.Start(ctx, "match", trace.WithAttributes(attribute.String("match_id", g.id)))
	defer span.End()

	g.logger.Info("match started", zap.Int("random_seed", g.m.State().Config.RandomSeed))
	winner, err := g.finish(ctx, g.loop(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if winner != nil {
		span.SetAttributes(attribute.String("winner", winner.String()))
		g.logger.Info("match finished", zap.Stringer("winner", *winner))
	} else {
		g.logger.Info("match finished in a draw")
	}
	return winner, nil
}

func (g *Game) loop(ctx context.Context) error {
	if err := g.m.NotifyAndPause(ctx, mutator.NotifyOption{Force: true, CanResume: true}); err != nil {
		return err
	}
	for !g.m.State().Finished() {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		if err := g.runPhase(ctx); err != nil {
			return err
		}
		if err := g.m.Mutate(&rules.ClearRemovedEntities{}); err != nil {
			return err
		}
		if err := g.m.NotifyAndPause(ctx, mutator.NotifyOption{CanResume: true}); err != nil {
			return err
		}
	}
	return nil
}

func (g *Game) runPhase(ctx context.Context) error {
	st := g.m.State()
	ctx, span := g.tracer.Start(ctx, "phase "+st.Phase.String(),
		trace.WithAttributes(attribute.Int("round", st.RoundNumber)))
	defer span.End()

	var err error
	switch st.Phase {
	case rules.PhaseInitHands:
		err = g.initHands(ctx)
	case rules.PhaseInitActives:
		err = g.initActives(ctx)
	case rules.PhaseRoll:
		err = g.rollPhase(ctx)
	case rules.PhaseAction:
		err = g.actionPhase(ctx)
	case rules.PhaseEnd:
		err = g.endPhase(ctx)
	default:
		err = rules.NewInternalError("no handler for phase %s", st.Phase)
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (g *Game) finish(ctx context.Context, err error) (*rules.Who, error) {
	if g.terminated.Load() {
		return nil, rules.ErrTerminated
	}
	if err == nil {
		return g.m.State().Winner, nil
	}
	if errors.Is(err, context.Canceled) {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
	}
	var giveUp *giveUpError
	if errors.As(err, &giveUp) {
		return g.gotWinner(ctx, giveUp.who.Flip())
	}
	if ioErr, ok := rules.AsIoError(err); ok {
		g.logger.Warn("player io failed", zap.Stringer("who", ioErr.Who), zap.Error(ioErr))
		if g.onIoError != nil {
			g.onIoError(ioErr)
		}
		return g.gotWinner(ctx, ioErr.Who.Flip())
	}
	g.logger.Error("match failed", zap.Error(err))
	return nil, err
}

// gotWinner ends the match outside the normal flow. The final checkpoint is
// written even though ctx is already cancelled.
func (g *Game) gotWinner(ctx context.Context, winner rules.Who) (*rules.Who, error) {
	if !g.m.State().Finished() {
		if err := g.m.MutateAll(
			&rules.SetWinner{Winner: &winner},
			&rules.ChangePhase{NewPhase: rules.PhaseGameEnd},
		); err != nil {
			return nil, err
		}
	}
	if err := g.m.NotifyAndPause(context.WithoutCancel(ctx), mutator.NotifyOption{}); err != nil {
		return nil, err
	}
	return g.m.State().Winner, nil
}

// GiveUp makes who lose. It may be called from any goroutine, also before
// Start.
func (g *Game) GiveUp(who rules.Who) {
	g.logger.Info("player gave up", zap.Stringer("who", who))
	g.stop(&giveUpError{who: who})
}

// Terminate aborts the match without a result. No further notifications
// are sent.
func (g *Game) Terminate() {
	g.logger.Info("match terminated")
	g.terminated.Store(true)
	g.stop(rules.ErrTerminated)
}

func (g *Game) stop(cause error) {
	g.cancelMu.Lock()
	defer g.cancelMu.Unlock()
	if g.cancel != nil {
		g.cancel(cause)
		return
	}
	if g.pending == nil {
		g.pending = cause
	}
}

func (g *Game) pause(ctx context.Context, p mutator.Pause) error {
	g.latest.Store(p.State)
	if err := g.matchLog.Record(p); err != nil {
		return err
	}
	if g.onPause != nil {
		return g.onPause(ctx, p)
	}
	return nil
}

func (g *Game) onNotify(n mutator.Notification) {
	g.latest.Store(n.State)
	if g.terminated.Load() {
		return
	}
	g.ioMu.Lock()
	defer g.ioMu.Unlock()
	for i := range g.io {
		who := rules.Who(i)
		muts := make([]json.RawMessage, 0, len(n.Mutations))
		for _, m := range n.Mutations {
			data, ok, err := ExposeMutation(who, m)
			if err != nil {
				g.logger.Warn("failed to expose mutation", zap.Stringer("who", who), zap.Error(err))
				continue
			}
			if ok {
				muts = append(muts, data)
			}
		}
		g.io[who].Notify(Notification{
			Who:       who,
			State:     ExposeState(who, n.State),
			Mutations: muts,
			Exposed:   n.Exposed,
			Statuses:  g.statuses,
		})
	}
}

// notifyOne sends exposed records to one side only. Decision hooks call it
// from their own goroutines.
func (g *Game) notifyOne(who rules.Who, exposed ...rules.ExposedMutation) {
	if g.terminated.Load() {
		return
	}
	g.ioMu.Lock()
	defer g.ioMu.Unlock()
	g.io[who].Notify(Notification{
		Who:      who,
		State:    ExposeState(who, g.latest.Load()),
		Exposed:  exposed,
		Statuses: g.statuses,
	})
}

func (g *Game) setStatus(who rules.Who, status rules.PlayerStatus) {
	g.ioMu.Lock()
	g.statuses[who] = status
	g.ioMu.Unlock()
	record := rules.ExposedMutation{Kind: rules.ExposedPlayerStatus, Who: who, Status: status}
	g.notifyOne(rules.Player0, record)
	g.notifyOne(rules.Player1, record)
}

// rpc asks one side and validates the answer. Failures other than the match
// being stopped become an IoError of that side.
func (g *Game) rpc(ctx context.Context, who rules.Who, req Request) (Response, error) {
	ctx, span := g.tracer.Start(ctx, "rpc "+string(req.Method),
		trace.WithAttributes(attribute.String("who", who.String())))
	defer span.End()

	g.setStatus(who, req.Method.status())
	defer g.setStatus(who, rules.StatusNone)

	resp, err := g.io[who].RPC(ctx, req)
	if err == nil {
		err = resp.validate(req)
	}
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return Response{}, cause
		}
		ioErr := &rules.IoError{Who: who, Msg: fmt.Sprintf("rpc %s", req.Method), Err: err}
		span.RecordError(ioErr)
		span.SetStatus(codes.Error, ioErr.Error())
		return Response{}, ioErr
	}
	return resp, nil
}

func (g *Game) rpcChooseActive(ctx context.Context, who rules.Who, candidates []int) (int, error) {
	resp, err := g.rpc(ctx, who, Request{Method: MethodChooseActive, CandidateIDs: candidates})
	if err != nil {
		return 0, err
	}
	return resp.ActiveCharacterID, nil
}

func (g *Game) rpcReroll(ctx context.Context, who rules.Who) ([]dice.Type, error) {
	resp, err := g.rpc(ctx, who, Request{Method: MethodRerollDice})
	if err != nil {
		return nil, err
	}
	g.notifyOne(who, rules.ExposedMutation{Kind: rules.ExposedRerollDone, Who: who, Count: len(resp.DiceToReroll)})
	g.notifyOne(who.Flip(), rules.ExposedMutation{Kind: rules.ExposedRerollDone, Who: who})
	return resp.DiceToReroll, nil
}

func (g *Game) rpcSwitchHands(ctx context.Context, who rules.Who) ([]int, error) {
	resp, err := g.rpc(ctx, who, Request{Method: MethodSwitchHands})
	if err != nil {
		return nil, err
	}
	record := rules.ExposedMutation{Kind: rules.ExposedSwitchHandsDone, Who: who, Count: len(resp.RemovedHandIDs)}
	g.notifyOne(who, record)
	g.notifyOne(who.Flip(), record)
	return resp.RemovedHandIDs, nil
}

func (g *Game) rpcSelectCard(ctx context.Context, who rules.Who, candidates []int) (int, error) {
	resp, err := g.rpc(ctx, who, Request{Method: MethodSelectCard, CandidateDefinitionIDs: candidates})
	if err != nil {
		return 0, err
	}
	g.notifyOne(who, rules.ExposedMutation{Kind: rules.ExposedSelectCardDone, Who: who, TargetDefinitionID: resp.SelectedDefinitionID})
	g.notifyOne(who.Flip(), rules.ExposedMutation{Kind: rules.ExposedSelectCardDone, Who: who})
	return resp.SelectedDefinitionID, nil
}
