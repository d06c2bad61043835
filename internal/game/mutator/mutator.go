// Package mutator owns the authoritative snapshot of a match. Every change is
// a rules.Mutation applied through Mutate; buffered mutations are flushed to
// the host by Notify and NotifyAndPause.
package mutator

import (
	"context"
	"fmt"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// NotifyOption controls one flush of the notify buffer.
type NotifyOption struct {
	// Force calls OnNotify even when nothing is buffered.
	Force     bool
	CanResume bool
	Exposed   []rules.ExposedMutation
}

// Notification is what OnNotify receives.
type Notification struct {
	State     *rules.GameState
	CanResume bool
	Mutations []rules.Mutation
	Exposed   []rules.ExposedMutation
}

// Pause is what OnPause receives: everything that changed since the
// previous pause.
type Pause struct {
	State     *rules.GameState
	CanResume bool
	Mutations []rules.Mutation
}

// Hooks are the host callbacks of a mutator. Decision hooks may be nil, in
// which case the matching primitive fails with rules.ErrIONotProvided.
type Hooks struct {
	OnNotify func(n Notification)
	OnPause  func(ctx context.Context, p Pause) error

	ChooseActive func(ctx context.Context, who rules.Who, candidates []int) (int, error)
	Reroll       func(ctx context.Context, who rules.Who) ([]dice.Type, error)
	SwitchHands  func(ctx context.Context, who rules.Who) ([]int, error)
	SelectCard   func(ctx context.Context, who rules.Who, candidates []int) (int, error)
}

// Mutator applies mutations to a snapshot and buffers them for the host.
// It is not safe for concurrent mutation; decision hooks may read State
// concurrently while the owner goroutine waits.
type Mutator struct {
	state    *rules.GameState
	hooks    Hooks
	logger   *zap.Logger
	toNotify []rules.Mutation
	toPause  []rules.Mutation
	depth    int
}

// New creates a mutator over an initial snapshot.
func New(state *rules.GameState, hooks Hooks, logger *zap.Logger) *Mutator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mutator{
		state:  state,
		hooks:  hooks,
		logger: logger,
	}
}

// State returns the current snapshot.
func (m *Mutator) State() *rules.GameState {
	return m.state
}

// Logger returns the logger used for mutation traces.
func (m *Mutator) Logger() *zap.Logger {
	return m.logger
}

// Mutate applies one mutation and buffers it. Zero ids of created values and
// the stepRandom value are filled in place before applying.
func (m *Mutator) Mutate(mut rules.Mutation) error {
	switch v := mut.(type) {
	case *rules.StepRandom:
		v.Value = rules.NextRandom(m.state.Iterators.Random)
	case *rules.CreateEntity:
		if v.Value.ID == 0 {
			v.Value.ID = m.state.Iterators.ID
		}
	case *rules.CreateCard:
		if v.Value.ID == 0 {
			v.Value.ID = m.state.Iterators.ID
		}
	case *rules.CreateCharacter:
		if v.Value.ID == 0 {
			v.Value.ID = m.state.Iterators.ID
		}
	}
	next, err := rules.Apply(m.state, mut)
	if err != nil {
		return fmt.Errorf("apply %s: %w", mut.Type(), err)
	}
	m.state = next
	if str := rules.StringifyMutation(mut); str != "" {
		m.logger.Debug("mutation", zap.String("mutation", str), zap.Int("depth", m.depth))
	}
	m.toNotify = append(m.toNotify, mut)
	m.toPause = append(m.toPause, mut)
	return nil
}

// MutateAll applies mutations in order and stops at the first failure.
func (m *Mutator) MutateAll(muts ...rules.Mutation) error {
	for _, mut := range muts {
		if err := m.Mutate(mut); err != nil {
			return err
		}
	}
	return nil
}

// ResetState swaps in the snapshot a skill produced. The skill's mutations
// are appended to both buffers and flushed with its exposed mutations.
func (m *Mutator) ResetState(next *rules.GameState, muts []rules.Mutation, exposed []rules.ExposedMutation) {
	if len(m.toNotify) > 0 {
		m.logger.Warn("resetting state with pending mutations", zap.Int("pending", len(m.toNotify)))
	}
	m.state = next
	m.toNotify = append(m.toNotify, muts...)
	m.toPause = append(m.toPause, muts...)
	m.Notify(NotifyOption{Exposed: exposed})
}

// Notify flushes the notify buffer.
func (m *Mutator) Notify(opt NotifyOption) {
	n := Notification{
		State:     m.state,
		CanResume: opt.CanResume,
		Mutations: m.toNotify,
		Exposed:   opt.Exposed,
	}
	m.toNotify = nil
	if !opt.Force && len(n.Mutations) == 0 && len(n.Exposed) == 0 {
		return
	}
	if m.hooks.OnNotify != nil {
		m.hooks.OnNotify(n)
	}
}

// NotifyAndPause flushes both buffers and waits for the host to accept the
// pause.
func (m *Mutator) NotifyAndPause(ctx context.Context, opt NotifyOption) error {
	m.Notify(opt)
	p := Pause{
		State:     m.state,
		CanResume: opt.CanResume,
		Mutations: m.toPause,
	}
	m.toPause = nil
	if m.hooks.OnPause == nil {
		return nil
	}
	if err := m.hooks.OnPause(ctx, p); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	return nil
}

// SubLog opens a nested log scope. Call the returned function to close it.
func (m *Mutator) SubLog(msg string, fields ...zap.Field) func() {
	m.logger.Debug(msg, append(fields, zap.Int("depth", m.depth))...)
	m.depth++
	return func() {
		m.depth--
	}
}

// StepRandom advances the random cursor and returns the new value.
func (m *Mutator) StepRandom() (int, error) {
	mut := &rules.StepRandom{}
	if err := m.Mutate(mut); err != nil {
		return 0, err
	}
	return mut.Value, nil
}

// RandomDice rolls count dice. Omni is one of the eight faces.
func (m *Mutator) RandomDice(count int) ([]dice.Type, error) {
	result := make([]dice.Type, 0, count)
	for i := 0; i < count; i++ {
		v, err := m.StepRandom()
		if err != nil {
			return nil, err
		}
		result = append(result, dice.Type(v%8+1))
	}
	return result, nil
}
