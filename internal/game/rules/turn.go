package rules

import (
	"fmt"
	"strings"
)

// Phase represents the phases a match moves through.
type Phase int

const (
	PhaseInitHands Phase = iota
	PhaseInitActives
	PhaseRoll
	PhaseAction
	PhaseEnd
	PhaseGameEnd
)

var phaseNames = map[Phase]string{
	PhaseInitHands:   "initHands",
	PhaseInitActives: "initActives",
	PhaseRoll:        "roll",
	PhaseAction:      "action",
	PhaseEnd:         "end",
	PhaseGameEnd:     "gameEnd",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(name string) (Phase, error) {
	name = strings.TrimSpace(name)
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// phaseTransitions lists the legal successors of every phase. gameEnd may be
// entered from anywhere.
var phaseTransitions = map[Phase][]Phase{
	PhaseInitHands:   {PhaseInitActives},
	PhaseInitActives: {PhaseRoll},
	PhaseRoll:        {PhaseAction},
	PhaseAction:      {PhaseEnd},
	PhaseEnd:         {PhaseRoll},
}

// CanTransition reports whether a changePhase from one phase to another is legal.
func CanTransition(from, to Phase) bool {
	if to == PhaseGameEnd {
		return from != PhaseGameEnd
	}
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Who identifies one of the two sides of a match.
type Who int8

const (
	Player0 Who = 0
	Player1 Who = 1
)

// Flip returns the opponent.
func (w Who) Flip() Who {
	return 1 - w
}

func (w Who) Valid() bool {
	return w == Player0 || w == Player1
}

func (w Who) String() string {
	return fmt.Sprintf("player%d", int(w))
}

// TurnOrder returns the current-turn side followed by its opponent.
func TurnOrder(current Who) [2]Who {
	return [2]Who{current, current.Flip()}
}
