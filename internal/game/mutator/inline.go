package mutator

import (
	"fmt"

	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// executeInline runs a skill action synchronously against the current
// snapshot and commits its result.
func (m *Mutator) executeInline(action rules.SkillAction, info rules.SkillInfo, arg rules.EventArg) ([]rules.Event, error) {
	m.Notify(NotifyOption{})
	next, result, err := action(m.state, info, arg)
	if err != nil {
		return nil, fmt.Errorf("inline %s: %w", info, err)
	}
	if next == nil {
		return nil, rules.NewInternalError("inline %s returned no state", info)
	}
	m.ResetState(next, result.Mutations, result.Exposed)
	return result.Events, nil
}

// handleInlineEvent runs every listener of a modifier event in scan order,
// checking each filter against the snapshot as it is when its turn comes.
// Modifier args are shared and mutated by the listeners.
func (m *Mutator) handleInlineEvent(parent rules.SkillInfo, name rules.EventName, arg rules.EventArg) ([]rules.Event, error) {
	done := m.SubLog("handling inline event", zap.String("event", string(name)), zap.String("arg", arg.String()))
	defer done()

	var events []rules.Event
	for _, cs := range rules.AllSkills(m.state, name) {
		info := rules.SkillInfo{
			Caller:     cs.Caller,
			Definition: cs.Skill,
			IsPreview:  parent.IsPreview,
		}
		if !cs.Skill.Accepts(m.state, info, arg) {
			continue
		}
		m.logger.Debug("using inline skill", zap.Int("skill_id", cs.Skill.ID), zap.String("caller", rules.Stringify(cs.Caller)))
		emitted, err := m.executeInline(cs.Skill.Action, info, arg)
		if err != nil {
			return nil, err
		}
		events = append(events, emitted...)
	}
	return events, nil
}
