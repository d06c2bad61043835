package effects

import (
	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/rules"
)

// SkillBuilder provides a fluent API for authoring skills.
type SkillBuilder struct {
	def        rules.SkillDefinition
	filters    []rules.SkillFilter
	body       ActionFunc
	usage      int
	perRound   int
	roundsUsed bool
}

// NewSkill starts a triggered skill listening to an event.
func NewSkill(id int, on rules.EventName) *SkillBuilder {
	return &SkillBuilder{def: rules.SkillDefinition{ID: id, Type: rules.SkillTriggered, TriggerOn: on}}
}

// NewInitiativeSkill starts a skill used as an action.
func NewInitiativeSkill(id int, typ rules.SkillType) *SkillBuilder {
	return &SkillBuilder{def: rules.SkillDefinition{
		ID:         id,
		Type:       typ,
		TriggerOn:  rules.TriggerInitiative,
		Initiative: &rules.InitiativeConfig{RequiredCost: dice.Requirement{}},
		GainEnergy: typ == rules.SkillNormal || typ == rules.SkillElemental,
	}}
}

// NewCardSkill starts the play skill of a card.
func NewCardSkill(id int) *SkillBuilder {
	b := NewInitiativeSkill(id, rules.SkillPlayCard)
	b.def.GainEnergy = false
	return b
}

// Cost adds to the required cost of an initiative skill.
func (b *SkillBuilder) Cost(t dice.Type, n int) *SkillBuilder {
	if b.def.Initiative != nil {
		b.def.Initiative.RequiredCost = b.def.Initiative.RequiredCost.Add(t, n)
	}
	return b
}

// Fast marks an initiative skill as not ending the turn.
func (b *SkillBuilder) Fast() *SkillBuilder {
	if b.def.Initiative != nil {
		b.def.Initiative.Fast = true
	}
	return b
}

// Prepared hides an initiative skill from the action list.
func (b *SkillBuilder) Prepared() *SkillBuilder {
	if b.def.Initiative != nil {
		b.def.Initiative.Prepared = true
	}
	return b
}

// NoEnergy stops the caller from gaining energy.
func (b *SkillBuilder) NoEnergy() *SkillBuilder {
	b.def.GainEnergy = false
	return b
}

// Targets sets the target candidates of an initiative skill.
func (b *SkillBuilder) Targets(fn rules.TargetFunc) *SkillBuilder {
	if b.def.Initiative != nil {
		b.def.Initiative.GetTarget = fn
	}
	return b
}

// If adds a filter. All filters must accept.
func (b *SkillBuilder) If(filter rules.SkillFilter) *SkillBuilder {
	b.filters = append(b.filters, filter)
	return b
}

// ConsumeUsage makes the skill spend n usage after each run.
func (b *SkillBuilder) ConsumeUsage(n int) *SkillBuilder {
	b.usage = n
	return b
}

// UsagePerRound limits how often the skill fires in a round. The count is
// kept in the caller's "usagePerRound" variable, reset by the host.
func (b *SkillBuilder) UsagePerRound(n int) *SkillBuilder {
	b.perRound = n
	b.roundsUsed = true
	return b
}

// Do sets the body.
func (b *SkillBuilder) Do(fn ActionFunc) *SkillBuilder {
	b.body = fn
	return b
}

// VarUsagePerRound counts the uses of a UsagePerRound skill this round.
const VarUsagePerRound = "usagePerRound"

// Build returns the skill definition.
func (b *SkillBuilder) Build() *rules.SkillDefinition {
	def := b.def
	filters := append([]rules.SkillFilter(nil), b.filters...)
	if b.roundsUsed {
		limit := b.perRound
		filters = append(filters, func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) bool {
			used, err := rules.Variable(st, info.Caller, VarUsagePerRound)
			return err == nil && used < limit
		})
	}
	if len(filters) > 0 {
		def.Filter = func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) bool {
			for _, f := range filters {
				if !f(st, info, arg) {
					return false
				}
			}
			return true
		}
	}
	body, usage, counted := b.body, b.usage, b.roundsUsed
	def.Action = Wrap(func(c *Context, arg rules.EventArg) error {
		if body != nil {
			if err := body(c, arg); err != nil {
				return err
			}
		}
		if counted && !c.callerRemoved() {
			if err := c.AddVariable(c.info.Caller.StateID(), VarUsagePerRound, 1); err != nil {
				return err
			}
		}
		if usage > 0 {
			return c.ConsumeUsage(usage)
		}
		return nil
	})
	return &def
}
