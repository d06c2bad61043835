// Package effects is the runtime used by authored skill actions. A Context
// wraps a private mutator over the snapshot a skill receives; every change
// it makes is collected into the rules.SkillResult handed back to the
// executor.
package effects

import (
	"slices"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// ActionFunc is the body of an authored skill.
type ActionFunc func(c *Context, arg rules.EventArg) error

// Wrap turns an ActionFunc into a rules.SkillAction.
func Wrap(fn ActionFunc) rules.SkillAction {
	return func(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg) (*rules.GameState, rules.SkillResult, error) {
		c := NewContext(st, info, arg, nil)
		if err := fn(c, arg); err != nil {
			return nil, rules.SkillResult{}, err
		}
		next, result := c.Finish()
		return next, result, nil
	}
}

// Context is handed to a skill body. It is used by a single goroutine.
type Context struct {
	m          *mutator.Mutator
	info       rules.SkillInfo
	arg        rules.EventArg
	events     []rules.Event
	mutations  []rules.Mutation
	exposed    []rules.ExposedMutation
	mainDamage *rules.DamageInfo
}

// NewContext opens a context over st for one invocation of info.
func NewContext(st *rules.GameState, info rules.SkillInfo, arg rules.EventArg, logger *zap.Logger) *Context {
	c := &Context{info: info, arg: arg}
	c.m = mutator.New(st, mutator.Hooks{
		OnNotify: func(n mutator.Notification) {
			c.mutations = append(c.mutations, n.Mutations...)
			c.exposed = append(c.exposed, n.Exposed...)
		},
	}, logger)
	return c
}

// Finish flushes the private mutator and returns the skill's outcome.
func (c *Context) Finish() (*rules.GameState, rules.SkillResult) {
	c.m.Notify(mutator.NotifyOption{})
	return c.m.State(), rules.SkillResult{
		Events:     c.events,
		Mutations:  c.mutations,
		Exposed:    c.exposed,
		MainDamage: c.mainDamage,
	}
}

func (c *Context) State() *rules.GameState { return c.m.State() }
func (c *Context) Info() rules.SkillInfo    { return c.info }
func (c *Context) Arg() rules.EventArg      { return c.arg }

// Events returns what the skill emitted so far.
func (c *Context) Events() []rules.Event { return c.events }

// Self returns the current state of the caller.
func (c *Context) Self() (rules.AnyState, error) {
	return rules.EntityByID(c.State(), c.info.Caller.StateID())
}

// Who returns the side owning the caller.
func (c *Context) Who() rules.Who {
	area, err := rules.AreaOf(c.State(), c.info.Caller.StateID())
	if err != nil {
		return c.State().CurrentTurn
	}
	return area.Who
}

func (c *Context) callerRemoved() bool {
	area, err := rules.AreaOf(c.State(), c.info.Caller.StateID())
	return err != nil || area.Type == rules.AreaRemoved
}

// MyActive and OppActive return the active characters of both sides.
func (c *Context) MyActive() (rules.CharacterState, error) {
	return rules.ActiveCharacter(c.State(), c.Who())
}

func (c *Context) OppActive() (rules.CharacterState, error) {
	return rules.ActiveCharacter(c.State(), c.Who().Flip())
}

// Query resolves an authored target query.
func (c *Context) Query(resolver rules.QueryResolver, query string) ([]rules.AnyState, error) {
	return resolver.Resolve(c.State(), c.Who(), query)
}

// Emit queues an event for the executor.
func (c *Context) Emit(name rules.EventName, arg rules.EventArg) {
	c.events = append(c.events, rules.NewEvent(name, arg))
}

func (c *Context) emitAll(events []rules.Event) {
	c.events = append(c.events, events...)
}

func (c *Context) character(id int) (rules.CharacterState, rules.Who, error) {
	ch, err := rules.CharacterByID(c.State(), id)
	if err != nil {
		return rules.CharacterState{}, 0, err
	}
	area, err := rules.AreaOf(c.State(), id)
	if err != nil {
		return rules.CharacterState{}, 0, err
	}
	return ch, area.Who, nil
}

// Damage deals damage from the caller to a character. Dead targets are
// skipped. The first damage of a character skill to the opposing active
// character is the skill's main damage.
func (c *Context) Damage(typ rules.DamageType, value int, targetID int) error {
	target, targetWho, err := c.character(targetID)
	if err != nil {
		return err
	}
	if !target.Alive() {
		return nil
	}
	st := c.State()
	isActive := st.Players[targetWho].ActiveCharacterID == target.ID
	callerWho := c.Who()
	main := c.mainDamage == nil &&
		c.info.Definition != nil &&
		c.info.Definition.Type.IsCharacterSkill(false) &&
		c.info.Caller.IsCharacter() &&
		typ != rules.DamagePiercing &&
		targetWho != callerWho && isActive
	info := rules.DamageInfo{
		Type:              typ,
		Value:             value,
		ExpectedValue:     value,
		Source:            c.info.Caller,
		Via:               c.info,
		Target:            target,
		TargetAura:        target.AuraOf(),
		IsSkillMainDamage: main,
		RoundNumber:       st.RoundNumber,
	}
	dealt, events, err := c.m.Damage(info, mutator.DamageOption{
		Via:            c.info,
		CallerWho:      callerWho,
		TargetWho:      targetWho,
		TargetIsActive: isActive,
	})
	if err != nil {
		return err
	}
	if main {
		c.mainDamage = &dealt
	}
	c.emitAll(events)
	return nil
}

// Heal heals a character.
func (c *Context) Heal(value int, targetID int, kind rules.HealKind) error {
	target, _, err := c.character(targetID)
	if err != nil {
		return err
	}
	if kind == "" {
		kind = rules.HealCommon
	}
	events, err := c.m.Heal(value, target, mutator.HealOption{Via: c.info, Kind: kind})
	if err != nil {
		return err
	}
	c.emitAll(events)
	return nil
}

// ApplyAura applies an element to a character without dealing damage.
func (c *Context) ApplyAura(element rules.DamageType, targetID int) error {
	target, targetWho, err := c.character(targetID)
	if err != nil {
		return err
	}
	events, err := c.m.ApplyAura(target, element, mutator.ApplyOption{DamageOption: mutator.DamageOption{
		Via:            c.info,
		CallerWho:      c.Who(),
		TargetWho:      targetWho,
		TargetIsActive: c.State().Players[targetWho].ActiveCharacterID == target.ID,
	}})
	if err != nil {
		return err
	}
	c.emitAll(events)
	return nil
}

// CreateEntity creates or refreshes an entity of a definition in an area.
func (c *Context) CreateEntity(definitionID int, area rules.EntityArea, opt mutator.CreateEntityOptions) (*rules.EntityState, error) {
	def, err := c.State().Data.Definition(definitionID)
	if err != nil {
		return nil, err
	}
	switch def.Type {
	case rules.TypeCharacter, rules.TypeEventCard:
		return nil, rules.NewDataError("cannot create %s %d as entity", def.Type, def.ID)
	}
	if area.Type == rules.AreaSupports && len(c.State().Players[area.Who].Supports) >= c.State().Config.MaxSupportsCount {
		return nil, nil
	}
	res, err := c.m.CreateEntity(def, area, opt)
	if err != nil {
		return nil, err
	}
	c.emitAll(res.Events)
	return res.New, nil
}

// CharacterStatus attaches a status to a character.
func (c *Context) CharacterStatus(definitionID int, characterID int) (*rules.EntityState, error) {
	area, err := rules.AreaOf(c.State(), characterID)
	if err != nil {
		return nil, err
	}
	return c.CreateEntity(definitionID, rules.EntityArea{Who: area.Who, Type: rules.AreaCharacters, CharacterID: characterID}, mutator.CreateEntityOptions{})
}

// CombatStatus creates a combat status on a side.
func (c *Context) CombatStatus(definitionID int, who rules.Who) (*rules.EntityState, error) {
	return c.CreateEntity(definitionID, rules.EntityArea{Who: who, Type: rules.AreaCombatStatuses}, mutator.CreateEntityOptions{})
}

// Summon creates a summon on the caller's side.
func (c *Context) Summon(definitionID int) (*rules.EntityState, error) {
	return c.CreateEntity(definitionID, rules.EntityArea{Who: c.Who(), Type: rules.AreaSummons}, mutator.CreateEntityOptions{})
}

// Dispose removes an entity and raises onDispose. The disposed entity
// itself may still react to it.
func (c *Context) Dispose(id int, reason string) error {
	st := c.State()
	found, err := rules.EntityByID(st, id)
	if err != nil {
		return err
	}
	entity, ok := found.(rules.EntityState)
	if !ok {
		return rules.NewDataError("cannot dispose character %d", id)
	}
	from, err := rules.AreaOf(st, id)
	if err != nil {
		return err
	}
	if from.Type == rules.AreaRemoved {
		return nil
	}
	done := c.m.SubLog("dispose", zap.String("entity", entity.String()), zap.String("reason", reason))
	defer done()
	if err := c.m.Mutate(&rules.RemoveEntity{ID: id, Reason: reason}); err != nil {
		return err
	}
	// onDispose is raised on the snapshot the entity was still part of.
	c.Emit(rules.EventDispose, rules.NewDisposeArg(st, entity, reason, from))
	return nil
}

// SetVariable writes a declared variable of an entity or character.
func (c *Context) SetVariable(id int, name string, value int) error {
	found, err := rules.EntityByID(c.State(), id)
	if err != nil {
		return err
	}
	old, err := rules.Variable(c.State(), found, name)
	if err != nil {
		return err
	}
	dir := rules.DirectionNone
	switch {
	case value > old:
		dir = rules.DirectionIncrease
	case value < old:
		dir = rules.DirectionDecrease
	}
	return c.m.Mutate(&rules.ModifyEntityVar{ID: id, VarName: name, Value: value, Direction: dir})
}

// AddVariable adds delta to a declared variable.
func (c *Context) AddVariable(id int, name string, delta int) error {
	found, err := rules.EntityByID(c.State(), id)
	if err != nil {
		return err
	}
	old, err := rules.Variable(c.State(), found, name)
	if err != nil {
		return err
	}
	return c.SetVariable(id, name, old+delta)
}

// ConsumeUsage lowers the caller's usage and disposes it at zero when its
// definition asks for it.
func (c *Context) ConsumeUsage(n int) error {
	if c.callerRemoved() {
		return nil
	}
	self, err := c.Self()
	if err != nil {
		return err
	}
	usage, err := rules.Variable(c.State(), self, rules.VarUsage)
	if err != nil {
		return err
	}
	left := max(0, usage-n)
	if err := c.SetVariable(self.StateID(), rules.VarUsage, left); err != nil {
		return err
	}
	if left == 0 && c.State().MustDefinition(self).DisposeWhenUsageIsZero {
		return c.Dispose(self.StateID(), "usage")
	}
	return nil
}

// GainEnergy adds energy to a character.
func (c *Context) GainEnergy(n int, characterID int) error {
	return c.AddVariable(characterID, rules.VarEnergy, n)
}

// TransformDefinition swaps the definition of an entity or character.
func (c *Context) TransformDefinition(id int, newDefinitionID int) error {
	if _, err := c.State().Data.Definition(newDefinitionID); err != nil {
		return err
	}
	return c.m.Mutate(&rules.TransformDefinition{ID: id, NewDefinitionID: newDefinitionID})
}

// SwitchActive switches the active character of the target's side.
func (c *Context) SwitchActive(characterID int) error {
	target, who, err := c.character(characterID)
	if err != nil {
		return err
	}
	if !target.Alive() {
		return nil
	}
	via := c.info
	events, err := c.m.SwitchActive(who, target, mutator.SwitchActiveOption{Via: &via})
	if err != nil {
		return err
	}
	c.emitAll(events)
	return nil
}

// DrawCards draws from the pile of a side.
func (c *Context) DrawCards(n int, who rules.Who) error {
	events, err := c.m.DrawCards(who, n)
	if err != nil {
		return err
	}
	c.emitAll(events)
	return nil
}

// CreateHandCard creates a card in the hands of a side.
func (c *Context) CreateHandCard(definitionID int, who rules.Who) error {
	events, err := c.m.CreateHandCard(who, definitionID)
	if err != nil {
		return err
	}
	c.emitAll(events)
	return nil
}

// CreatePileCards creates cards of a definition in the pile of a side.
func (c *Context) CreatePileCards(definitionID int, count int, who rules.Who, strategy mutator.PileStrategy) error {
	def, err := c.State().Data.Definition(definitionID)
	if err != nil {
		return err
	}
	payloads := make([]rules.Mutation, 0, count)
	for i := 0; i < count; i++ {
		payloads = append(payloads, &rules.CreateCard{Value: rules.EntityState{DefinitionID: def.ID, Variables: def.InitialVariables(nil)}})
	}
	return c.m.InsertPileCards(who, payloads, strategy)
}

// DisposeCard removes a card from hands or pile.
func (c *Context) DisposeCard(who rules.Who, cardID int, where rules.AreaType) error {
	return c.m.Mutate(&rules.RemoveCard{Who: who, Where: where, ID: cardID, Reason: "disposed"})
}

// GenerateDice adds dice to a side, dropping what exceeds MaxDiceCount.
// Void generates random faces.
func (c *Context) GenerateDice(t dice.Type, n int, who rules.Who) error {
	st := c.State()
	room := st.Config.MaxDiceCount - len(st.Players[who].Dice)
	n = min(n, room)
	if n <= 0 {
		return nil
	}
	var added []dice.Type
	if t == dice.Void {
		rolled, err := c.m.RandomDice(n)
		if err != nil {
			return err
		}
		added = rolled
	} else {
		added = slices.Repeat([]dice.Type{t}, n)
	}
	current := c.State().Players[who].Dice
	value := rules.SortDice(c.State(), who, append(slices.Clone(current), added...))
	return c.m.Mutate(&rules.ResetDice{Who: who, Value: value, Reason: "generate"})
}

// AbsorbDice removes n dice from a side, taking the last ones first.
func (c *Context) AbsorbDice(n int, who rules.Who) ([]dice.Type, error) {
	current := c.State().Players[who].Dice
	n = min(n, len(current))
	taken := slices.Clone(current[len(current)-n:])
	if err := c.m.Mutate(&rules.ResetDice{Who: who, Value: slices.Clone(current[:len(current)-n]), Reason: "absorb"}); err != nil {
		return nil, err
	}
	return taken, nil
}

// SetExtensionState replaces the values of an extension.
func (c *Context) SetExtensionState(definitionID int, values map[string]int) error {
	return c.m.Mutate(&rules.MutateExtensionState{DefinitionID: definitionID, Values: values})
}

// SetPlayerFlag toggles a flag such as skipNextTurn.
func (c *Context) SetPlayerFlag(who rules.Who, flag rules.PlayerFlag, value bool) error {
	return c.m.Mutate(&rules.SetPlayerFlag{Who: who, Flag: flag, Value: value})
}

// RequestReroll asks a side for extra reroll rounds.
func (c *Context) RequestReroll(who rules.Who, times int) {
	c.Emit(rules.RequestReroll, rules.NewRerollRequest(c.State(), who, times))
}

// RequestSwitchHands asks a side to switch hands.
func (c *Context) RequestSwitchHands(who rules.Who) {
	c.Emit(rules.RequestSwitchHands, rules.NewSwitchHandsRequest(c.State(), who))
}

// RequestSelectCard asks the caller's side to pick one definition.
func (c *Context) RequestSelectCard(kind rules.SelectCardKind, definitionIDs []int) {
	c.Emit(rules.RequestSelectCard, rules.NewSelectCardRequest(c.State(), c.Who(), c.info, rules.SelectCardInfo{
		Kind:          kind,
		DefinitionIDs: slices.Clone(definitionIDs),
	}))
}

// RequestUseSkill asks the executor to run a skill of the caller's active
// character.
func (c *Context) RequestUseSkill(skillID int) error {
	active, err := c.MyActive()
	if err != nil {
		return err
	}
	via := c.info
	c.Emit(rules.RequestUseSkill, rules.NewUseSkillRequest(c.State(), c.Who(), active, skillID, &via))
	return nil
}

// TriggerEndPhaseSkill runs the onEndPhase skill of an entity out of band.
func (c *Context) TriggerEndPhaseSkill(entityID int) error {
	found, err := rules.EntityByID(c.State(), entityID)
	if err != nil {
		return err
	}
	entity, ok := found.(rules.EntityState)
	if !ok {
		return rules.NewDataError("%d is not an entity", entityID)
	}
	area, err := rules.AreaOf(c.State(), entityID)
	if err != nil {
		return err
	}
	c.Emit(rules.RequestTriggerEndPhaseSkill, rules.NewTriggerEndPhaseSkillRequest(c.State(), area.Who, entity))
	return nil
}

// CountOfSkill reports how often a character definition used a skill this
// round on the caller's side.
func (c *Context) CountOfSkill(characterDefinitionID, skillID int) int {
	n := 0
	for _, id := range c.State().Players[c.Who()].RoundSkillLog[characterDefinitionID] {
		if id == skillID {
			n++
		}
	}
	return n
}
