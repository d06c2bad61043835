package rules

import (
	"fmt"
	"strings"

	"github.com/magefree/tcg-server-go/internal/game/dice"
)

// EventName identifies what happened. Skills declare the event they react to.
type EventName string

const (
	// TriggerInitiative marks skills used as a player action rather than in reaction to an event.
	TriggerInitiative EventName = "initiative"

	// Phase events
	EventBattleBegin EventName = "onBattleBegin"
	EventRoundBegin  EventName = "onRoundBegin"
	EventActionPhase EventName = "onActionPhase"
	EventEndPhase    EventName = "onEndPhase"
	EventRoundEnd    EventName = "onRoundEnd"

	// Action events
	EventBeforeAction   EventName = "onBeforeAction"
	EventReplaceAction  EventName = "replaceAction"
	EventAction         EventName = "onAction"
	EventBeforeUseSkill EventName = "onBeforeUseSkill"
	EventUseSkill       EventName = "onUseSkill"
	EventBeforePlayCard EventName = "onBeforePlayCard"
	EventPlayCard       EventName = "onPlayCard"
	EventSwitchActive   EventName = "onSwitchActive"

	// Board events
	EventDamageOrHeal      EventName = "onDamageOrHeal"
	EventReaction          EventName = "onReaction"
	EventEnter             EventName = "onEnter"
	EventDispose           EventName = "onDispose"
	EventRevive            EventName = "onRevive"
	EventHandCardInserted  EventName = "onHandCardInserted"
	EventModifyRoll        EventName = "modifyRoll"
	EventModifyZeroHealth  EventName = "modifyZeroHealth"
	EventModifyAction0     EventName = "modifyAction0"
	EventModifyAction1     EventName = "modifyAction1"
	EventModifyAction2     EventName = "modifyAction2"
	EventModifyAction3     EventName = "modifyAction3"
	EventModifyDamage0     EventName = "modifyDamage0"
	EventModifyDamage1     EventName = "modifyDamage1"
	EventModifyDamage2     EventName = "modifyDamage2"
	EventModifyDamage3     EventName = "modifyDamage3"
	EventModifyHeal0       EventName = "modifyHeal0"
	EventModifyHeal1       EventName = "modifyHeal1"
	EventReactionEffect    EventName = "reactionEffect"

	// Requests are resolved by the executor instead of being broadcast.
	RequestReroll               EventName = "requestReroll"
	RequestSwitchHands          EventName = "requestSwitchHands"
	RequestUseSkill             EventName = "requestUseSkill"
	RequestSelectCard           EventName = "requestSelectCard"
	RequestTriggerEndPhaseSkill EventName = "requestTriggerEndPhaseSkill"
)

// ModifyActionEvents are dispatched in order before an action is applied.
var ModifyActionEvents = []EventName{EventModifyAction0, EventModifyAction1, EventModifyAction2, EventModifyAction3}

// IsRequest reports whether the event is a host request.
func (n EventName) IsRequest() bool {
	switch n {
	case RequestReroll, RequestSwitchHands, RequestUseSkill, RequestSelectCard, RequestTriggerEndPhaseSkill:
		return true
	}
	return false
}

// EventArg is the payload of an event. State returns the snapshot at the
// moment the event was raised.
type EventArg interface {
	State() *GameState
	String() string
}

// Event pairs a name with its payload.
type Event struct {
	Name EventName
	Arg  EventArg
}

func NewEvent(name EventName, arg EventArg) Event {
	return Event{Name: name, Arg: arg}
}

func (e Event) String() string {
	if e.Arg == nil {
		return string(e.Name)
	}
	return fmt.Sprintf("%s(%s)", e.Name, e.Arg.String())
}

type onTime struct {
	state *GameState
}

func (o onTime) State() *GameState { return o.state }

// GenericArg carries only the on-time state.
type GenericArg struct {
	onTime
}

func NewGenericArg(st *GameState) *GenericArg {
	return &GenericArg{onTime{st}}
}

func (a *GenericArg) String() string { return "" }

// PlayerArg names a side.
type PlayerArg struct {
	onTime
	Who Who
}

func NewPlayerArg(st *GameState, who Who) *PlayerArg {
	return &PlayerArg{onTime{st}, who}
}

func (a *PlayerArg) String() string { return a.Who.String() }

// InitiativeArg carries the chosen targets of an initiative skill.
type InitiativeArg struct {
	onTime
	Targets []AnyState
}

func NewInitiativeArg(st *GameState, targets []AnyState) *InitiativeArg {
	return &InitiativeArg{onTime{st}, targets}
}

func (a *InitiativeArg) String() string { return fmt.Sprintf("targets=%d", len(a.Targets)) }

// ActionArg is raised after an action finished.
type ActionArg struct {
	onTime
	Action *ActionInfo
}

func NewActionArg(st *GameState, action *ActionInfo) *ActionArg {
	return &ActionArg{onTime{st}, action}
}

func (a *ActionArg) String() string { return a.Action.String() }

// ModifyActionArg lets skills change the cost or speed of an action before it
// is applied.
type ModifyActionArg struct {
	onTime
	Action *ActionInfo
}

func NewModifyActionArg(st *GameState, action *ActionInfo) *ModifyActionArg {
	return &ModifyActionArg{onTime{st}, action}
}

func (a *ModifyActionArg) String() string { return a.Action.String() }

func (a *ModifyActionArg) AddCost(t dice.Type, n int) {
	a.Action.Cost = a.Action.Cost.Add(t, n)
}

// DeductCost removes up to n of a requirement entry.
func (a *ModifyActionArg) DeductCost(t dice.Type, n int) {
	a.Action.Cost = a.Action.Cost.Add(t, -n)
}

func (a *ModifyActionArg) SetFast() {
	a.Action.Fast = true
}

// UseSkillArg is raised around a character skill.
type UseSkillArg struct {
	onTime
	Who   Who
	Skill SkillInfo
}

func NewUseSkillArg(st *GameState, who Who, skill SkillInfo) *UseSkillArg {
	return &UseSkillArg{onTime{st}, who, skill}
}

func (a *UseSkillArg) String() string { return a.Skill.String() }

// PlayCardArg is raised around playing a card.
type PlayCardArg struct {
	onTime
	Action *ActionInfo
	Card   EntityState
}

func NewPlayCardArg(st *GameState, action *ActionInfo, card EntityState) *PlayCardArg {
	return &PlayCardArg{onTime{st}, action, card}
}

func (a *PlayCardArg) String() string { return a.Card.String() }

// SwitchActiveArg is raised after the active character changed.
type SwitchActiveArg struct {
	onTime
	Info SwitchActiveInfo
}

func NewSwitchActiveArg(st *GameState, info SwitchActiveInfo) *SwitchActiveArg {
	return &SwitchActiveArg{onTime{st}, info}
}

func (a *SwitchActiveArg) String() string {
	return fmt.Sprintf("%s: %s -> %s", a.Info.Who, a.Info.From, a.Info.To)
}

// DamageOrHealArg is raised after a damage or heal landed.
type DamageOrHealArg struct {
	onTime
	Info DamageInfo
	zero *ZeroHealthArg
}

func NewDamageOrHealArg(st *GameState, info DamageInfo) *DamageOrHealArg {
	return &DamageOrHealArg{onTime: onTime{st}, Info: info}
}

func (a *DamageOrHealArg) String() string { return a.Info.String() }

// WithZeroHealth returns a copy of a that also reports the outcome of the
// zero health check of its target.
func (a *DamageOrHealArg) WithZeroHealth(zero *ZeroHealthArg) *DamageOrHealArg {
	c := *a
	c.zero = zero
	return &c
}

// ImmuneInfo reports who kept the target alive after this damage brought it
// to zero health, nil when it did not or nobody did.
func (a *DamageOrHealArg) ImmuneInfo() *ImmuneInfo {
	if a.zero == nil {
		return nil
	}
	return a.zero.ImmuneInfo()
}

// ReactionArg is raised after an elemental reaction.
type ReactionArg struct {
	onTime
	Info ReactionInfo
}

func NewReactionArg(st *GameState, info ReactionInfo) *ReactionArg {
	return &ReactionArg{onTime{st}, info}
}

func (a *ReactionArg) String() string {
	return fmt.Sprintf("%s on %s", a.Info.Type, a.Info.Target)
}

// ReactionEffectArg is passed to the inline effect of a reaction.
type ReactionEffectArg struct {
	onTime
	Info       ReactionInfo
	TargetWho  Who
	CallerWho  Who
	IsActive   bool
	FromDamage bool
}

func (a *ReactionEffectArg) String() string {
	return fmt.Sprintf("%s effect on %s", a.Info.Type, a.Info.Target)
}

func NewReactionEffectArg(st *GameState, info ReactionInfo, targetWho, callerWho Who, isActive bool) *ReactionEffectArg {
	return &ReactionEffectArg{
		onTime:     onTime{st},
		Info:       info,
		TargetWho:  targetWho,
		CallerWho:  callerWho,
		IsActive:   isActive,
		FromDamage: info.FromDamage != nil,
	}
}

// EnterArg is raised when an entity is created or refreshed.
type EnterArg struct {
	onTime
	Overridden *EntityState
	NewState   EntityState
	Area       EntityArea
}

func NewEnterArg(st *GameState, overridden *EntityState, newState EntityState, area EntityArea) *EnterArg {
	return &EnterArg{onTime{st}, overridden, newState, area}
}

func (a *EnterArg) String() string { return a.NewState.String() }

// DisposeArg is raised after an entity left the board.
type DisposeArg struct {
	onTime
	Entity EntityState
	Reason string
	From   EntityArea
}

func NewDisposeArg(st *GameState, entity EntityState, reason string, from EntityArea) *DisposeArg {
	return &DisposeArg{onTime{st}, entity, reason, from}
}

func (a *DisposeArg) String() string {
	return fmt.Sprintf("%s (%s)", a.Entity, a.Reason)
}

// CharacterArg names a character.
type CharacterArg struct {
	onTime
	Character CharacterState
}

func NewCharacterArg(st *GameState, ch CharacterState) *CharacterArg {
	return &CharacterArg{onTime{st}, ch}
}

func (a *CharacterArg) String() string { return a.Character.String() }

// HandCardInsertedArg is raised when a card enters the hand.
type HandCardInsertedArg struct {
	onTime
	Who    Who
	Card   EntityState
	Reason string
}

func NewHandCardInsertedArg(st *GameState, who Who, card EntityState, reason string) *HandCardInsertedArg {
	return &HandCardInsertedArg{onTime{st}, who, card, reason}
}

func (a *HandCardInsertedArg) String() string {
	return fmt.Sprintf("%s %s (%s)", a.Who, a.Card, a.Reason)
}

// ModifyRollArg collects fixed dice and extra reroll rounds for one side.
type ModifyRollArg struct {
	onTime
	Who          Who
	fixed        []dice.Type
	extraRerolls int
}

func NewModifyRollArg(st *GameState, who Who) *ModifyRollArg {
	return &ModifyRollArg{onTime: onTime{st}, Who: who}
}

func (a *ModifyRollArg) String() string {
	return fmt.Sprintf("%s fixed=%v rerolls=+%d", a.Who, a.fixed, a.extraRerolls)
}

func (a *ModifyRollArg) FixDice(t dice.Type, n int) {
	for i := 0; i < n; i++ {
		a.fixed = append(a.fixed, t)
	}
}

func (a *ModifyRollArg) AddRerollTimes(n int) {
	a.extraRerolls += n
}

func (a *ModifyRollArg) FixedDice() []dice.Type {
	return append([]dice.Type(nil), a.fixed...)
}

func (a *ModifyRollArg) ExtraRerolls() int {
	return a.extraRerolls
}

// ModifyDamageArg is passed through the modifyDamage0..3 stages.
type ModifyDamageArg struct {
	onTime
	info DamageInfo
	log  []string
}

func NewModifyDamageArg(st *GameState, info DamageInfo) *ModifyDamageArg {
	return &ModifyDamageArg{onTime: onTime{st}, info: info}
}

func (a *ModifyDamageArg) String() string { return a.info.String() }

// Damage returns the modified damage; CauseDefeated is recomputed.
func (a *ModifyDamageArg) Damage() DamageInfo {
	info := a.info
	info.CauseDefeated = info.Target.Alive() && info.Target.Health() <= info.Value
	info.Log = strings.Join(a.log, " ")
	return info
}

func (a *ModifyDamageArg) Type() DamageType { return a.info.Type }
func (a *ModifyDamageArg) Value() int        { return a.info.Value }
func (a *ModifyDamageArg) Target() CharacterState {
	return a.info.Target
}

func (a *ModifyDamageArg) IncreaseDamage(n int) {
	a.info.Value += n
	a.log = append(a.log, fmt.Sprintf("+%d", n))
}

func (a *ModifyDamageArg) DecreaseDamage(n int) {
	n = min(n, a.info.Value)
	a.info.Value -= n
	a.log = append(a.log, fmt.Sprintf("-%d", n))
}

func (a *ModifyDamageArg) MultiplyDamage(n int) {
	a.info.Value *= n
	a.log = append(a.log, fmt.Sprintf("*%d", n))
}

// ChangeDamageType converts a physical damage into an element.
func (a *ModifyDamageArg) ChangeDamageType(t DamageType) {
	if a.info.Type == DamagePiercing {
		return
	}
	a.info.Type = t
	a.log = append(a.log, "type="+t.String())
}

// IncreaseDamageByReaction applies the reaction bonus between stage 0 and 1.
func (a *ModifyDamageArg) IncreaseDamageByReaction() {
	if bonus := a.info.Reaction().DamageBonus(); bonus > 0 {
		a.info.Value += bonus
		a.log = append(a.log, fmt.Sprintf("+%d(%s)", bonus, a.info.Reaction()))
	}
}

// ModifyHealArg is passed through the modifyHeal0..1 stages.
type ModifyHealArg struct {
	onTime
	info      DamageInfo
	cancelled bool
}

func NewModifyHealArg(st *GameState, info DamageInfo) *ModifyHealArg {
	return &ModifyHealArg{onTime: onTime{st}, info: info}
}

func (a *ModifyHealArg) String() string  { return a.info.String() }
func (a *ModifyHealArg) Heal() DamageInfo { return a.info }
func (a *ModifyHealArg) Cancelled() bool  { return a.cancelled }
func (a *ModifyHealArg) Cancel()          { a.cancelled = true }

func (a *ModifyHealArg) IncreaseHeal(n int) {
	a.info.Value += n
}

func (a *ModifyHealArg) DecreaseHeal(n int) {
	a.info.Value = max(0, a.info.Value-n)
}

// ImmuneInfo records which skill prevented a defeat and the health to revive to.
type ImmuneInfo struct {
	Skill     SkillInfo
	NewHealth int
}

// ZeroHealthArg is raised for a damage that would defeat its target.
type ZeroHealthArg struct {
	onTime
	Info   DamageInfo
	immune *ImmuneInfo
}

func NewZeroHealthArg(st *GameState, info DamageInfo) *ZeroHealthArg {
	return &ZeroHealthArg{onTime: onTime{st}, Info: info}
}

func (a *ZeroHealthArg) String() string { return a.Info.String() }

// Immune marks the target as surviving with newHealth. The first caller wins.
func (a *ZeroHealthArg) Immune(skill SkillInfo, newHealth int) {
	if a.immune != nil {
		return
	}
	a.immune = &ImmuneInfo{Skill: skill, NewHealth: newHealth}
}

func (a *ZeroHealthArg) ImmuneInfo() *ImmuneInfo { return a.immune }

// RerollRequest asks a player to reroll.
type RerollRequest struct {
	onTime
	Who   Who
	Times int
}

func NewRerollRequest(st *GameState, who Who, times int) *RerollRequest {
	return &RerollRequest{onTime{st}, who, times}
}

func (a *RerollRequest) String() string { return fmt.Sprintf("%s x%d", a.Who, a.Times) }

// SwitchHandsRequest asks a player to switch hands.
type SwitchHandsRequest struct {
	onTime
	Who Who
}

func NewSwitchHandsRequest(st *GameState, who Who) *SwitchHandsRequest {
	return &SwitchHandsRequest{onTime{st}, who}
}

func (a *SwitchHandsRequest) String() string { return a.Who.String() }

// UseSkillRequest asks the executor to run another skill.
type UseSkillRequest struct {
	onTime
	Who     Who
	Caller  AnyState
	SkillID int
	Via     *SkillInfo
}

func NewUseSkillRequest(st *GameState, who Who, caller AnyState, skillID int, via *SkillInfo) *UseSkillRequest {
	return &UseSkillRequest{onTime{st}, who, caller, skillID, via}
}

func (a *UseSkillRequest) String() string {
	return fmt.Sprintf("skill %d by %s", a.SkillID, Stringify(a.Caller))
}

// SelectCardRequest asks a player to pick one of several definitions.
type SelectCardRequest struct {
	onTime
	Who  Who
	Via  SkillInfo
	Info SelectCardInfo
}

func NewSelectCardRequest(st *GameState, who Who, via SkillInfo, info SelectCardInfo) *SelectCardRequest {
	return &SelectCardRequest{onTime{st}, who, via, info}
}

func (a *SelectCardRequest) String() string {
	return fmt.Sprintf("%s %s %v", a.Who, a.Info.Kind, a.Info.DefinitionIDs)
}

// TriggerEndPhaseSkillRequest asks the executor to run the onEndPhase skill of an entity.
type TriggerEndPhaseSkillRequest struct {
	onTime
	Who    Who
	Entity EntityState
}

func NewTriggerEndPhaseSkillRequest(st *GameState, who Who, entity EntityState) *TriggerEndPhaseSkillRequest {
	return &TriggerEndPhaseSkillRequest{onTime{st}, who, entity}
}

func (a *TriggerEndPhaseSkillRequest) String() string { return a.Entity.String() }
