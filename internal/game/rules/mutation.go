package rules

import (
	"encoding/json"
	"fmt"

	"github.com/magefree/tcg-server-go/internal/game/dice"
)

// AreaType names where an entity lives.
type AreaType string

const (
	AreaCharacters     AreaType = "characters"
	AreaCombatStatuses AreaType = "combatStatuses"
	AreaSummons        AreaType = "summons"
	AreaSupports       AreaType = "supports"
	AreaHands          AreaType = "hands"
	AreaPile           AreaType = "pile"
	AreaRemoved        AreaType = "removedEntities"
)

// EntityArea locates an entity. CharacterID is set only for the characters area.
type EntityArea struct {
	Who         Who      `json:"who"`
	Type        AreaType `json:"type"`
	CharacterID int      `json:"characterId,omitempty"`
}

func (a EntityArea) String() string {
	if a.Type == AreaCharacters {
		return fmt.Sprintf("character (%d) of %s", a.CharacterID, a.Who)
	}
	return fmt.Sprintf("%s of %s", a.Type, a.Who)
}

// MutationType tags the closed set of mutations.
type MutationType string

const (
	MutCreateCharacter       MutationType = "createCharacter"
	MutCreateEntity          MutationType = "createEntity"
	MutRemoveEntity          MutationType = "removeEntity"
	MutMoveEntity            MutationType = "moveEntity"
	MutModifyEntityVar       MutationType = "modifyEntityVar"
	MutTransformDefinition   MutationType = "transformDefinition"
	MutResetDice             MutationType = "resetDice"
	MutChangePhase           MutationType = "changePhase"
	MutSwitchTurn            MutationType = "switchTurn"
	MutStepRound             MutationType = "stepRound"
	MutSwitchActive          MutationType = "switchActive"
	MutSetWinner             MutationType = "setWinner"
	MutSetPlayerFlag         MutationType = "setPlayerFlag"
	MutSwapCharacterPosition MutationType = "swapCharacterPosition"
	MutStepRandom            MutationType = "stepRandom"
	MutStepID                MutationType = "stepId"
	MutCreateCard            MutationType = "createCard"
	MutTransferCard          MutationType = "transferCard"
	MutRemoveCard            MutationType = "removeCard"
	MutClearRemovedEntities  MutationType = "clearRemovedEntities"
	MutPushRoundSkillLog     MutationType = "pushRoundSkillLog"
	MutClearRoundSkillLog    MutationType = "clearRoundSkillLog"
	MutMutateExtensionState  MutationType = "mutateExtensionState"
)

// Mutation is one atomic edit of a GameState. Apply is the only way to
// change state.
type Mutation interface {
	Type() MutationType
}

// VarDirection hints whether a variable went up or down.
type VarDirection string

const (
	DirectionNone     VarDirection = ""
	DirectionIncrease VarDirection = "increase"
	DirectionDecrease VarDirection = "decrease"
)

type CreateCharacter struct {
	Who   Who            `json:"who"`
	Value CharacterState `json:"value"`
}

type CreateEntity struct {
	Where EntityArea  `json:"where"`
	Value EntityState `json:"value"`
}

type RemoveEntity struct {
	ID     int    `json:"id"`
	Reason string `json:"reason"`
}

type MoveEntity struct {
	ID          int        `json:"id"`
	To          EntityArea `json:"to"`
	TargetIndex *int       `json:"targetIndex,omitempty"`
}

type ModifyEntityVar struct {
	ID        int          `json:"id"`
	VarName   string       `json:"varName"`
	Value     int          `json:"value"`
	Direction VarDirection `json:"direction,omitempty"`
}

type TransformDefinition struct {
	ID              int `json:"id"`
	NewDefinitionID int `json:"newDefinitionId"`
}

type ResetDice struct {
	Who    Who         `json:"who"`
	Value  []dice.Type `json:"value"`
	Reason string      `json:"reason"`
}

type ChangePhase struct {
	NewPhase Phase `json:"newPhase"`
}

type SwitchTurn struct{}

type StepRound struct{}

type SwitchActive struct {
	Who         Who `json:"who"`
	CharacterID int `json:"characterId"`
}

// SetWinner with a nil Winner records a draw.
type SetWinner struct {
	Winner *Who `json:"winner"`
}

type SetPlayerFlag struct {
	Who   Who        `json:"who"`
	Flag  PlayerFlag `json:"flag"`
	Value bool       `json:"value"`
}

type SwapCharacterPosition struct {
	Who          Who `json:"who"`
	CharacterID0 int `json:"characterId0"`
	CharacterID1 int `json:"characterId1"`
}

// StepRandom moves the random cursor to Value. The mutator fills Value.
type StepRandom struct {
	Value int `json:"value"`
}

type StepID struct{}

type CreateCard struct {
	Who         Who         `json:"who"`
	Target      AreaType    `json:"target"`
	Value       EntityState `json:"value"`
	TargetIndex *int        `json:"targetIndex,omitempty"`
}

type TransferCard struct {
	Who         Who      `json:"who"`
	From        AreaType `json:"from"`
	To          AreaType `json:"to"`
	ID          int      `json:"id"`
	TargetIndex *int     `json:"targetIndex,omitempty"`
	Reason      string   `json:"reason"`
}

type RemoveCard struct {
	Who    Who      `json:"who"`
	Where  AreaType `json:"where"`
	ID     int      `json:"id"`
	Reason string   `json:"reason"`
}

type ClearRemovedEntities struct{}

type PushRoundSkillLog struct {
	Who                   Who `json:"who"`
	CharacterDefinitionID int `json:"characterDefinitionId"`
	SkillID               int `json:"skillId"`
}

type ClearRoundSkillLog struct {
	Who Who `json:"who"`
}

type MutateExtensionState struct {
	DefinitionID int            `json:"definitionId"`
	Values       map[string]int `json:"values"`
}

func (*CreateCharacter) Type() MutationType       { return MutCreateCharacter }
func (*CreateEntity) Type() MutationType          { return MutCreateEntity }
func (*RemoveEntity) Type() MutationType          { return MutRemoveEntity }
func (*MoveEntity) Type() MutationType            { return MutMoveEntity }
func (*ModifyEntityVar) Type() MutationType       { return MutModifyEntityVar }
func (*TransformDefinition) Type() MutationType   { return MutTransformDefinition }
func (*ResetDice) Type() MutationType             { return MutResetDice }
func (*ChangePhase) Type() MutationType           { return MutChangePhase }
func (*SwitchTurn) Type() MutationType            { return MutSwitchTurn }
func (*StepRound) Type() MutationType             { return MutStepRound }
func (*SwitchActive) Type() MutationType          { return MutSwitchActive }
func (*SetWinner) Type() MutationType             { return MutSetWinner }
func (*SetPlayerFlag) Type() MutationType         { return MutSetPlayerFlag }
func (*SwapCharacterPosition) Type() MutationType { return MutSwapCharacterPosition }
func (*StepRandom) Type() MutationType            { return MutStepRandom }
func (*StepID) Type() MutationType                { return MutStepID }
func (*CreateCard) Type() MutationType            { return MutCreateCard }
func (*TransferCard) Type() MutationType          { return MutTransferCard }
func (*RemoveCard) Type() MutationType            { return MutRemoveCard }
func (*ClearRemovedEntities) Type() MutationType  { return MutClearRemovedEntities }
func (*PushRoundSkillLog) Type() MutationType     { return MutPushRoundSkillLog }
func (*ClearRoundSkillLog) Type() MutationType    { return MutClearRoundSkillLog }
func (*MutateExtensionState) Type() MutationType  { return MutMutateExtensionState }

// IsBookkeeping reports mutations that are never exposed to clients.
func IsBookkeeping(m Mutation) bool {
	switch m.Type() {
	case MutStepRandom, MutStepID, MutClearRemovedEntities, MutPushRoundSkillLog,
		MutClearRoundSkillLog, MutMutateExtensionState:
		return true
	}
	return false
}

func newMutation(t MutationType) (Mutation, error) {
	switch t {
	case MutCreateCharacter:
		return &CreateCharacter{}, nil
	case MutCreateEntity:
		return &CreateEntity{}, nil
	case MutRemoveEntity:
		return &RemoveEntity{}, nil
	case MutMoveEntity:
		return &MoveEntity{}, nil
	case MutModifyEntityVar:
		return &ModifyEntityVar{}, nil
	case MutTransformDefinition:
		return &TransformDefinition{}, nil
	case MutResetDice:
		return &ResetDice{}, nil
	case MutChangePhase:
		return &ChangePhase{}, nil
	case MutSwitchTurn:
		return &SwitchTurn{}, nil
	case MutStepRound:
		return &StepRound{}, nil
	case MutSwitchActive:
		return &SwitchActive{}, nil
	case MutSetWinner:
		return &SetWinner{}, nil
	case MutSetPlayerFlag:
		return &SetPlayerFlag{}, nil
	case MutSwapCharacterPosition:
		return &SwapCharacterPosition{}, nil
	case MutStepRandom:
		return &StepRandom{}, nil
	case MutStepID:
		return &StepID{}, nil
	case MutCreateCard:
		return &CreateCard{}, nil
	case MutTransferCard:
		return &TransferCard{}, nil
	case MutRemoveCard:
		return &RemoveCard{}, nil
	case MutClearRemovedEntities:
		return &ClearRemovedEntities{}, nil
	case MutPushRoundSkillLog:
		return &PushRoundSkillLog{}, nil
	case MutClearRoundSkillLog:
		return &ClearRoundSkillLog{}, nil
	case MutMutateExtensionState:
		return &MutateExtensionState{}, nil
	}
	return nil, fmt.Errorf("unknown mutation type %q", t)
}

type mutationEnvelope struct {
	Type    MutationType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMutation serialises a mutation together with its tag.
func EncodeMutation(m Mutation) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Type(), err)
	}
	return json.Marshal(mutationEnvelope{Type: m.Type(), Payload: payload})
}

// DecodeMutation is the inverse of EncodeMutation.
func DecodeMutation(data []byte) (Mutation, error) {
	var env mutationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal mutation envelope: %w", err)
	}
	m, err := newMutation(env.Type)
	if err != nil {
		return nil, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
	}
	return m, nil
}

// StringifyMutation renders a mutation for debug logs.
func StringifyMutation(m Mutation) string {
	switch mut := m.(type) {
	case *ModifyEntityVar:
		return fmt.Sprintf("modify %s of (%d) to %d", mut.VarName, mut.ID, mut.Value)
	case *CreateEntity:
		return fmt.Sprintf("create entity [%d](%d) at %s", mut.Value.DefinitionID, mut.Value.ID, mut.Where)
	case *RemoveEntity:
		return fmt.Sprintf("remove entity (%d): %s", mut.ID, mut.Reason)
	case *ChangePhase:
		return fmt.Sprintf("change phase to %s", mut.NewPhase)
	case *SwitchActive:
		return fmt.Sprintf("switch active of %s to (%d)", mut.Who, mut.CharacterID)
	case *ResetDice:
		return fmt.Sprintf("reset dice of %s to %v (%s)", mut.Who, mut.Value, mut.Reason)
	case *TransferCard:
		return fmt.Sprintf("transfer card (%d) of %s from %s to %s (%s)", mut.ID, mut.Who, mut.From, mut.To, mut.Reason)
	case *RemoveCard:
		return fmt.Sprintf("remove card (%d) of %s from %s (%s)", mut.ID, mut.Who, mut.Where, mut.Reason)
	case *SetWinner:
		if mut.Winner == nil {
			return "set winner to draw"
		}
		return fmt.Sprintf("set winner to %s", *mut.Winner)
	case *StepRandom, *StepID, *ClearRemovedEntities:
		return ""
	}
	return string(m.Type())
}
