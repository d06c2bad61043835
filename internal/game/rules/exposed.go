package rules

// ExposedKind tags the client-facing notifications that are not state
// mutations themselves.
type ExposedKind string

const (
	ExposedDamage           ExposedKind = "damage"
	ExposedApplyAura        ExposedKind = "applyAura"
	ExposedSwitchActive     ExposedKind = "switchActive"
	ExposedChooseActiveDone ExposedKind = "chooseActiveDone"
	ExposedPlayerStatus     ExposedKind = "playerStatus"
	ExposedSkillUsed        ExposedKind = "skillUsed"
	ExposedTriggered        ExposedKind = "triggered"
	ExposedActionDone       ExposedKind = "actionDone"
	ExposedRerollDone       ExposedKind = "rerollDone"
	ExposedSwitchHandsDone  ExposedKind = "switchHandsDone"
	ExposedSelectCardDone   ExposedKind = "selectCardDone"
)

// Switch sources of an ExposedSwitchActive.
const (
	SwitchFromNone = "none"
	SwitchFromFast = "fast"
	SwitchFromSlow = "slow"
)

// PlayerStatus tells clients what a side is waiting for.
type PlayerStatus string

const (
	StatusNone           PlayerStatus = ""
	StatusActing         PlayerStatus = "acting"
	StatusChoosingActive PlayerStatus = "choosingActive"
	StatusRerolling      PlayerStatus = "rerolling"
	StatusSwitchingHands PlayerStatus = "switchingHands"
	StatusSelectingCards PlayerStatus = "selectingCards"
)

// ExposedMutation is a flat notification record. Only the fields relevant to
// Kind are set.
type ExposedMutation struct {
	Kind                  ExposedKind  `json:"kind"`
	Who                   Who          `json:"who"`
	SourceID              int          `json:"sourceId,omitempty"`
	SourceDefinitionID    int          `json:"sourceDefinitionId,omitempty"`
	TargetID              int          `json:"targetId,omitempty"`
	TargetDefinitionID    int          `json:"targetDefinitionId,omitempty"`
	CharacterID           int          `json:"characterId,omitempty"`
	CharacterDefinitionID int          `json:"characterDefinitionId,omitempty"`
	SkillDefinitionID     int          `json:"skillDefinitionId,omitempty"`
	Value                 int          `json:"value,omitempty"`
	DamageType            DamageType   `json:"damageType,omitempty"`
	Reaction              Reaction     `json:"reaction,omitempty"`
	OldAura               Aura         `json:"oldAura,omitempty"`
	NewAura               Aura         `json:"newAura,omitempty"`
	OldHealth             int          `json:"oldHealth,omitempty"`
	NewHealth             int          `json:"newHealth,omitempty"`
	HealKind              HealKind     `json:"healKind,omitempty"`
	CauseDefeated         bool         `json:"causeDefeated,omitempty"`
	IsSkillMainDamage     bool         `json:"isSkillMainDamage,omitempty"`
	FromAction            string       `json:"fromAction,omitempty"`
	Status                PlayerStatus `json:"status,omitempty"`
	ActionType            ActionType   `json:"actionType,omitempty"`
	Count                 int          `json:"count,omitempty"`
}
