package data

import (
	"fmt"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/effects"
	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
)

// Effect operations understood in skill bodies.
const (
	OpDamage          = "damage"
	OpHeal            = "heal"
	OpApplyAura       = "applyAura"
	OpGainEnergy      = "gainEnergy"
	OpDrawCards       = "drawCards"
	OpGenerateDice    = "generateDice"
	OpCharacterStatus = "characterStatus"
	OpCombatStatus    = "combatStatus"
	OpSummon          = "summon"
	OpCreateHandCard  = "createHandCard"
	OpReroll          = "reroll"
	OpDisposeSelf     = "disposeSelf"
	OpAbsorbDamage    = "absorbDamage"
)

// VarShield holds the damage an absorbDamage entity still absorbs.
const VarShield = "shield"

// Targets of character effects.
const (
	TargetSelf       = "self"
	TargetOpp        = "opp"
	TargetMyAll      = "myAll"
	TargetOppAll     = "oppAll"
	TargetOppStandby = "oppStandby"
)

type step func(c *effects.Context) error

func compileEffects(entries []EffectEntry) (effects.ActionFunc, error) {
	steps := make([]step, 0, len(entries))
	for i, e := range entries {
		s, err := compileEffect(e)
		if err != nil {
			return nil, fmt.Errorf("effect %d (%s): %w", i, e.Op, err)
		}
		steps = append(steps, s)
	}
	return func(c *effects.Context, arg rules.EventArg) error {
		for _, s := range steps {
			if err := s(c); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func compileEffect(e EffectEntry) (step, error) {
	switch e.Op {
	case OpDamage:
		typ, err := rules.ParseDamageType(orDefault(e.Type, "physical"))
		if err != nil {
			return nil, err
		}
		if typ == rules.DamageHeal {
			return nil, fmt.Errorf("use %s for heals", OpHeal)
		}
		target, err := targetOf(e.Target, TargetOpp)
		if err != nil {
			return nil, err
		}
		return eachCharacter(target, func(c *effects.Context, id int) error {
			return c.Damage(typ, e.Value, id)
		}), nil

	case OpHeal:
		target, err := targetOf(e.Target, TargetSelf)
		if err != nil {
			return nil, err
		}
		return eachCharacter(target, func(c *effects.Context, id int) error {
			return c.Heal(e.Value, id, rules.HealCommon)
		}), nil

	case OpApplyAura:
		typ, err := rules.ParseDamageType(e.Type)
		if err != nil {
			return nil, err
		}
		if !typ.IsElemental() {
			return nil, fmt.Errorf("%s is not an element", typ)
		}
		target, err := targetOf(e.Target, TargetOpp)
		if err != nil {
			return nil, err
		}
		return eachCharacter(target, func(c *effects.Context, id int) error {
			return c.ApplyAura(typ, id)
		}), nil

	case OpGainEnergy:
		target, err := targetOf(e.Target, TargetSelf)
		if err != nil {
			return nil, err
		}
		return eachCharacter(target, func(c *effects.Context, id int) error {
			return c.GainEnergy(max(e.Value, 1), id)
		}), nil

	case OpDrawCards:
		return func(c *effects.Context) error {
			return c.DrawCards(max(e.Count, 1), c.Who())
		}, nil

	case OpGenerateDice:
		t, err := dice.ParseType(orDefault(e.Type, "void"))
		if err != nil {
			return nil, err
		}
		return func(c *effects.Context) error {
			return c.GenerateDice(t, max(e.Count, 1), c.Who())
		}, nil

	case OpCharacterStatus:
		if e.ID == 0 {
			return nil, fmt.Errorf("missing status id")
		}
		target, err := targetOf(e.Target, TargetSelf)
		if err != nil {
			return nil, err
		}
		return eachCharacter(target, func(c *effects.Context, id int) error {
			_, err := c.CharacterStatus(e.ID, id)
			return err
		}), nil

	case OpCombatStatus:
		if e.ID == 0 {
			return nil, fmt.Errorf("missing combat status id")
		}
		opp := e.Target == TargetOpp
		if e.Target != "" && e.Target != TargetSelf && !opp {
			return nil, fmt.Errorf("combat status target must be %s or %s", TargetSelf, TargetOpp)
		}
		return func(c *effects.Context) error {
			who := c.Who()
			if opp {
				who = who.Flip()
			}
			_, err := c.CombatStatus(e.ID, who)
			return err
		}, nil

	case OpSummon:
		if e.ID == 0 {
			return nil, fmt.Errorf("missing summon id")
		}
		return func(c *effects.Context) error {
			_, err := c.Summon(e.ID)
			return err
		}, nil

	case OpCreateHandCard:
		if e.ID == 0 {
			return nil, fmt.Errorf("missing card id")
		}
		return func(c *effects.Context) error {
			return c.CreateHandCard(e.ID, c.Who())
		}, nil

	case OpReroll:
		return func(c *effects.Context) error {
			c.RequestReroll(c.Who(), max(e.Count, 1))
			return nil
		}, nil

	case OpDisposeSelf:
		return func(c *effects.Context) error {
			return c.Dispose(c.Info().Caller.StateID(), "disposeSelf")
		}, nil

	case OpAbsorbDamage:
		return absorbDamage, nil
	}
	return nil, fmt.Errorf("unknown effect operation %q", e.Op)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func targetOf(target, def string) (string, error) {
	switch target {
	case "":
		return def, nil
	case TargetSelf, TargetOpp, TargetMyAll, TargetOppAll, TargetOppStandby:
		return target, nil
	}
	return "", fmt.Errorf("unknown target %q", target)
}

// eachCharacter resolves target against the state at the time the step
// runs and applies fn to every matching character.
func eachCharacter(target string, fn func(c *effects.Context, id int) error) step {
	return func(c *effects.Context) error {
		ids, err := characterIDs(c, target)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := fn(c, id); err != nil {
				return err
			}
		}
		return nil
	}
}

func characterIDs(c *effects.Context, target string) ([]int, error) {
	switch target {
	case TargetSelf:
		ch, err := c.MyActive()
		if err != nil {
			return nil, err
		}
		return []int{ch.ID}, nil
	case TargetOpp:
		ch, err := c.OppActive()
		if err != nil {
			return nil, err
		}
		return []int{ch.ID}, nil
	}
	who := c.Who()
	if target != TargetMyAll {
		who = who.Flip()
	}
	p := c.State().Players[who]
	var ids []int
	for _, ch := range p.ShiftedCharacters() {
		if !ch.Alive() {
			continue
		}
		if target == TargetOppStandby && ch.ID == p.ActiveCharacterID {
			continue
		}
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

// playBody wraps the authored effects of a card with what its type implies:
// supports enter the supports area, replacing the chosen one when full, and
// equipment is attached to the targeted character.
func playBody(typ rules.DefinitionType, cardID int, body effects.ActionFunc) effects.ActionFunc {
	return func(c *effects.Context, arg rules.EventArg) error {
		var targets []rules.AnyState
		if ia, ok := arg.(*rules.InitiativeArg); ok {
			targets = ia.Targets
		}
		fromCard := c.Info().Caller.StateID()
		switch typ {
		case rules.TypeSupport:
			if len(targets) > 0 {
				if err := c.Dispose(targets[0].StateID(), "overflow"); err != nil {
					return err
				}
			}
			area := rules.EntityArea{Who: c.Who(), Type: rules.AreaSupports}
			if _, err := c.CreateEntity(cardID, area, mutator.CreateEntityOptions{FromCardID: fromCard}); err != nil {
				return err
			}
		case rules.TypeEquipment:
			if len(targets) == 0 {
				return rules.NewDataError("equipment %d played without target", cardID)
			}
			area := rules.EntityArea{Who: c.Who(), Type: rules.AreaCharacters, CharacterID: targets[0].StateID()}
			if _, err := c.CreateEntity(cardID, area, mutator.CreateEntityOptions{FromCardID: fromCard}); err != nil {
				return err
			}
		}
		return body(c, arg)
	}
}

// ownCharacters lists the alive characters of the card owner as equipment
// targets.
func ownCharacters(st *rules.GameState, info rules.SkillInfo) [][]rules.AnyState {
	area, err := rules.AreaOf(st, info.Caller.StateID())
	if err != nil {
		return nil
	}
	var out [][]rules.AnyState
	for _, ch := range st.Players[area.Who].Characters {
		if ch.Alive() {
			out = append(out, []rules.AnyState{ch})
		}
	}
	return out
}

// absorbDamage lets a shield entity take non-piercing damage aimed at its
// side, spending its shield variable and disposing itself once empty.
func absorbDamage(c *effects.Context) error {
	arg, ok := c.Arg().(*rules.ModifyDamageArg)
	if !ok || arg.Type() == rules.DamagePiercing || arg.Value() == 0 {
		return nil
	}
	area, err := rules.AreaOf(c.State(), arg.Target().ID)
	if err != nil {
		return err
	}
	if area.Who != c.Who() {
		return nil
	}
	self, err := c.Self()
	if err != nil {
		return err
	}
	left := self.StateVariables()[VarShield]
	n := min(left, arg.Value())
	if n <= 0 {
		return nil
	}
	arg.DecreaseDamage(n)
	if err := c.SetVariable(self.StateID(), VarShield, left-n); err != nil {
		return err
	}
	if left-n == 0 {
		return c.Dispose(self.StateID(), "shieldBroken")
	}
	return nil
}
