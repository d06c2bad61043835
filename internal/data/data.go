// Package data loads character, entity and card definitions from YAML into a
// rules.GameData registry. Skill bodies are composed from a fixed catalog of
// effect operations (see compileEffects).
package data

import (
	"fmt"
	"os"
	"strings"

	"github.com/magefree/tcg-server-go/internal/game/dice"
	"github.com/magefree/tcg-server-go/internal/game/effects"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File is the top-level YAML structure.
type File struct {
	Characters []CharacterEntry `yaml:"characters"`
	Entities   []EntityEntry    `yaml:"entities"`
	Cards      []CardEntry      `yaml:"cards"`
	Decks      []DeckEntry      `yaml:"decks"`
}

// CharacterEntry describes a character. Energy is the maximum energy.
type CharacterEntry struct {
	ID     int          `yaml:"id"`
	Name   string       `yaml:"name"`
	Tags   []string     `yaml:"tags"`
	Health int          `yaml:"health"`
	Energy int          `yaml:"energy"`
	Skills []SkillEntry `yaml:"skills"`
}

// EntityEntry describes a status, combat status or summon.
type EntityEntry struct {
	ID                     int                        `yaml:"id"`
	Name                   string                     `yaml:"name"`
	Type                   string                     `yaml:"type"`
	Tags                   []string                   `yaml:"tags"`
	Variables              map[string]rules.VarConfig `yaml:"variables"`
	VisibleVar             string                     `yaml:"visibleVar"`
	DisposeWhenUsageIsZero bool                       `yaml:"disposeWhenUsageIsZero"`
	Skills                 []SkillEntry               `yaml:"skills"`
}

// CardEntry describes an event card, support or equipment. The play skill
// shares the card's id; supports and equipment enter the board as an entity
// of the same definition and may carry triggered skills.
type CardEntry struct {
	ID        int                        `yaml:"id"`
	Name      string                     `yaml:"name"`
	Type      string                     `yaml:"type"`
	Tags      []string                   `yaml:"tags"`
	Cost      string                     `yaml:"cost"`
	Fast      bool                       `yaml:"fast"`
	Effects   []EffectEntry              `yaml:"effects"`
	Variables map[string]rules.VarConfig `yaml:"variables"`
	Skills    []SkillEntry               `yaml:"skills"`

	VisibleVar             string `yaml:"visibleVar"`
	DisposeWhenUsageIsZero bool   `yaml:"disposeWhenUsageIsZero"`
}

// SkillEntry describes an initiative skill (Type set) or a triggered skill
// (On set).
type SkillEntry struct {
	ID            int           `yaml:"id"`
	Type          string        `yaml:"type"`
	On            string        `yaml:"on"`
	Cost          string        `yaml:"cost"`
	Fast          bool          `yaml:"fast"`
	Prepared      bool          `yaml:"prepared"`
	UsagePerRound int           `yaml:"usagePerRound"`
	ConsumeUsage  int           `yaml:"consumeUsage"`
	Effects       []EffectEntry `yaml:"effects"`
}

// EffectEntry is one operation of a skill body.
type EffectEntry struct {
	Op     string `yaml:"op"`
	Type   string `yaml:"type"`
	Value  int    `yaml:"value"`
	Count  int    `yaml:"count"`
	ID     int    `yaml:"id"`
	Target string `yaml:"target"`
}

// DeckEntry is a named deck.
type DeckEntry struct {
	Name       string       `yaml:"name"`
	Characters []int        `yaml:"characters"`
	Cards      []CountEntry `yaml:"cards"`
}

// CountEntry is a card and its count in a deck.
type CountEntry struct {
	ID    int `yaml:"id"`
	Count int `yaml:"count"`
}

// Registry is the loaded game data together with names and decks.
type Registry struct {
	Data  *rules.GameData
	names map[int]string
	decks []DeckEntry
}

// LoadFile reads and parses a definitions file.
func LoadFile(path string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	reg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("definitions loaded",
		zap.String("path", path),
		zap.Int("definitions", len(reg.Data.Definitions)),
		zap.Int("skills", len(reg.Data.Skills)),
		zap.Int("decks", len(reg.decks)),
	)
	return reg, nil
}

// Parse builds a registry from YAML.
func Parse(raw []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse definitions YAML: %w", err)
	}
	reg := &Registry{Data: rules.NewGameData(), names: make(map[int]string)}

	for _, ch := range f.Characters {
		def, err := characterDefinition(ch)
		if err != nil {
			return nil, fmt.Errorf("character %d: %w", ch.ID, err)
		}
		if err := reg.register(def, ch.Name); err != nil {
			return nil, err
		}
	}
	for _, e := range f.Entities {
		def, err := entityDefinition(e)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", e.ID, err)
		}
		if err := reg.register(def, e.Name); err != nil {
			return nil, err
		}
	}
	for _, c := range f.Cards {
		def, err := cardDefinition(c)
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", c.ID, err)
		}
		if err := reg.register(def, c.Name); err != nil {
			return nil, err
		}
	}
	for _, d := range f.Decks {
		if err := reg.checkDeck(d); err != nil {
			return nil, fmt.Errorf("deck %q: %w", d.Name, err)
		}
	}
	reg.decks = f.Decks
	return reg, nil
}

func (r *Registry) register(def *rules.Definition, name string) error {
	if err := r.Data.Register(def); err != nil {
		return err
	}
	if name != "" {
		r.names[def.ID] = name
	}
	return nil
}

func (r *Registry) checkDeck(d DeckEntry) error {
	for _, id := range d.Characters {
		def, err := r.Data.Definition(id)
		if err != nil {
			return err
		}
		if def.Type != rules.TypeCharacter {
			return fmt.Errorf("%d is not a character", id)
		}
	}
	for _, c := range d.Cards {
		def, err := r.Data.Definition(c.ID)
		if err != nil {
			return err
		}
		if !def.Type.IsCard() {
			return fmt.Errorf("%d is not a card", c.ID)
		}
		if c.Count <= 0 {
			return fmt.Errorf("card %d has count %d", c.ID, c.Count)
		}
	}
	return nil
}

// Name returns the display name of a definition, or its id.
func (r *Registry) Name(id int) string {
	if name, ok := r.names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// DeckNames lists the decks in file order.
func (r *Registry) DeckNames() []string {
	names := make([]string, len(r.decks))
	for i, d := range r.decks {
		names[i] = d.Name
	}
	return names
}

// Deck returns the deck config of a named deck.
func (r *Registry) Deck(name string) (rules.DeckConfig, error) {
	for _, d := range r.decks {
		if d.Name == name {
			return d.config(), nil
		}
	}
	return rules.DeckConfig{}, fmt.Errorf("deck %q not found", name)
}

// DeckByNumber returns the Nth deck (1-indexed).
func (r *Registry) DeckByNumber(n int) (string, rules.DeckConfig, error) {
	if n < 1 || n > len(r.decks) {
		return "", rules.DeckConfig{}, fmt.Errorf("deck %d not found (have %d decks)", n, len(r.decks))
	}
	d := r.decks[n-1]
	return d.Name, d.config(), nil
}

func (d DeckEntry) config() rules.DeckConfig {
	cfg := rules.DeckConfig{Characters: append([]int(nil), d.Characters...)}
	for _, c := range d.Cards {
		for i := 0; i < c.Count; i++ {
			cfg.Cards = append(cfg.Cards, c.ID)
		}
	}
	return cfg
}

func characterDefinition(ch CharacterEntry) (*rules.Definition, error) {
	if ch.Health <= 0 {
		return nil, fmt.Errorf("health must be positive")
	}
	def := &rules.Definition{
		ID:   ch.ID,
		Type: rules.TypeCharacter,
		Tags: ch.Tags,
		VarConfigs: map[string]rules.VarConfig{
			rules.VarHealth:    {Initial: ch.Health},
			rules.VarMaxHealth: {Initial: ch.Health},
			rules.VarEnergy:    {Initial: 0},
			rules.VarMaxEnergy: {Initial: ch.Energy},
			rules.VarAura:      {Initial: int(rules.AuraNone)},
			rules.VarAlive:     {Initial: 1},
		},
	}
	for _, s := range ch.Skills {
		if s.Type == "" && s.On == "" {
			return nil, fmt.Errorf("skill %d needs a type or an event", s.ID)
		}
		sk, err := skillDefinition(s)
		if err != nil {
			return nil, fmt.Errorf("skill %d: %w", s.ID, err)
		}
		def.Skills = append(def.Skills, sk)
	}
	return def, nil
}

var entityTypes = map[string]rules.DefinitionType{
	"status":       rules.TypeStatus,
	"combatStatus": rules.TypeCombatStatus,
	"summon":       rules.TypeSummon,
}

var cardTypes = map[string]rules.DefinitionType{
	"":          rules.TypeEventCard,
	"eventCard": rules.TypeEventCard,
	"support":   rules.TypeSupport,
	"equipment": rules.TypeEquipment,
}

func entityDefinition(e EntityEntry) (*rules.Definition, error) {
	typ, ok := entityTypes[e.Type]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", e.Type)
	}
	def := &rules.Definition{
		ID:                     e.ID,
		Type:                   typ,
		Tags:                   e.Tags,
		VarConfigs:             withUsagePerRound(e.Variables, e.Skills),
		VisibleVarName:         e.VisibleVar,
		DisposeWhenUsageIsZero: e.DisposeWhenUsageIsZero,
	}
	for _, s := range e.Skills {
		if s.On == "" {
			return nil, fmt.Errorf("skill %d of an entity needs an event", s.ID)
		}
		sk, err := skillDefinition(s)
		if err != nil {
			return nil, fmt.Errorf("skill %d: %w", s.ID, err)
		}
		def.Skills = append(def.Skills, sk)
	}
	return def, nil
}

func cardDefinition(c CardEntry) (*rules.Definition, error) {
	typ, ok := cardTypes[c.Type]
	if !ok {
		return nil, fmt.Errorf("unknown card type %q", c.Type)
	}
	cost, err := dice.ParseRequirement(c.Cost)
	if err != nil {
		return nil, err
	}
	body, err := compileEffects(c.Effects)
	if err != nil {
		return nil, err
	}
	play := effects.NewCardSkill(c.ID).Do(playBody(typ, c.ID, body))
	for t, n := range cost {
		play.Cost(t, n)
	}
	if c.Fast {
		play.Fast()
	}
	if typ == rules.TypeEquipment {
		play.Targets(ownCharacters)
	}
	def := &rules.Definition{
		ID:         c.ID,
		Type:       typ,
		Tags:       c.Tags,
		VarConfigs: withUsagePerRound(c.Variables, c.Skills),
		Skills:     []*rules.SkillDefinition{play.Build()},

		VisibleVarName:         c.VisibleVar,
		DisposeWhenUsageIsZero: c.DisposeWhenUsageIsZero,
	}
	for _, s := range c.Skills {
		if s.On == "" {
			return nil, fmt.Errorf("skill %d of a card needs an event", s.ID)
		}
		sk, err := skillDefinition(s)
		if err != nil {
			return nil, fmt.Errorf("skill %d: %w", s.ID, err)
		}
		def.Skills = append(def.Skills, sk)
	}
	return def, nil
}

// withUsagePerRound declares the per-round counter for entities whose skills
// are limited per round.
func withUsagePerRound(vars map[string]rules.VarConfig, skills []SkillEntry) map[string]rules.VarConfig {
	out := make(map[string]rules.VarConfig, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	for _, s := range skills {
		if s.UsagePerRound > 0 {
			out[effects.VarUsagePerRound] = rules.VarConfig{Initial: 0}
		}
	}
	return out
}

var skillTypes = map[string]rules.SkillType{
	"normal":    rules.SkillNormal,
	"elemental": rules.SkillElemental,
	"burst":     rules.SkillBurst,
	"technique": rules.SkillTechnique,
}

func skillDefinition(s SkillEntry) (*rules.SkillDefinition, error) {
	body, err := compileEffects(s.Effects)
	if err != nil {
		return nil, err
	}
	var b *effects.SkillBuilder
	if s.On != "" {
		b = effects.NewSkill(s.ID, rules.EventName(strings.TrimSpace(s.On)))
	} else {
		typ, ok := skillTypes[s.Type]
		if !ok {
			return nil, fmt.Errorf("unknown skill type %q", s.Type)
		}
		cost, err := dice.ParseRequirement(s.Cost)
		if err != nil {
			return nil, err
		}
		b = effects.NewInitiativeSkill(s.ID, typ)
		for t, n := range cost {
			b.Cost(t, n)
		}
		if s.Fast {
			b.Fast()
		}
		if s.Prepared {
			b.Prepared()
		}
	}
	if s.UsagePerRound > 0 {
		b.UsagePerRound(s.UsagePerRound)
	}
	if s.ConsumeUsage > 0 {
		b.ConsumeUsage(s.ConsumeUsage)
	}
	return b.Do(body).Build(), nil
}
