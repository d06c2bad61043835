package rules

import (
	"fmt"
	"slices"
)

// DeckConfig is one side's deck as definition ids.
type DeckConfig struct {
	Characters []int `json:"characters" yaml:"characters"`
	Cards      []int `json:"cards" yaml:"cards"`
	NoShuffle  bool  `json:"noShuffle,omitempty" yaml:"noShuffle"`
}

// NewInitialState builds the initHands snapshot of a new match. The pile is
// shuffled with the configured seed and legend cards are moved to the top.
func NewInitialState(data *GameData, decks [2]DeckConfig, config GameConfig, behavior VersionBehavior) (*GameState, error) {
	if data == nil {
		return nil, NewInternalError("no game data")
	}
	config = config.WithDefaults()
	if behavior.DefaultRecreate == "" {
		behavior = CurrentVersionBehavior()
	}
	id := InitialID
	nextID := func() int {
		v := id
		id--
		return v
	}
	st := &GameState{
		Data:     data,
		Config:   config,
		Behavior: behavior,
		Phase:    PhaseInitHands,
	}
	for _, w := range []Who{Player0, Player1} {
		p, err := initPlayer(w, data, decks[w], config, nextID)
		if err != nil {
			return nil, fmt.Errorf("init %s: %w", w, err)
		}
		st.Players[w] = p
	}
	for _, ext := range data.Extensions {
		values := make(map[string]int, len(ext.Initial))
		for k, v := range ext.Initial {
			values[k] = v
		}
		st.Extensions = append(st.Extensions, ExtensionState{DefinitionID: ext.ID, Values: values})
	}
	st.Iterators = Iterators{Random: config.RandomSeed, ID: id}
	return st, nil
}

func initPlayer(who Who, data *GameData, deck DeckConfig, config GameConfig, nextID func() int) (PlayerState, error) {
	if len(deck.Characters) == 0 {
		return PlayerState{}, NewDataError("deck of %s has no characters", who)
	}
	p := PlayerState{Who: who}
	for _, defID := range deck.Characters {
		def, err := data.Definition(defID)
		if err != nil {
			return PlayerState{}, err
		}
		if def.Type != TypeCharacter {
			return PlayerState{}, NewDataError("definition %d is not a character", defID)
		}
		p.Characters = append(p.Characters, CharacterState{
			ID:           nextID(),
			DefinitionID: defID,
			Variables:    def.InitialVariables(nil),
		})
	}
	cards := make([]*Definition, 0, len(deck.Cards))
	for _, defID := range deck.Cards {
		def, err := data.Definition(defID)
		if err != nil {
			return PlayerState{}, err
		}
		if !def.Type.IsCard() {
			return PlayerState{}, NewDataError("definition %d is not a card", defID)
		}
		cards = append(cards, def)
	}
	if !deck.NoShuffle {
		cards = Shuffle(cards, config.RandomSeed+int(who)+1)
	}
	slices.SortStableFunc(cards, func(a, b *Definition) int {
		return legendRank(a) - legendRank(b)
	})
	if len(cards) > config.MaxPileCount {
		cards = cards[:config.MaxPileCount]
	}
	for _, def := range cards {
		p.Pile = append(p.Pile, EntityState{
			ID:           nextID(),
			DefinitionID: def.ID,
			Variables:    def.InitialVariables(nil),
		})
	}
	return p, nil
}

func legendRank(def *Definition) int {
	if def.HasTag(TagLegend) {
		return 0
	}
	return 1
}
