// Package catalog holds the read-only species, move and type data used to
// build parties and score damage.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"monbattle/internal/battle"
)

//go:embed default.json
var defaultData []byte

// Species is the template monsters are built from.
type Species struct {
	Name      string   `json:"name"`
	Types     []string `json:"types"`
	HP        int      `json:"hp"`
	Attack    int      `json:"attack"`
	Defense   int      `json:"defense"`
	SpAttack  int      `json:"spAttack"`
	SpDefense int      `json:"spDefense"`
	Speed     int      `json:"speed"`
	Moves     []string `json:"moves"`
}

// Move is a catalog move.
type Move struct {
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Category battle.Category    `json:"category"`
	Power    int                `json:"power"`
	Accuracy int                `json:"accuracy"`
	Effect   *battle.MoveEffect `json:"effect,omitempty"`
}

type document struct {
	Types   map[string]map[string]float64 `json:"types"`
	Moves   []Move                        `json:"moves"`
	Species []Species                     `json:"species"`
}

// Catalog is an immutable lookup table. Names are matched case-insensitively.
type Catalog struct {
	chart   map[string]map[string]float64
	moves   map[string]Move
	species map[string]Species
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultData))
}

// LoadFile reads a catalog from a JSON file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a JSON catalog and checks that every species references known
// moves.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{
		chart:   make(map[string]map[string]float64, len(doc.Types)),
		moves:   make(map[string]Move, len(doc.Moves)),
		species: make(map[string]Species, len(doc.Species)),
	}
	for atk, row := range doc.Types {
		m := make(map[string]float64, len(row))
		for def, v := range row {
			m[key(def)] = v
		}
		c.chart[key(atk)] = m
	}
	for _, mv := range doc.Moves {
		mv.Type = key(mv.Type)
		c.moves[key(mv.Name)] = mv
	}
	for _, sp := range doc.Species {
		for i, t := range sp.Types {
			sp.Types[i] = key(t)
		}
		for _, name := range sp.Moves {
			if _, ok := c.moves[key(name)]; !ok {
				return nil, fmt.Errorf("species %q knows unknown move %q", sp.Name, name)
			}
		}
		c.species[key(sp.Name)] = sp
	}
	return c, nil
}

// Effectiveness multiplies the chart entries for each defending type.
// Unlisted pairs are neutral.
func (c *Catalog) Effectiveness(moveType string, defender []string) float64 {
	row := c.chart[key(moveType)]
	mult := 1.0
	for _, t := range defender {
		if v, ok := row[key(t)]; ok {
			mult *= v
		}
	}
	return mult
}

// Species looks up a species by name.
func (c *Catalog) Species(name string) (Species, bool) {
	sp, ok := c.species[key(name)]
	return sp, ok
}

// Move looks up a move by name.
func (c *Catalog) Move(name string) (Move, bool) {
	mv, ok := c.moves[key(name)]
	return mv, ok
}

// BuildMonster creates a full health monster of the species at level with a
// snapshot of its moves. The battle assigns the id.
func (c *Catalog) BuildMonster(species string, level int) (battle.Monster, error) {
	sp, ok := c.Species(species)
	if !ok {
		return battle.Monster{}, fmt.Errorf("unknown species %q", species)
	}
	if level < 1 || level > 100 {
		return battle.Monster{}, fmt.Errorf("level %d out of range", level)
	}
	hp := 2*sp.HP*level/100 + level + 10
	m := battle.Monster{
		Name:      displayName(sp.Name),
		Types:     append([]string(nil), sp.Types...),
		Level:     level,
		MaxHP:     hp,
		CurrentHP: hp,
		Attack:    stat(sp.Attack, level),
		Defense:   stat(sp.Defense, level),
		SpAttack:  stat(sp.SpAttack, level),
		SpDefense: stat(sp.SpDefense, level),
		Speed:     stat(sp.Speed, level),
	}
	for slot, name := range sp.Moves {
		mv := c.moves[key(name)]
		snap := battle.MoveSnapshot{
			Slot:     slot + 1,
			Name:     displayName(mv.Name),
			Type:     mv.Type,
			Category: mv.Category,
			Power:    mv.Power,
			Accuracy: mv.Accuracy,
		}
		if mv.Effect != nil {
			e := *mv.Effect
			snap.Effect = &e
		}
		m.Moves = append(m.Moves, snap)
	}
	return m, nil
}

// PartyMember selects a species and level for a party slot.
type PartyMember struct {
	Species string `json:"species"`
	Level   int    `json:"level"`
}

// BuildParty builds monsters for each member in order.
func (c *Catalog) BuildParty(members []PartyMember) ([]battle.Monster, error) {
	if len(members) == 0 || len(members) > battle.MaxPartySize {
		return nil, fmt.Errorf("party must hold 1 to %d monsters", battle.MaxPartySize)
	}
	out := make([]battle.Monster, 0, len(members))
	for _, pm := range members {
		m, err := c.BuildMonster(pm.Species, pm.Level)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func stat(base, level int) int {
	return 2*base*level/100 + 5
}

// displayName title-cases a catalog key. Casers keep state, so each call gets
// its own.
func displayName(s string) string {
	return cases.Title(language.English).String(s)
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
