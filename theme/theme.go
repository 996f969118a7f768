// Package theme holds the tables that map DNA bases to notes.
package theme

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultID names the theme used when none is given or the one given is
// unknown.
const DefaultID = "classic"

// BaseNote is what a single base plays.
type BaseNote struct {
	// Note is a pitch class name such as "C", "F#" or "Bb".
	Note       string `json:"note"`
	Color      string `json:"color,omitempty"`
	Instrument string `json:"instrument,omitempty"`
}

// Theme maps each base to the note it plays.
type Theme struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Mapping     map[byte]BaseNote `json:"-"`
	Scale       []string          `json:"scale,omitempty"`
}

// Note returns the note the base plays in this theme, if any.
func (t Theme) Note(base byte) (BaseNote, bool) {
	n, ok := t.Mapping[base]
	return n, ok
}

var themes = []Theme{
	{
		ID:          "classic",
		Name:        "Classic",
		Description: "One note per base, C major",
		Mapping: map[byte]BaseNote{
			'A': {Note: "C"},
			'T': {Note: "D"},
			'C': {Note: "E"},
			'G': {Note: "F"},
		},
		Scale: []string{"C", "D", "E", "F", "G", "A", "B"},
	},
	{
		ID:          "human-genome",
		Name:        "Human Genome",
		Description: "Classical piano with warm cello harmonies",
		Mapping: map[byte]BaseNote{
			'A': {Note: "C", Color: "#3b82f6", Instrument: "piano"},
			'T': {Note: "E", Color: "#8b5cf6", Instrument: "piano"},
			'C': {Note: "G", Color: "#ec4899", Instrument: "cello"},
			'G': {Note: "B", Color: "#10b981", Instrument: "cello"},
		},
		Scale: []string{"C", "D", "E", "F", "G", "A", "B"},
	},
	{
		ID:          "plant-dna",
		Name:        "Plant DNA",
		Description: "Organic synths with marimba percussion",
		Mapping: map[byte]BaseNote{
			'A': {Note: "F", Color: "#22c55e", Instrument: "synth"},
			'T': {Note: "A", Color: "#84cc16", Instrument: "synth"},
			'C': {Note: "C", Color: "#eab308", Instrument: "marimba"},
			'G': {Note: "E", Color: "#f97316", Instrument: "marimba"},
		},
		Scale: []string{"F", "G", "A", "Bb", "C", "D", "E"},
	},
	{
		ID:          "virus-rna",
		Name:        "Virus RNA",
		Description: "Eerie synths with dark ambient tones",
		Mapping: map[byte]BaseNote{
			'A': {Note: "Bb", Color: "#dc2626", Instrument: "darkSynth"},
			'T': {Note: "Db", Color: "#7c2d12", Instrument: "darkSynth"},
			'C': {Note: "F", Color: "#991b1b", Instrument: "ambient"},
			'G': {Note: "Ab", Color: "#450a0a", Instrument: "ambient"},
		},
		Scale: []string{"Bb", "C", "Db", "Eb", "F", "Gb", "Ab"},
	},
	{
		ID:          "marine-life",
		Name:        "Marine Life",
		Description: "Flowing pads with crystalline bells",
		Mapping: map[byte]BaseNote{
			'A': {Note: "D", Color: "#0ea5e9", Instrument: "pad"},
			'T': {Note: "F#", Color: "#0284c7", Instrument: "pad"},
			'C': {Note: "A", Color: "#06b6d4", Instrument: "bell"},
			'G': {Note: "C#", Color: "#0891b2", Instrument: "bell"},
		},
		Scale: []string{"D", "E", "F#", "G", "A", "B", "C#"},
	},
	{
		ID:          "cosmic-dna",
		Name:        "Cosmic DNA",
		Description: "Ethereal pads with space-like reverb",
		Mapping: map[byte]BaseNote{
			'A': {Note: "E", Color: "#8b5cf6", Instrument: "spacePad"},
			'T': {Note: "G#", Color: "#a855f7", Instrument: "spacePad"},
			'C': {Note: "B", Color: "#c084fc", Instrument: "cosmic"},
			'G': {Note: "D#", Color: "#ddd6fe", Instrument: "cosmic"},
		},
		Scale: []string{"E", "F#", "G#", "A", "B", "C#", "D#"},
	},
}

// All returns the built-in themes, default first.
func All() []Theme {
	out := make([]Theme, len(themes))
	copy(out, themes)
	return out
}

// IDs returns the sorted theme IDs.
func IDs() []string {
	ids := make([]string, len(themes))
	for i, t := range themes {
		ids[i] = t.ID
	}
	sort.Strings(ids)
	return ids
}

// ByID finds a theme by its ID.
func ByID(id string) (Theme, bool) {
	for _, t := range themes {
		if t.ID == id {
			return t, true
		}
	}
	return Theme{}, false
}

// Lookup is ByID falling back to the default theme.
func Lookup(id string) Theme {
	if t, ok := ByID(id); ok {
		return t
	}
	t, _ := ByID(DefaultID)
	return t
}

var semitones = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// NoteNumber converts a pitch class name and octave to a MIDI note number,
// with C4 = 60. Sharps are written '#' and flats 'b'.
func NoteNumber(name string, octave int) (uint8, error) {
	if name == "" {
		return 0, fmt.Errorf("empty note name")
	}
	base, ok := semitones[strings.ToUpper(name[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("unknown note %q", name)
	}
	for _, acc := range name[1:] {
		switch acc {
		case '#':
			base++
		case 'b':
			base--
		default:
			return 0, fmt.Errorf("unknown accidental in note %q", name)
		}
	}
	n := (octave+1)*12 + base
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("note %s%d is outside the MIDI range", name,
			octave)
	}
	return uint8(n), nil
}
