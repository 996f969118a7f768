// Package arrange lays a DNA sequence out as notes and renders it to a MIDI
// file.
package arrange

import (
	"fmt"
	"strings"

	"github.com/genomidi/midi"
	"github.com/genomidi/midi/config"
	"github.com/genomidi/midi/theme"
)

// Settings control how bases become notes.
type Settings struct {
	Tempo float64
	// NoteLength is the length of one base, in quarter notes.
	NoteLength float64
	Octave     int
	Velocity   uint8
	// MaxBases limits how many bases are played. 0 plays them all.
	MaxBases int
	Theme    string
}

// SettingsFrom copies the music section of a config.
func SettingsFrom(c config.MusicConfig) Settings {
	return Settings{
		Tempo:      c.Tempo,
		NoteLength: c.NoteLength,
		Octave:     c.Octave,
		Velocity:   c.Velocity,
		MaxBases:   c.MaxBases,
		Theme:      c.Theme,
	}
}

// Notes returns one note per mapped base. Base i starts at i*NoteLength and
// lasts NoteLength; a base the theme doesn't map plays nothing but still
// takes its slot. Bad settings return an error wrapping midi.ErrInvalidInput.
func Notes(bases string, s Settings) ([]midi.Note, error) {
	if s.NoteLength <= 0 {
		return nil, fmt.Errorf("note length %g: %w", s.NoteLength,
			midi.ErrInvalidInput)
	}
	if s.MaxBases > 0 && len(bases) > s.MaxBases {
		bases = bases[:s.MaxBases]
	}
	th := theme.Lookup(s.Theme)
	pitches := make(map[byte]uint8, len(th.Mapping))
	for base, n := range th.Mapping {
		p, err := theme.NoteNumber(n.Note, s.Octave)
		if err != nil {
			return nil, fmt.Errorf("theme %s, base %c: %v: %w", th.ID, base,
				err, midi.ErrInvalidInput)
		}
		pitches[base] = p
	}

	notes := make([]midi.Note, 0, len(bases))
	for i := 0; i < len(bases); i++ {
		p, ok := pitches[bases[i]]
		if !ok {
			continue
		}
		notes = append(notes, midi.Note{
			Pitch:    p,
			Start:    float64(i) * s.NoteLength,
			Duration: s.NoteLength,
			Velocity: s.Velocity,
		})
	}
	return notes, nil
}

// Render lays out the bases and encodes them as a MIDI file.
func Render(bases string, s Settings) ([]byte, error) {
	notes, err := Notes(bases, s)
	if err != nil {
		return nil, err
	}
	return midi.RenderNotes(notes, s.Tempo)
}

// ExportFilename returns the download name for a sequence rendered with a
// theme, such as "My Gene-human-genome.mid". The sequence name is kept as it
// is, apart from path separators; the theme name is lower-cased with its
// spaces turned into dashes.
func ExportFilename(name, themeName string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "dna-sequence"
	}
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	themeName = strings.Join(strings.Fields(strings.ToLower(themeName)), "-")
	return name + "-" + themeName + ".mid"
}
