// This defines a command-line utility for gathering statistics about the notes
// and tempos used by a directory of MIDI files, such as a batch of rendered
// sequences.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v3"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/genomidi/midi"
)

// Keeps track of our accumulated counts across files.
type noteStats struct {
	// One entry per MIDI note: the number of note-on events (with a nonzero
	// velocity) that played it.
	noteCounts [128]uint64
	// The number of set-tempo events seen for each tempo, in BPM.
	tempoCounts map[float64]uint64
	files       int
}

// Dumps the totals to stdout, skipping notes that were never played.
func (s *noteStats) printInfo() {
	fmt.Printf("Scanned %d file(s).\n", s.files)
	for i := 0; i < 128; i++ {
		if s.noteCounts[i] == 0 {
			continue
		}
		fmt.Printf("Note %s (%d): %d events.\n", midi.MIDINote(i), i,
			s.noteCounts[i])
	}
	tempos := make([]float64, 0, len(s.tempoCounts))
	for bpm := range s.tempoCounts {
		tempos = append(tempos, bpm)
	}
	sort.Float64s(tempos)
	for _, bpm := range tempos {
		fmt.Printf("Tempo %g BPM: %d events.\n", bpm, s.tempoCounts[bpm])
	}
}

// Adds the events of the named MIDI file to the running totals. Uses gomidi's
// reader rather than this module's, so files from any source can be scanned.
func (s *noteStats) addFile(name string) error {
	f, e := os.Open(name)
	if e != nil {
		return fmt.Errorf("Failed opening %s: %w", name, e)
	}
	defer f.Close()
	parsed, e := smf.ReadFrom(f)
	if e != nil {
		return fmt.Errorf("Failed parsing %s: %w", name, e)
	}
	var ch, key, vel uint8
	var bpm float64
	for _, track := range parsed.Tracks {
		for _, ev := range track {
			if ev.Message.GetNoteOn(&ch, &key, &vel) {
				// Note on with 0 velocity actually turns off the note.
				if vel != 0 {
					s.noteCounts[key&0x7f]++
				}
				continue
			}
			if ev.Message.GetMetaTempo(&bpm) {
				s.tempoCounts[bpm]++
			}
		}
	}
	s.files++
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	baseDir := cmd.String("dir")
	filenames, e := filepath.Glob(filepath.Join(baseDir, "*.mid"))
	if e != nil {
		return fmt.Errorf("Failed looking up MIDI files in dir %s: %w",
			baseDir, e)
	}
	if len(filenames) == 0 {
		return fmt.Errorf("Didn't find any MIDI (.mid) files in dir %s",
			baseDir)
	}
	stats := &noteStats{
		tempoCounts: make(map[float64]uint64),
	}
	for i, name := range filenames {
		fmt.Printf("Scanning file %d/%d: %s\n", i+1, len(filenames), name)
		e = stats.addFile(name)
		if e != nil {
			fmt.Printf("Failed analyzing file %s: %s\n", name, e)
		}
	}
	stats.printInfo()
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "note_stats",
		Usage: "Count the notes and tempos used by a directory of .mid files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "The directory to scan for .mid files",
				Required: true,
			},
		},
		Action: scan,
	}
	e := cmd.Run(context.Background(), os.Args)
	if e != nil {
		fmt.Println(e)
		os.Exit(1)
	}
}
