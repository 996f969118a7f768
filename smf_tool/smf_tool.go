// This defines a command-line utility for viewing and checking the standard
// MIDI files (SMF, usually with a ".mid" extension) this module writes.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/genomidi/midi"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func parseFile(filename string) (*midi.SMFFile, error) {
	inputFile, e := os.Open(filename)
	if e != nil {
		return nil, fmt.Errorf("Couldn't open %s: %w", filename, e)
	}
	defer inputFile.Close()
	parsed, e := midi.ParseSMFFile(inputFile)
	if e != nil {
		return nil, fmt.Errorf("Couldn't parse %s: %w", filename, e)
	}
	return parsed, nil
}

func dump(ctx context.Context, cmd *cli.Command) error {
	filename := cmd.Args().First()
	if filename == "" {
		return fmt.Errorf("No input file given. Run with --help for usage.")
	}
	parsed, e := parseFile(filename)
	if e != nil {
		return e
	}
	fmt.Println(headingStyle.Render(fmt.Sprintf("%s: %s", filename,
		&parsed.Header)))
	absolute := cmd.Bool("absolute")
	for i, t := range parsed.Tracks {
		fmt.Println(headingStyle.Render(fmt.Sprintf("Track %d (%d events):",
			i, len(t.Messages))))
		if absolute {
			track, e := t.Track()
			if e != nil {
				return fmt.Errorf("Couldn't convert track %d: %w", i, e)
			}
			for j, ev := range track.Events {
				fmt.Printf("  %d. Tick %d: %s\n", j, ev.Tick, ev.Message)
			}
			continue
		}
		for j, m := range t.Messages {
			fmt.Printf("  %d. Time %d: %s\n", j, t.TimeDeltas[j], m)
		}
	}
	return nil
}

// Counts the note and tempo events in a track. The end-of-track event is left
// out, since decoders differ on whether they report it.
type eventCounts struct {
	noteOn, noteOff, tempo int
	// The tick of the last counted event.
	lastTick uint32
}

func countReference(track smf.Track) eventCounts {
	var c eventCounts
	var ch, key, vel uint8
	var bpm float64
	tick := uint32(0)
	for _, ev := range track {
		tick += ev.Delta
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel):
			c.noteOn++
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			c.noteOff++
		case ev.Message.GetMetaTempo(&bpm):
			c.tempo++
		default:
			continue
		}
		c.lastTick = tick
	}
	return c
}

func countOurs(track *midi.SMFTrack) eventCounts {
	var c eventCounts
	tick := uint32(0)
	for i, m := range track.Messages {
		tick += track.TimeDeltas[i]
		switch m.(type) {
		case *midi.NoteOnEvent:
			c.noteOn++
		case *midi.NoteOffEvent:
			c.noteOff++
		case midi.SetTempoMetaEvent:
			c.tempo++
		default:
			continue
		}
		c.lastTick = tick
	}
	return c
}

// Decodes the file with both this module's parser and gomidi's, and checks
// that they agree on the notes, tempo changes and length of every track.
func verify(ctx context.Context, cmd *cli.Command) error {
	filename := cmd.Args().First()
	if filename == "" {
		return fmt.Errorf("No input file given. Run with --help for usage.")
	}
	ours, e := parseFile(filename)
	if e != nil {
		return e
	}
	inputFile, e := os.Open(filename)
	if e != nil {
		return fmt.Errorf("Couldn't open %s: %w", filename, e)
	}
	defer inputFile.Close()
	reference, e := smf.ReadFrom(inputFile)
	if e != nil {
		return fmt.Errorf("Reference decoder rejected %s: %w", filename, e)
	}
	ticks, ok := reference.TimeFormat.(smf.MetricTicks)
	if !ok || (uint16(ticks) != ours.Header.Division.TicksPerQuarterNote()) {
		return fmt.Errorf("Time format mismatch: %v vs. %s",
			reference.TimeFormat, ours.Header.Division)
	}
	if len(reference.Tracks) != len(ours.Tracks) {
		return fmt.Errorf("Track count mismatch: %d vs. %d",
			len(reference.Tracks), len(ours.Tracks))
	}
	failed := false
	for i := range ours.Tracks {
		a := countOurs(ours.Tracks[i])
		b := countReference(reference.Tracks[i])
		if (a.noteOn != b.noteOn) || (a.noteOff != b.noteOff) ||
			(a.tempo != b.tempo) || (a.lastTick != b.lastTick) {
			fmt.Println(badStyle.Render(fmt.Sprintf("Track %d differs: "+
				"ours %+v, reference %+v", i, a, b)))
			failed = true
			continue
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("Track %d OK: %d notes, "+
			"%d tempo event(s), last event at tick %d", i, a.noteOn, a.tempo,
			a.lastTick)))
	}
	if failed {
		return fmt.Errorf("%s failed verification", filename)
	}
	return nil
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "smf_tool",
		Usage: "Inspect standard MIDI files",
		Commands: []*cli.Command{
			{
				Name:      "dump",
				Usage:     "Print every event in the file",
				ArgsUsage: "<file.mid>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "absolute",
						Usage: "print absolute ticks instead of time deltas",
					},
				},
				Action: dump,
			},
			{
				Name:      "verify",
				Usage:     "Cross-check the file against an independent decoder",
				ArgsUsage: "<file.mid>",
				Action:    verify,
			},
		},
	}
}

func run() int {
	e := newCommand().Run(context.Background(), os.Args)
	if e != nil {
		fmt.Println(badStyle.Render(e.Error()))
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
