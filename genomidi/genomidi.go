// This defines a command-line utility that turns DNA sequences (FASTA or
// plain text) into standard MIDI files, either one file at a time or behind an
// HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/genomidi/midi"
	"github.com/genomidi/midi/arrange"
	"github.com/genomidi/midi/config"
	"github.com/genomidi/midi/dna"
	"github.com/genomidi/midi/server"
	"github.com/genomidi/midi/theme"
)

// Loads the config named by the --config flag and creates the logger at the
// configured level, which --log-level overrides.
func setup(cmd *cli.Command) (*config.Config, *log.Logger, error) {
	cfg, e := config.Load(cmd.String("config"))
	if e != nil {
		return nil, nil, fmt.Errorf("couldn't load config: %w", e)
	}
	levelName := cfg.LogLevel
	if cmd.IsSet("log-level") {
		levelName = cmd.String("log-level")
	}
	level, e := log.ParseLevel(levelName)
	if e != nil {
		return nil, nil, fmt.Errorf("bad log level %q: %w", levelName, e)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "genomidi",
		Level:           level,
	})
	return cfg, logger, nil
}

func readInput(name string) (string, error) {
	if name == "" || name == "-" {
		data, e := io.ReadAll(os.Stdin)
		return string(data), e
	}
	data, e := os.ReadFile(name)
	return string(data), e
}

func convert(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, e := setup(cmd)
	if e != nil {
		return e
	}
	settings := arrange.SettingsFrom(cfg.Music)
	if cmd.IsSet("tempo") {
		settings.Tempo = cmd.Float("tempo")
	}
	if cmd.IsSet("note-length") {
		settings.NoteLength = cmd.Float("note-length")
	}
	if cmd.IsSet("octave") {
		settings.Octave = int(cmd.Int("octave"))
	}
	if cmd.IsSet("max-bases") {
		settings.MaxBases = int(cmd.Int("max-bases"))
	}
	if cmd.IsSet("theme") {
		id := cmd.String("theme")
		if _, ok := theme.ByID(id); !ok {
			return fmt.Errorf("unknown theme %q, choose one of %v", id,
				theme.IDs())
		}
		settings.Theme = id
	}

	inputName := cmd.Args().First()
	content, e := readInput(inputName)
	if e != nil {
		return fmt.Errorf("couldn't read %s: %w", inputName, e)
	}
	seq, e := dna.ParseFASTA(content)
	if e != nil {
		return fmt.Errorf("couldn't parse %s: %w", inputName, e)
	}
	if len(seq.InvalidBases) > 0 {
		logger.Warn("dropped characters", "chars", seq.InvalidBases,
			"count", seq.Length-seq.ValidBases)
	}
	data, e := arrange.Render(seq.Bases, settings)
	if e != nil {
		if midi.IsInternal(e) {
			logger.Error("encoder failure", "err", fmt.Sprintf("%+v", e))
		}
		return fmt.Errorf("couldn't render %s: %w", seq.Name, e)
	}

	output := cmd.String("output")
	if output == "" {
		output = arrange.ExportFilename(seq.Name,
			theme.Lookup(settings.Theme).Name)
	}
	if output == "-" {
		_, e = os.Stdout.Write(data)
	} else {
		e = os.WriteFile(output, data, 0644)
	}
	if e != nil {
		return fmt.Errorf("couldn't write %s: %w", output, e)
	}
	logger.Info("wrote MIDI file", "name", seq.Name, "bases", seq.ValidBases,
		"bytes", len(data), "output", output)
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, e := setup(cmd)
	if e != nil {
		return e
	}
	if cmd.IsSet("listen") {
		cfg.Server.Listen = cmd.String("listen")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(cfg, logger).ListenAndServe(ctx)
}

func listThemes(ctx context.Context, cmd *cli.Command) error {
	for _, t := range theme.All() {
		fmt.Printf("%-14s %-14s %s\n", t.ID, t.Name, t.Description)
	}
	return nil
}

func run() int {
	cmd := &cli.Command{
		Name:  "genomidi",
		Usage: "Convert DNA sequences to standard MIDI files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config.json (default ~/.config/genomidi/config.json)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Write a .mid file for a FASTA or text file",
				ArgsUsage: "[input file, or - for stdin]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "output file, - for stdout (default <name>-<theme>.mid)",
					},
					&cli.FloatFlag{
						Name:  "tempo",
						Usage: "beats per minute",
					},
					&cli.FloatFlag{
						Name:  "note-length",
						Usage: "length of one base, in quarter notes",
					},
					&cli.IntFlag{
						Name:  "octave",
						Usage: "octave the theme's notes are played in",
					},
					&cli.IntFlag{
						Name:  "max-bases",
						Usage: "play at most this many bases, 0 for all",
					},
					&cli.StringFlag{
						Name:  "theme",
						Usage: "theme ID, see the themes command",
					},
				},
				Action: convert,
			},
			{
				Name:  "serve",
				Usage: "Serve the conversion API over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Usage: "address to listen on"},
				},
				Action: serve,
			},
			{
				Name:   "themes",
				Usage:  "List the available themes",
				Action: listThemes,
			},
		},
	}
	e := cmd.Run(context.Background(), os.Args)
	if e != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
