package midi

// This file contains code used for building a track out of note events.

import (
	"fmt"
	"math"
	"strings"
)

// The number of ticks per quarter note used when the caller doesn't pick one.
const DefaultTicksPerQuarterNote = 480

// The largest absolute tick a note may reach. Deltas are encoded as variable
// ints, and this is the largest value one can hold.
const MaxTick = 0x0fffffff

// A note as supplied by a caller, with times measured in quarter notes.
type Note struct {
	Pitch uint8
	// The time at which the note starts, in quarter notes. Must be >= 0.
	Start float64
	// How long the note sounds, in quarter notes. Must be > 0, though it may
	// round to zero ticks.
	Duration float64
	Velocity uint8
}

// A note with its start and duration measured in ticks.
type NoteEvent struct {
	Note         MIDINote
	StartTick    uint32
	DurationTick uint32
	Velocity     uint8
}

func (n NoteEvent) String() string {
	return fmt.Sprintf("%s at tick %d for %d ticks, velocity = %d", n.Note,
		n.StartTick, n.DurationTick, n.Velocity)
}

// Converts a time in quarter notes to ticks, rounding halves up.
func quarterNotesToTicks(t float64, ticksPerQuarter uint16) (uint32, error) {
	ticks := math.Round(t * float64(ticksPerQuarter))
	if ticks > MaxTick {
		return 0, invalidInput("time %g is too far into the track", t)
	}
	return uint32(ticks), nil
}

// Converts notes timed in quarter notes into notes timed in ticks. Fractional
// times are rounded to the nearest tick; two notes rounding to the same tick
// are fine. Returns an error wrapping ErrInvalidInput if a time is negative,
// not finite, or a duration isn't positive.
func QuantizeNotes(notes []Note, ticksPerQuarter uint16) ([]NoteEvent,
	error) {
	if (ticksPerQuarter == 0) || (ticksPerQuarter > 0x7fff) {
		return nil, invalidInput("invalid ticks per quarter note: %d",
			ticksPerQuarter)
	}
	toReturn := make([]NoteEvent, len(notes))
	for i, n := range notes {
		if math.IsNaN(n.Start) || math.IsInf(n.Start, 0) || (n.Start < 0) {
			return nil, invalidInput("note %d: invalid start time %g", i,
				n.Start)
		}
		if math.IsNaN(n.Duration) || math.IsInf(n.Duration, 0) ||
			(n.Duration <= 0) {
			return nil, invalidInput("note %d: invalid duration %g", i,
				n.Duration)
		}
		start, e := quarterNotesToTicks(n.Start, ticksPerQuarter)
		if e != nil {
			return nil, fmt.Errorf("note %d: %w", i, e)
		}
		duration, e := quarterNotesToTicks(n.Duration, ticksPerQuarter)
		if e != nil {
			return nil, fmt.Errorf("note %d: %w", i, e)
		}
		toReturn[i] = NoteEvent{
			Note:         MIDINote(n.Pitch),
			StartTick:    start,
			DurationTick: duration,
			Velocity:     n.Velocity,
		}
	}
	return toReturn, nil
}

// A single message at an absolute time, in ticks from the start of the track.
type TrackEvent struct {
	Tick    uint32
	Message Message
}

// A list of events making up one MIDI track. BuildTrack produces events in
// the order they were generated; the encoder sorts them by tick.
type Track struct {
	Events []TrackEvent
}

// Returns the tick of the latest event in the track.
func (t *Track) Duration() uint32 {
	last := uint32(0)
	for _, ev := range t.Events {
		if ev.Tick > last {
			last = ev.Tick
		}
	}
	return last
}

func (t *Track) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Track with %d events:\n", len(t.Events))
	for i, ev := range t.Events {
		fmt.Fprintf(&b, "  %d. Tick %d: %s\n", i+1, ev.Tick, ev.Message)
	}
	return b.String()
}

// Converts a tempo in beats per minute to a set-tempo event.
func TempoFromBPM(bpm float64) (SetTempoMetaEvent, error) {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || (bpm <= 0) {
		return 0, invalidInput("invalid tempo: %g BPM", bpm)
	}
	usPerQuarter := math.Round(60000000.0 / bpm)
	if (usPerQuarter < 1) || (usPerQuarter > 0xffffff) {
		return 0, invalidInput("tempo %g BPM is out of range", bpm)
	}
	return SetTempoMetaEvent(usPerQuarter), nil
}

// Builds a track from a list of notes. The track starts with a tempo event at
// tick 0, contains a note-on and note-off pair for every note, in input
// order, and ends with an end-of-track event at the latest tick. Note-off
// events always use velocity 0. Every note is checked before anything is
// built, so an invalid note or tempo returns an error wrapping
// ErrInvalidInput and no track.
func BuildTrack(notes []NoteEvent, tempoBPM float64) (*Track, error) {
	tempo, e := TempoFromBPM(tempoBPM)
	if e != nil {
		return nil, e
	}
	for i, n := range notes {
		if n.Note > 0x7f {
			return nil, invalidInput("note %d: pitch %d out of range", i,
				uint8(n.Note))
		}
		if n.Velocity > 0x7f {
			return nil, invalidInput("note %d: velocity %d out of range", i,
				n.Velocity)
		}
		if (n.StartTick > MaxTick) || (n.DurationTick > MaxTick-n.StartTick) {
			return nil, invalidInput("note %d: ends past tick 0x%x", i,
				MaxTick)
		}
	}
	events := make([]TrackEvent, 0, 2*len(notes)+2)
	events = append(events, TrackEvent{Tick: 0, Message: tempo})
	lastTick := uint32(0)
	for _, n := range notes {
		end := n.StartTick + n.DurationTick
		events = append(events, TrackEvent{
			Tick: n.StartTick,
			Message: &NoteOnEvent{
				Note:     n.Note,
				Velocity: n.Velocity,
			},
		}, TrackEvent{
			Tick: end,
			Message: &NoteOffEvent{
				Note:     n.Note,
				Velocity: 0,
			},
		})
		if end > lastTick {
			lastTick = end
		}
	}
	events = append(events, TrackEvent{
		Tick:    lastTick,
		Message: EndOfTrackMetaEvent{},
	})
	return &Track{Events: events}, nil
}
