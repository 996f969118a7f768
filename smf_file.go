package midi

// This file contains code used for writing and reading .mid SMF-format files.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// This corresponds to the division field of the MThd chunk.
type TimeDivision uint16

// Returns the number of ticks per quarter note, or 0 if the time division
// doesn't specify a number of ticks per quarter note.
func (d TimeDivision) TicksPerQuarterNote() uint16 {
	if (d & 0x8000) != 0 {
		return 0
	}
	return uint16(d)
}

func (d TimeDivision) String() string {
	if (d & 0x7fff) == 0 {
		return fmt.Sprintf("Invalid TimeDivision value: 0x%04x", uint16(d))
	}
	qnTicks := d.TicksPerQuarterNote()
	if qnTicks != 0 {
		return fmt.Sprintf("%d ticks per quarter note", qnTicks)
	}
	// The top byte is a negative frame rate in 2's complement.
	fps := uint8(-int8(d >> 8))
	return fmt.Sprintf("%d frames per second, %d ticks per frame", fps,
		uint8(d&0xff))
}

// Specifies the format used by the SMF file header.
type SMFHeader struct {
	// This must be 'MThd'
	ChunkType [4]byte
	// This must be 6
	ChunkSize uint32
	// Files written by this package are always format 1.
	Format uint16
	// The number of tracks in the file.
	TrackCount uint16
	// Specifies what the delta-times mean in this file.
	Division TimeDivision
}

func (h *SMFHeader) String() string {
	return fmt.Sprintf("Format %d, with %d track(s), %s", h.Format,
		h.TrackCount, h.Division.String())
}

// Returns the header written in front of a single-track file.
func newSMFHeader(ticksPerQuarter uint16) SMFHeader {
	return SMFHeader{
		ChunkType:  [4]byte{'M', 'T', 'h', 'd'},
		ChunkSize:  6,
		Format:     1,
		TrackCount: 1,
		Division:   TimeDivision(ticksPerQuarter),
	}
}

// Returns the track's events sorted by tick. Events sharing a tick keep the
// order they have in the track. The track itself isn't modified.
func (t *Track) sortedEvents() []TrackEvent {
	sorted := make([]TrackEvent, len(t.Events))
	copy(sorted, t.Events)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Tick < sorted[b].Tick
	})
	return sorted
}

// Serializes the track's events into the body of an MTrk chunk.
func (t *Track) chunkContent() ([]byte, error) {
	for i, ev := range t.Events {
		if ev.Message == nil {
			return nil, invalidInput("event %d has no message", i)
		}
		e := ev.Message.validate()
		if e != nil {
			return nil, fmt.Errorf("event %d: %w", i, e)
		}
	}
	sorted := t.sortedEvents()
	// Most events take 4 bytes: a one-byte delta and three bytes of message.
	content := make([]byte, 0, 4*len(sorted))
	lastTick := uint32(0)
	var e error
	for i, ev := range sorted {
		if ev.Tick < lastTick {
			return nil, internalError("event %d at tick %d comes after tick "+
				"%d in a sorted track", i, ev.Tick, lastTick)
		}
		content, e = AppendVariableInt(content, ev.Tick-lastTick)
		if e != nil {
			return nil, fmt.Errorf("couldn't write time delta for event %d: "+
				"%w", i, e)
		}
		content = ev.Message.appendSMF(content)
		lastTick = ev.Tick
	}
	return content, nil
}

// Encodes the track as a complete single-track, format 1 SMF file, using the
// given number of ticks per quarter note. The output depends only on the
// arguments, so encoding the same track twice yields identical bytes.
// Returns an error wrapping ErrInvalidInput if the division or an event can't
// be encoded, or ErrInternal if the sorted events aren't in order.
func Encode(track *Track, ticksPerQuarter uint16) ([]byte, error) {
	if track == nil {
		return nil, invalidInput("nil track")
	}
	if (ticksPerQuarter == 0) || (ticksPerQuarter > 0x7fff) {
		return nil, invalidInput("invalid ticks per quarter note: %d",
			ticksPerQuarter)
	}
	content, e := track.chunkContent()
	if e != nil {
		return nil, e
	}
	if uint64(len(content)) > 0xffffffff {
		return nil, invalidInput("track chunk is too long: %d bytes",
			len(content))
	}
	output := bytes.NewBuffer(make([]byte, 0, 14+8+len(content)))
	header := newSMFHeader(ticksPerQuarter)
	e = binary.Write(output, binary.BigEndian, &header)
	if e != nil {
		return nil, fmt.Errorf("failed writing SMF header: %w", e)
	}
	output.WriteString("MTrk")
	e = binary.Write(output, binary.BigEndian, uint32(len(content)))
	if e != nil {
		return nil, fmt.Errorf("failed writing chunk size: %w", e)
	}
	output.Write(content)
	return output.Bytes(), nil
}

// Writes the track to the given output file as a format 1 SMF file. Nothing
// is written if the track can't be encoded.
func (t *Track) WriteSMF(file io.Writer, ticksPerQuarter uint16) error {
	data, e := Encode(t, ticksPerQuarter)
	if e != nil {
		return e
	}
	_, e = file.Write(data)
	if e != nil {
		return fmt.Errorf("failed writing SMF data: %w", e)
	}
	return nil
}

// Quantizes the notes at DefaultTicksPerQuarterNote, builds a track with the
// given tempo, and returns it encoded as an SMF file.
func RenderNotes(notes []Note, tempoBPM float64) ([]byte, error) {
	events, e := QuantizeNotes(notes, DefaultTicksPerQuarterNote)
	if e != nil {
		return nil, e
	}
	track, e := BuildTrack(events, tempoBPM)
	if e != nil {
		return nil, e
	}
	return Encode(track, DefaultTicksPerQuarterNote)
}

// This holds the content of a single MIDI track chunk, as read from a file.
type SMFTrack struct {
	// The list of MIDI messages in this track, in the order they appear.
	Messages []Message
	// The time deltas for each MIDI message. Has the same length as the
	// Messages slice; TimeDeltas[i] is the time delta for Messages[i].
	TimeDeltas []uint32
}

// Converts the track's time deltas to absolute ticks. Returns an error
// wrapping ErrInvalidInput if Messages and TimeDeltas differ in length, or if
// the ticks run past MaxTick.
func (t *SMFTrack) Track() (*Track, error) {
	if len(t.Messages) != len(t.TimeDeltas) {
		return nil, invalidInput("track has %d messages but %d time deltas",
			len(t.Messages), len(t.TimeDeltas))
	}
	events := make([]TrackEvent, len(t.Messages))
	tick := uint64(0)
	for i, m := range t.Messages {
		tick += uint64(t.TimeDeltas[i])
		if tick > MaxTick {
			return nil, invalidInput("event %d is past the last valid tick",
				i)
		}
		events[i] = TrackEvent{
			Tick:    uint32(tick),
			Message: m,
		}
	}
	return &Track{Events: events}, nil
}

// Parses and returns an SMF track, assuming the given reader is at the start
// of a track.
func parseSMFTrack(file io.Reader) (*SMFTrack, error) {
	chunkType := make([]byte, 4)
	e := binary.Read(file, binary.BigEndian, chunkType)
	if e != nil {
		return nil, fmt.Errorf("Failed reading track's chunk type: %w", e)
	}
	if string(chunkType) != "MTrk" {
		return nil, fmt.Errorf("Bad chunk type for track: %q",
			string(chunkType))
	}
	var length uint32
	e = binary.Read(file, binary.BigEndian, &length)
	if e != nil {
		return nil, fmt.Errorf("Failed reading track's length: %w", e)
	}
	// The length comes from the file, so it only bounds how far we read. A
	// limitedReader keeps a track's events within its stated length.
	limitedReader := &io.LimitedReader{
		R: file,
		N: int64(length),
	}
	var messages []Message
	var timeDeltas []uint32
	var timeDelta uint32
	var message Message
	runningStatus := byte(0)
	for {
		timeDelta, e = ReadVariableInt(limitedReader)
		if e != nil {
			// We know we've properly read the full track if we encounter EOF
			// when attempting to start reading a new event.
			if e == io.EOF {
				break
			}
			return nil, fmt.Errorf("Failed reading time delta for event "+
				"%d: %w", len(messages), e)
		}
		message, e = ReadSMFMessage(limitedReader, &runningStatus)
		if e != nil {
			return nil, fmt.Errorf("Failed reading MIDI message for event "+
				"%d: %w", len(messages), e)
		}
		timeDeltas = append(timeDeltas, timeDelta)
		messages = append(messages, message)
	}
	if limitedReader.N != 0 {
		return nil, fmt.Errorf("Track ended %d bytes short of its stated "+
			"length of %d", limitedReader.N, length)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("Track contains no events")
	}
	if _, ok := messages[len(messages)-1].(EndOfTrackMetaEvent); !ok {
		return nil, fmt.Errorf("Track doesn't end with an end-of-track event")
	}
	return &SMFTrack{
		TimeDeltas: timeDeltas,
		Messages:   messages,
	}, nil
}

// Tracks an entire MIDI file, consisting of one or more tracks and timing
// information.
type SMFFile struct {
	Header SMFHeader
	Tracks []*SMFTrack
}

// Parses the given SMF file, returning an initialized SMFFile struct, or an
// error if the file was invalid. Only the events this package writes are
// understood: note-on, note-off, set tempo and end of track.
func ParseSMFFile(file io.Reader) (*SMFFile, error) {
	var toReturn SMFFile
	e := binary.Read(file, binary.BigEndian, &toReturn.Header)
	if e != nil {
		return nil, fmt.Errorf("Failed parsing SMF header: %w", e)
	}
	if string(toReturn.Header.ChunkType[:]) != "MThd" {
		return nil, fmt.Errorf("Bad chunk type for header: %q",
			string(toReturn.Header.ChunkType[:]))
	}
	if toReturn.Header.ChunkSize != 6 {
		return nil, fmt.Errorf("Expected a header length of 6, got %d",
			toReturn.Header.ChunkSize)
	}
	toReturn.Tracks = make([]*SMFTrack, toReturn.Header.TrackCount)
	for i := 0; i < len(toReturn.Tracks); i++ {
		toReturn.Tracks[i], e = parseSMFTrack(file)
		if e != nil {
			return nil, fmt.Errorf("Failed parsing SMF track %d: %w", i, e)
		}
	}
	return &toReturn, nil
}
