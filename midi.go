// This package turns timed note events into Standard MIDI Files. The
// genomidi directory contains a command-line interface and HTTP server that
// drive it from DNA sequences; smf_tool can inspect the files it produces.
package midi

import (
	"fmt"
	"io"
)

// Reads and returns the next byte from r.
func readByte(r io.Reader) (uint8, error) {
	tmp := []uint8{0}
	_, e := io.ReadFull(r, tmp)
	return tmp[0], e
}

// Reads a MIDI-format variable int (up to 0x0fffffff). Returns an error if one
// occurs, including if the int being read is larger than 0x0fffffff. Will
// return an io.EOF error if and only if the io.EOF occurs when attempting to
// read the first byte of the integer.
func ReadVariableInt(r io.Reader) (uint32, error) {
	toReturn := uint32(0)
	for i := 0; i < 4; i++ {
		b, e := readByte(r)
		if e != nil {
			if i == 0 {
				// Make sure io.EOF gets propagated up here.
				return 0, e
			}
			return 0, fmt.Errorf("Failed reading full integer: %w", e)
		}
		toReturn |= uint32(b & 0x7f)
		if (b & 0x80) == 0 {
			break
		}
		toReturn = toReturn << 7
		if i == 3 {
			return 0, fmt.Errorf("Invalid variable-length integer: highest " +
				"bit not clear on byte 4")
		}
	}
	return toReturn, nil
}

// Appends the MIDI-format variable int encoding of n to dst and returns the
// extended slice. The encoding is always the shortest one: values below 0x80
// take one byte, below 0x4000 two bytes, and so on up to four bytes for
// 0x0fffffff. Larger values can't be represented and return ErrInvalidInput.
func AppendVariableInt(dst []byte, n uint32) ([]byte, error) {
	if n > 0x0fffffff {
		return dst, invalidInput("integer 0x%08x is too large for a MIDI int",
			n)
	}
	// Peel off 7-bit groups, least significant first. The loop body runs at
	// least once, so 0 becomes the single group 0x00. Every pass removes 7
	// bits from n, and n has at most 28 bits, so it ends after 4 passes at the
	// most.
	var groups [4]byte
	count := 0
	for {
		groups[count] = uint8(n & 0x7f)
		count++
		n >>= 7
		if n == 0 {
			break
		}
	}
	// Emit the groups most significant first. Every byte but the last one
	// gets the continuation bit.
	for i := count - 1; i >= 0; i-- {
		b := groups[i]
		if i != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst, nil
}

// Writes a MIDI-format variable int (up to 0x0fffffff) to the given output
// stream. Returns an error if one occurs, including if the integer is invalid.
func WriteVariableInt(w io.Writer, n uint32) error {
	var scratch [4]byte
	encoded, e := AppendVariableInt(scratch[:0], n)
	if e != nil {
		return e
	}
	_, e = w.Write(encoded)
	return e
}

// Message is one of the events that can appear in a track: *NoteOnEvent,
// *NoteOffEvent, SetTempoMetaEvent or EndOfTrackMetaEvent. The set is closed;
// other packages can't add their own kinds.
type Message interface {
	// A string representation of the event.
	String() string
	// Returns a non-nil error wrapping ErrInvalidInput if the message holds
	// a value that can't be encoded.
	validate() error
	// Appends the bytes for this message, as they appear in an SMF file after
	// the delta-time. Status bytes are always written; running status is never
	// used.
	appendSMF(dst []byte) []byte
}

// Holds a MIDI note value, from 0 (C-1) to 127 (G9).
type MIDINote uint8

func (n MIDINote) String() string {
	if n > 0x7f {
		return fmt.Sprintf("MIDI note %d", uint8(n))
	}
	notes := [...]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A",
		"A#", "B"}
	return fmt.Sprintf("%s%d", notes[n%12], int(n)/12-1)
}

type NoteOffEvent struct {
	Channel  uint8
	Note     MIDINote
	Velocity uint8
}

func (v *NoteOffEvent) String() string {
	return fmt.Sprintf("Channel %d: %s off, velocity = %d", v.Channel, v.Note,
		v.Velocity)
}

func (v *NoteOffEvent) validate() error {
	return validateChannelEvent("note-off", v.Channel, v.Note, v.Velocity)
}

func (v *NoteOffEvent) appendSMF(dst []byte) []byte {
	return append(dst, 0x80|v.Channel, byte(v.Note), v.Velocity)
}

type NoteOnEvent struct {
	Channel  uint8
	Note     MIDINote
	Velocity uint8
}

func (v *NoteOnEvent) String() string {
	return fmt.Sprintf("Channel %d: %s on, velocity = %d", v.Channel, v.Note,
		v.Velocity)
}

func (v *NoteOnEvent) validate() error {
	return validateChannelEvent("note-on", v.Channel, v.Note, v.Velocity)
}

func (v *NoteOnEvent) appendSMF(dst []byte) []byte {
	return append(dst, 0x90|v.Channel, byte(v.Note), v.Velocity)
}

func validateChannelEvent(kind string, channel uint8, note MIDINote,
	velocity uint8) error {
	if channel > 0xf {
		return invalidInput("invalid %s channel: %d", kind, channel)
	}
	if note > 0x7f {
		return invalidInput("invalid %s note: %d", kind, uint8(note))
	}
	if velocity > 0x7f {
		return invalidInput("invalid %s velocity: %d", kind, velocity)
	}
	return nil
}

// Holds the 24-bit value for a "set tempo" meta-event. This contains the
// number of microseconds per quarter note.
type SetTempoMetaEvent uint32

func (t SetTempoMetaEvent) String() string {
	if t == 0 {
		return "Set tempo to 0 us/quarter note"
	}
	return fmt.Sprintf("Set tempo to %d us/quarter note (%g BPM)", uint32(t),
		t.BPM())
}

// Returns the tempo in quarter notes per minute.
func (t SetTempoMetaEvent) BPM() float64 {
	return 60000000.0 / float64(t)
}

func (t SetTempoMetaEvent) validate() error {
	if (t == 0) || (t > 0xffffff) {
		return invalidInput("set tempo value 0x%x doesn't fit in 24 bits",
			uint32(t))
	}
	return nil
}

func (t SetTempoMetaEvent) appendSMF(dst []byte) []byte {
	return append(dst, 0xff, 0x51, 0x03, byte(t>>16), byte(t>>8), byte(t))
}

// Marks the end of a track. Every track ends with exactly one of these.
type EndOfTrackMetaEvent struct{}

func (EndOfTrackMetaEvent) String() string {
	return "End of track"
}

func (EndOfTrackMetaEvent) validate() error {
	return nil
}

func (EndOfTrackMetaEvent) appendSMF(dst []byte) []byte {
	return append(dst, 0xff, 0x2f, 0x00)
}

// Parses a meta-event. Assumes the leading 0xff byte has already been
// consumed. Only the tempo and end-of-track events are understood.
func parseMetaEvent(r io.Reader) (Message, error) {
	eventType, e := readByte(r)
	if e != nil {
		return nil, fmt.Errorf("Failed reading meta-event type: %w", e)
	}
	length, e := ReadVariableInt(r)
	if e != nil {
		return nil, fmt.Errorf("Failed reading meta-event length: %w", e)
	}
	if (eventType != 0x51) && (eventType != 0x2f) {
		return nil, fmt.Errorf("Meta-event type 0x%02x not supported",
			eventType)
	}
	// Neither supported event has more than 3 bytes of data.
	if length > 3 {
		return nil, fmt.Errorf("Meta-event type 0x%02x has bad length %d",
			eventType, length)
	}
	data := make([]byte, length)
	_, e = io.ReadFull(r, data)
	if e != nil {
		return nil, fmt.Errorf("Failed reading meta-event data: %w", e)
	}
	switch eventType {
	case 0x51:
		if len(data) != 3 {
			return nil, fmt.Errorf("Expected 3 byte length for set tempo "+
				"event, got %d bytes", len(data))
		}
		toReturn := uint32(data[2])
		toReturn |= uint32(data[1]) << 8
		toReturn |= uint32(data[0]) << 16
		return SetTempoMetaEvent(toReturn), nil
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("End of track event has %d data bytes",
			len(data))
	}
	return EndOfTrackMetaEvent{}, nil
}

// Reads the note and velocity of a note-on or note-off event. If firstByte
// isn't a status byte, running status is in effect and it holds the note.
func parseNoteData(r io.Reader, firstByte uint8) (MIDINote, uint8, error) {
	var n uint8
	var e error
	if firstByte <= 0x7f {
		n = firstByte
	} else {
		n, e = readByte(r)
	}
	if e != nil {
		return 0, 0, fmt.Errorf("Failed reading note: %w", e)
	}
	if n > 0x7f {
		return 0, 0, fmt.Errorf("Invalid note: %d", n)
	}
	v, e := readByte(r)
	if e != nil {
		return 0, 0, fmt.Errorf("Failed reading velocity: %w", e)
	}
	if v > 0x7f {
		return 0, 0, fmt.Errorf("Invalid velocity: %d", v)
	}
	return MIDINote(n), v, nil
}

func parseChannelMessage(r io.Reader, firstByte byte, runningStatus *byte) (
	Message, error) {
	status := firstByte
	// Use the running status if the first byte is not a status byte.
	if (status & 0x80) == 0 {
		status = *runningStatus
	} else {
		*runningStatus = status
	}
	if (status & 0x80) == 0 {
		return nil, fmt.Errorf("Can't parse a channel message without a " +
			"valid status or running status")
	}
	channel := status & 0xf
	switch status & 0xf0 {
	case 0x80:
		note, velocity, e := parseNoteData(r, firstByte)
		if e != nil {
			return nil, fmt.Errorf("Bad note-off event: %w", e)
		}
		return &NoteOffEvent{
			Channel:  channel,
			Note:     note,
			Velocity: velocity,
		}, nil
	case 0x90:
		note, velocity, e := parseNoteData(r, firstByte)
		if e != nil {
			return nil, fmt.Errorf("Bad note-on event: %w", e)
		}
		return &NoteOnEvent{
			Channel:  channel,
			Note:     note,
			Velocity: velocity,
		}, nil
	}
	return nil, fmt.Errorf("Channel message with status 0x%02x not supported",
		status)
}

// Parses and returns the MIDI message at the start of r. Requires a running
// status byte that may be modified by calling this function. If a running
// status is not set, then runningStatus must be zero.
func ReadSMFMessage(r io.Reader, runningStatus *byte) (Message, error) {
	firstByte, e := readByte(r)
	if e != nil {
		return nil, fmt.Errorf("Failed reading start of MIDI message: %w", e)
	}
	if firstByte == 0xff {
		// Meta-events reset running status.
		*runningStatus = 0
		return parseMetaEvent(r)
	}
	if (firstByte & 0xf0) == 0xf0 {
		*runningStatus = 0
		return nil, fmt.Errorf("Status byte 0x%02x not supported", firstByte)
	}
	return parseChannelMessage(r, firstByte, runningStatus)
}
