package midi

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"sync"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"
)

// The complete file produced for an empty note list at 120 BPM.
var emptyTrackFile = []byte{
	// MThd
	0x4d, 0x54, 0x68, 0x64,
	// Chunk length
	0, 0, 0, 6,
	// Format 1
	0, 1,
	// One track
	0, 1,
	// 480 ticks per quarter note
	0x01, 0xe0,
	// MTrk
	0x4d, 0x54, 0x72, 0x6b,
	// Chunk length
	0, 0, 0, 0x0b,
	// Tempo: 500000 us per quarter note
	0, 0xff, 0x51, 3, 0x07, 0xa1, 0x20,
	// End of track
	0, 0xff, 0x2f, 0,
}

// Builds and encodes the notes at 480 ticks per quarter note, failing the test
// on any error.
func mustEncode(t *testing.T, notes []NoteEvent, bpm float64) []byte {
	track, e := BuildTrack(notes, bpm)
	if e != nil {
		t.Logf("Failed building track: %s\n", e)
		t.FailNow()
	}
	data, e := Encode(track, DefaultTicksPerQuarterNote)
	if e != nil {
		t.Logf("Failed encoding track: %s\n", e)
		t.FailNow()
	}
	return data
}

func TestEncodeEmptyTrack(t *testing.T) {
	for i := 0; i < 3; i++ {
		data := mustEncode(t, nil, 120)
		if !bytes.Equal(data, emptyTrackFile) {
			t.Logf("Wrong bytes for an empty track:\n got % x\nwant % x\n",
				data, emptyTrackFile)
			t.FailNow()
		}
	}
}

func TestEncodeSingleNote(t *testing.T) {
	notes := []Note{
		{Pitch: 60, Start: 0, Duration: 1, Velocity: 64},
	}
	data, e := RenderNotes(notes, 120)
	if e != nil {
		t.Logf("Failed rendering notes: %s\n", e)
		t.FailNow()
	}
	expected := []byte{
		0x4d, 0x54, 0x68, 0x64, 0, 0, 0, 6, 0, 1, 0, 1, 0x01, 0xe0,
		0x4d, 0x54, 0x72, 0x6b,
		// Chunk length
		0, 0, 0, 0x14,
		// Tempo
		0, 0xff, 0x51, 3, 0x07, 0xa1, 0x20,
		// C4 on, velocity 64
		0, 0x90, 0x3c, 0x40,
		// C4 off, 480 ticks later
		0x83, 0x60, 0x80, 0x3c, 0,
		// End of track
		0, 0xff, 0x2f, 0,
	}
	if !bytes.Equal(data, expected) {
		t.Logf("Wrong bytes for a single note:\n got % x\nwant % x\n", data,
			expected)
		t.FailNow()
	}
}

// Decodes the file with gomidi's SMF reader, which shares no code with this
// package.
func TestEncodeMatchesReferenceDecoder(t *testing.T) {
	data, e := RenderNotes([]Note{
		{Pitch: 60, Start: 0, Duration: 1, Velocity: 64},
	}, 120)
	if e != nil {
		t.Logf("Failed rendering notes: %s\n", e)
		t.FailNow()
	}
	decoded, e := smf.ReadFrom(bytes.NewReader(data))
	if e != nil {
		t.Logf("Reference decoder rejected the file: %s\n", e)
		t.FailNow()
	}
	ticks, ok := decoded.TimeFormat.(smf.MetricTicks)
	if !ok || (ticks != 480) {
		t.Logf("Got wrong time format: %v\n", decoded.TimeFormat)
		t.FailNow()
	}
	if len(decoded.Tracks) != 1 {
		t.Logf("Expected 1 track, got %d\n", len(decoded.Tracks))
		t.FailNow()
	}
	var channel, key, velocity uint8
	var bpm float64
	tick := uint32(0)
	sawTempo, sawOn, sawOff := false, false, false
	for _, ev := range decoded.Tracks[0] {
		tick += ev.Delta
		switch {
		case ev.Message.GetMetaTempo(&bpm):
			if (tick != 0) || (bpm != 120) {
				t.Logf("Got tempo %g BPM at tick %d\n", bpm, tick)
				t.Fail()
			}
			sawTempo = true
		case ev.Message.GetNoteOn(&channel, &key, &velocity):
			if (tick != 0) || (key != 60) || (velocity != 64) {
				t.Logf("Got note on %d/%d at tick %d\n", key, velocity, tick)
				t.Fail()
			}
			sawOn = true
		case ev.Message.GetNoteOff(&channel, &key, &velocity):
			if (tick != 480) || (key != 60) || (velocity != 0) {
				t.Logf("Got note off %d/%d at tick %d\n", key, velocity, tick)
				t.Fail()
			}
			sawOff = true
		}
	}
	if !sawTempo || !sawOn || !sawOff {
		t.Logf("Missing events: tempo %v, on %v, off %v\n", sawTempo, sawOn,
			sawOff)
		t.FailNow()
	}
	// End of track comes last, at or after the note off.
	ours, e := ParseSMFFile(bytes.NewReader(data))
	if e != nil {
		t.Logf("Failed parsing our own output: %s\n", e)
		t.FailNow()
	}
	track, e := ours.Tracks[0].Track()
	if e != nil {
		t.Logf("Failed converting track: %s\n", e)
		t.FailNow()
	}
	last := track.Events[len(track.Events)-1]
	if _, ok := last.Message.(EndOfTrackMetaEvent); !ok || (last.Tick < 480) {
		t.Logf("Last event is %s at tick %d\n", last.Message, last.Tick)
		t.FailNow()
	}
}

// Generates a deterministic list of notes, with overlapping notes, zero-length
// notes and notes that collide on the same tick.
func testNotes(count int) []NoteEvent {
	notes := make([]NoteEvent, count)
	for i := range notes {
		notes[i] = NoteEvent{
			Note:         MIDINote(36 + (i*7)%48),
			StartTick:    uint32((i / 2) * 240),
			DurationTick: uint32((i % 5) * 300),
			Velocity:     uint8(1 + (i*13)%127),
		}
	}
	return notes
}

func TestEncodeChunkLengthAndDeltas(t *testing.T) {
	for count := 0; count <= 64; count++ {
		notes := testNotes(count)
		data := mustEncode(t, notes, 97.5)
		chunkLength := binary.BigEndian.Uint32(data[18:22])
		if int(chunkLength) != len(data)-22 {
			t.Logf("%d notes: chunk length %d, but %d bytes follow\n", count,
				chunkLength, len(data)-22)
			t.FailNow()
		}
		parsed, e := ParseSMFFile(bytes.NewReader(data))
		if e != nil {
			t.Logf("%d notes: failed parsing output: %s\n", count, e)
			t.FailNow()
		}
		smfTrack := parsed.Tracks[0]
		if len(smfTrack.Messages) != 2*count+2 {
			t.Logf("%d notes: got %d events\n", count, len(smfTrack.Messages))
			t.FailNow()
		}
		sum := uint32(0)
		for _, d := range smfTrack.TimeDeltas {
			sum += d
		}
		track, _ := BuildTrack(notes, 97.5)
		if sum != track.Duration() {
			t.Logf("%d notes: deltas add up to %d, expected %d\n", count, sum,
				track.Duration())
			t.FailNow()
		}
	}
}

func TestEncodeZeroLengthNote(t *testing.T) {
	notes, e := QuantizeNotes([]Note{
		{Pitch: 64, Start: 2, Duration: 0.0001, Velocity: 100},
	}, DefaultTicksPerQuarterNote)
	if e != nil {
		t.Logf("Failed quantizing a very short note: %s\n", e)
		t.FailNow()
	}
	if notes[0].DurationTick != 0 {
		t.Logf("Expected a duration of 0 ticks, got %d\n",
			notes[0].DurationTick)
		t.FailNow()
	}
	data := mustEncode(t, notes, 120)
	parsed, e := ParseSMFFile(bytes.NewReader(data))
	if e != nil {
		t.Logf("Failed parsing output: %s\n", e)
		t.FailNow()
	}
	track, e := parsed.Tracks[0].Track()
	if e != nil {
		t.Logf("Failed converting track: %s\n", e)
		t.FailNow()
	}
	on, isOn := track.Events[1].Message.(*NoteOnEvent)
	off, isOff := track.Events[2].Message.(*NoteOffEvent)
	if !isOn || !isOff || (on.Note != 64) || (off.Note != 64) {
		t.Logf("Expected a note on and off, got %s", track)
		t.FailNow()
	}
	if (track.Events[1].Tick != 960) || (track.Events[2].Tick != 960) {
		t.Logf("Expected both events at tick 960, got %s", track)
		t.FailNow()
	}
}

func TestEncodeSortsByTickStably(t *testing.T) {
	// The second note starts before the first one ends, and the third starts
	// exactly when the first ends.
	notes := []NoteEvent{
		{Note: 60, StartTick: 0, DurationTick: 480, Velocity: 90},
		{Note: 62, StartTick: 240, DurationTick: 480, Velocity: 91},
		{Note: 64, StartTick: 480, DurationTick: 480, Velocity: 92},
	}
	data := mustEncode(t, notes, 120)
	parsed, e := ParseSMFFile(bytes.NewReader(data))
	if e != nil {
		t.Logf("Failed parsing output: %s\n", e)
		t.FailNow()
	}
	expected := []struct {
		tick    uint32
		message string
	}{
		{0, SetTempoMetaEvent(500000).String()},
		{0, (&NoteOnEvent{Note: 60, Velocity: 90}).String()},
		{240, (&NoteOnEvent{Note: 62, Velocity: 91}).String()},
		{480, (&NoteOffEvent{Note: 60}).String()},
		{480, (&NoteOnEvent{Note: 64, Velocity: 92}).String()},
		{720, (&NoteOffEvent{Note: 62}).String()},
		{960, (&NoteOffEvent{Note: 64}).String()},
		{960, EndOfTrackMetaEvent{}.String()},
	}
	track, e := parsed.Tracks[0].Track()
	if e != nil {
		t.Logf("Failed converting track: %s\n", e)
		t.FailNow()
	}
	if len(track.Events) != len(expected) {
		t.Logf("Expected %d events, got %s", len(expected), track)
		t.FailNow()
	}
	for i, ev := range track.Events {
		if (ev.Tick != expected[i].tick) ||
			(ev.Message.String() != expected[i].message) {
			t.Logf("Event %d: got %s at tick %d, expected %s at tick %d\n",
				i, ev.Message, ev.Tick, expected[i].message, expected[i].tick)
			t.Fail()
		}
	}
}

func TestEncodeDoesNotModifyTrack(t *testing.T) {
	track := &Track{
		Events: []TrackEvent{
			{Tick: 10, Message: EndOfTrackMetaEvent{}},
			{Tick: 0, Message: SetTempoMetaEvent(500000)},
		},
	}
	_, e := Encode(track, DefaultTicksPerQuarterNote)
	if e != nil {
		t.Logf("Failed encoding unsorted track: %s\n", e)
		t.FailNow()
	}
	if track.Events[0].Tick != 10 {
		t.Logf("Encode reordered the caller's events\n")
		t.FailNow()
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	notes := testNotes(50)
	first := mustEncode(t, notes, 133)
	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			track, e := BuildTrack(notes, 133)
			if e != nil {
				return
			}
			results[i], _ = Encode(track, DefaultTicksPerQuarterNote)
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if !bytes.Equal(first, r) {
			t.Logf("Encoding %d differs from the first one\n", i)
			t.FailNow()
		}
	}
}

func TestInvalidInput(t *testing.T) {
	badTempos := []float64{0, -120, 1e-9, 1e12}
	for _, bpm := range badTempos {
		_, e := BuildTrack(nil, bpm)
		if !IsInvalidInput(e) {
			t.Logf("Tempo %g: expected invalid input, got %v\n", bpm, e)
			t.Fail()
		}
	}
	badNotes := [][]NoteEvent{
		{{Note: 128, Velocity: 1}},
		{{Note: 60, Velocity: 128}},
		{{Note: 60, StartTick: MaxTick, DurationTick: 1}},
	}
	for _, notes := range badNotes {
		_, e := BuildTrack(notes, 120)
		if !IsInvalidInput(e) {
			t.Logf("Notes %v: expected invalid input, got %v\n", notes, e)
			t.Fail()
		}
	}
	badTimes := []Note{
		{Pitch: 60, Start: -1, Duration: 1},
		{Pitch: 60, Start: 0, Duration: 0},
		{Pitch: 60, Start: 0, Duration: -0.5},
	}
	for _, n := range badTimes {
		_, e := RenderNotes([]Note{n}, 120)
		if !IsInvalidInput(e) {
			t.Logf("Note %+v: expected invalid input, got %v\n", n, e)
			t.Fail()
		}
	}
	track, _ := BuildTrack(nil, 120)
	for _, division := range []uint16{0, 0x8000} {
		_, e := Encode(track, division)
		if !IsInvalidInput(e) {
			t.Logf("Division 0x%04x: expected invalid input, got %v\n",
				division, e)
			t.Fail()
		}
	}
	_, e := Encode(&Track{Events: []TrackEvent{
		{Tick: 0, Message: &NoteOnEvent{Channel: 16, Note: 60}},
	}}, DefaultTicksPerQuarterNote)
	if !IsInvalidInput(e) {
		t.Logf("Bad channel: expected invalid input, got %v\n", e)
		t.Fail()
	}
}

func TestInternalErrorIsDistinct(t *testing.T) {
	e := internalError("event %d out of order", 3)
	if !IsInternal(e) || IsInvalidInput(e) {
		t.Logf("Internal error misclassified: %s\n", e)
		t.FailNow()
	}
	e = invalidInput("bad pitch")
	if IsInternal(e) || !IsInvalidInput(e) {
		t.Logf("Invalid input misclassified: %s\n", e)
		t.FailNow()
	}
}

func TestParseSMFFile(t *testing.T) {
	// A file using running status, as other writers produce.
	smfData := []byte{
		// MThd
		0x4d, 0x54, 0x68, 0x64,
		// Chunk length
		0, 0, 0, 6,
		// Format 0
		0, 0,
		// One track
		0, 1,
		// 96 ticks per quarter note
		0, 0x60,
		// MTrk
		0x4d, 0x54, 0x72, 0x6b,
		// Chunk length
		0, 0, 0, 0x14,
		// Tempo
		0, 0xff, 0x51, 3, 7, 0xa1, 0x20,
		// Note 0x4c on, setting running status.
		0x81, 0x40, 0x90, 0x4c, 0x20,
		// Note off, using running status for note on, but velocity=0
		0x81, 0x40, 0x4c, 0,
		// End of track.
		0, 0xff, 0x2f, 0,
	}
	parsed, e := ParseSMFFile(bytes.NewReader(smfData))
	if e != nil {
		t.Logf("Failed parsing SMF file: %s\n", e)
		t.FailNow()
	}
	t.Logf("Header: %s\n", &parsed.Header)
	if parsed.Header.Division.TicksPerQuarterNote() != 96 {
		t.Logf("Got wrong division: %s\n", parsed.Header.Division)
		t.FailNow()
	}
	track, e := parsed.Tracks[0].Track()
	if e != nil {
		t.Logf("Failed converting track: %s\n", e)
		t.FailNow()
	}
	t.Logf("%s", track)
	if (len(track.Events) != 4) || (track.Duration() != 384) {
		t.Logf("Got wrong events: %s", track)
		t.FailNow()
	}
	truncated := smfData[:len(smfData)-3]
	_, e = ParseSMFFile(bytes.NewReader(truncated))
	if e == nil {
		t.Logf("Didn't get an error for a truncated file\n")
		t.FailNow()
	}
	t.Logf("Got expected error for a truncated file: %s\n", e)
}

func TestParseSMFFileBadTrackLength(t *testing.T) {
	header := []byte{
		0x4d, 0x54, 0x68, 0x64,
		0, 0, 0, 6,
		0, 1,
		0, 1,
		0x01, 0xe0,
	}
	// The chunk claims 1 GiB, but only holds an end-of-track event.
	smfData := append([]byte{}, header...)
	smfData = append(smfData,
		// MTrk
		0x4d, 0x54, 0x72, 0x6b,
		// Chunk length
		0x40, 0, 0, 0,
		// End of track
		0, 0xff, 0x2f, 0)
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, e := ParseSMFFile(bytes.NewReader(smfData))
	runtime.ReadMemStats(&after)
	if e == nil {
		t.Logf("Didn't get an error for a track shorter than its length\n")
		t.FailNow()
	}
	t.Logf("Got expected error for a short track: %s\n", e)
	allocated := after.TotalAlloc - before.TotalAlloc
	if allocated > (1 << 20) {
		t.Logf("Parsing a %d-byte file allocated %d bytes\n", len(smfData),
			allocated)
		t.FailNow()
	}

	// A chunk cut off between two events is also too short.
	smfData = append([]byte{}, header...)
	smfData = append(smfData,
		0x4d, 0x54, 0x72, 0x6b,
		0, 0, 0, 8,
		0, 0x90, 0x3c, 0x40)
	_, e = ParseSMFFile(bytes.NewReader(smfData))
	if e == nil {
		t.Logf("Didn't get an error for a track cut off between events\n")
		t.FailNow()
	}
	t.Logf("Got expected error for a cut-off track: %s\n", e)

	// Events can't run past the end of the chunk.
	smfData = append([]byte{}, header...)
	smfData = append(smfData,
		0x4d, 0x54, 0x72, 0x6b,
		0, 0, 0, 2,
		0, 0xff, 0x2f, 0)
	_, e = ParseSMFFile(bytes.NewReader(smfData))
	if e == nil {
		t.Logf("Didn't get an error for an event past the chunk's end\n")
		t.FailNow()
	}
	t.Logf("Got expected error for an overlong event: %s\n", e)
}

func TestSMFTrackToTrack(t *testing.T) {
	mismatched := &SMFTrack{
		Messages:   []Message{SetTempoMetaEvent(500000), EndOfTrackMetaEvent{}},
		TimeDeltas: []uint32{0},
	}
	_, e := mismatched.Track()
	if !IsInvalidInput(e) {
		t.Logf("Expected invalid input for mismatched lengths, got %v\n", e)
		t.FailNow()
	}
	tooLong := &SMFTrack{
		Messages:   []Message{SetTempoMetaEvent(500000), EndOfTrackMetaEvent{}},
		TimeDeltas: []uint32{MaxTick, 1},
	}
	_, e = tooLong.Track()
	if !IsInvalidInput(e) {
		t.Logf("Expected invalid input for ticks past the maximum, got %v\n",
			e)
		t.FailNow()
	}
	tooLong.TimeDeltas[1] = 0
	track, e := tooLong.Track()
	if e != nil {
		t.Logf("Failed converting a track ending at the maximum tick: %s\n",
			e)
		t.FailNow()
	}
	if track.Duration() != MaxTick {
		t.Logf("Expected a duration of %d, got %d\n", MaxTick,
			track.Duration())
		t.FailNow()
	}
}
