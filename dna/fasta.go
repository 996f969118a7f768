// Package dna reads DNA sequences from FASTA files or plain text.
package dna

import (
	"errors"
	"sort"
	"strings"
)

// The name given to sequences whose input has no FASTA header line.
const DefaultName = "Untitled Sequence"

var (
	// ErrEmptyInput is returned when there is nothing to parse.
	ErrEmptyInput = errors.New("no content provided")
	// ErrNoBases is returned when the input contains no A, T, C or G.
	ErrNoBases = errors.New("no valid DNA bases found (A, T, C, G)")
)

// Sequence is a cleaned DNA sequence.
type Sequence struct {
	Name string `json:"name"`
	// Bases holds only A, T, C and G, upper case.
	Bases string `json:"sequence"`
	// Length is the number of sequence characters in the input, valid or not.
	Length int `json:"length"`
	// ValidBases is len(Bases).
	ValidBases int `json:"validBases"`
	// InvalidBases lists the distinct characters that were dropped, sorted.
	InvalidBases []string `json:"invalidBases"`
}

// IsBase reports whether b is one of the four DNA bases, in upper case.
func IsBase(b byte) bool {
	switch b {
	case 'A', 'T', 'C', 'G':
		return true
	}
	return false
}

// ParseFASTA parses FASTA or plain text. Lines starting with '>' name the
// sequence (the last one wins); every other non-blank line is trimmed,
// upper-cased and appended. Characters other than A, T, C and G are dropped.
func ParseFASTA(content string) (*Sequence, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}
	name := ""
	var raw strings.Builder
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, ">"):
			name = strings.TrimSpace(line[1:])
		case line != "":
			raw.WriteString(strings.ToUpper(line))
		}
	}

	seq := &Sequence{Name: name}
	if seq.Name == "" {
		seq.Name = DefaultName
	}
	var bases strings.Builder
	invalid := make(map[string]bool)
	for _, r := range raw.String() {
		seq.Length++
		if r < 0x80 && IsBase(byte(r)) {
			bases.WriteRune(r)
			continue
		}
		invalid[string(r)] = true
	}
	seq.Bases = bases.String()
	seq.ValidBases = len(seq.Bases)
	if seq.ValidBases == 0 {
		return nil, ErrNoBases
	}
	seq.InvalidBases = make([]string, 0, len(invalid))
	for s := range invalid {
		seq.InvalidBases = append(seq.InvalidBases, s)
	}
	sort.Strings(seq.InvalidBases)
	return seq, nil
}
