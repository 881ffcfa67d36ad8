package abc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const (
	ticksPerQuarter = 480
	microsPerBeat   = 500000
	noteVelocity    = 64
)

var (
	notePattern  = regexp.MustCompile(`[A-Ga-g][#b]?[0-9/]*`)
	quotedChords = regexp.MustCompile(`"[^"]*"`)
	inlineFields = regexp.MustCompile(`\[[A-Za-z]:[^\]]*\]`)
	decorations  = regexp.MustCompile(`![^!]*!|\+[^+]*\+`)
)

var noteNumbers = map[byte]int{
	'C': 60, 'D': 62, 'E': 64, 'F': 65, 'G': 67, 'A': 69, 'B': 71,
	'c': 72, 'd': 74, 'e': 76, 'f': 77, 'g': 79, 'a': 81, 'b': 83,
}

// Notes returns the MIDI note numbers of the melody, in order. Header,
// comment and lyric lines are skipped, as are chord symbols, decorations
// and inline fields. Durations are ignored.
func Notes(content string) []int {
	var notes []int
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || headerLine.MatchString(line) || strings.HasPrefix(line, "%") {
			continue
		}
		line = quotedChords.ReplaceAllString(line, "")
		line = inlineFields.ReplaceAllString(line, "")
		line = decorations.ReplaceAllString(line, "")
		for _, tok := range notePattern.FindAllString(line, -1) {
			if n, ok := noteNumber(tok); ok {
				notes = append(notes, n)
			}
		}
	}
	return notes
}

func noteNumber(tok string) (int, bool) {
	tok = strings.TrimRight(tok, "0123456789/")
	if tok == "" {
		return 0, false
	}
	n, ok := noteNumbers[tok[0]]
	if !ok {
		return 0, false
	}
	switch {
	case strings.Contains(tok[1:], "#"):
		n++
	case strings.Contains(tok[1:], "b"):
		n--
	}
	return n, true
}

// EncodeMIDI builds a format-0 standard MIDI file playing each note for one
// quarter note at 120 bpm.
func EncodeMIDI(content string) ([]byte, error) {
	var track bytes.Buffer
	// tempo meta event
	track.Write([]byte{0x00, 0xFF, 0x51, 0x03})
	track.Write([]byte{byte(microsPerBeat >> 16), byte(microsPerBeat >> 8 & 0xFF), byte(microsPerBeat & 0xFF)})

	for _, n := range Notes(content) {
		writeVarLen(&track, 0)
		track.Write([]byte{0x90, byte(n), noteVelocity})
		writeVarLen(&track, ticksPerQuarter)
		track.Write([]byte{0x80, byte(n), noteVelocity})
	}
	// end of track
	track.Write([]byte{0x00, 0xFF, 0x2F, 0x00})

	var out bytes.Buffer
	out.WriteString("MThd")
	header := []uint16{0, 1, ticksPerQuarter}
	if err := binary.Write(&out, binary.BigEndian, uint32(6)); err != nil {
		return nil, fmt.Errorf("encode midi header: %w", err)
	}
	if err := binary.Write(&out, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("encode midi header: %w", err)
	}
	out.WriteString("MTrk")
	if err := binary.Write(&out, binary.BigEndian, uint32(track.Len())); err != nil {
		return nil, fmt.Errorf("encode midi track: %w", err)
	}
	out.Write(track.Bytes())
	return out.Bytes(), nil
}

// WriteMIDI encodes content and writes it to path.
func WriteMIDI(path, content string) error {
	data, err := EncodeMIDI(content)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

func writeVarLen(buf *bytes.Buffer, v uint32) {
	var stack [4]byte
	i := 0
	stack[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i++
		stack[i] = byte(v&0x7F) | 0x80
	}
	for ; i >= 0; i-- {
		buf.WriteByte(stack[i])
	}
}
