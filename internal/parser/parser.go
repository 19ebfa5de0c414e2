package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/saviobatista/ais-receiver/internal/types"
)

// Sentence rejection reasons
var (
	ErrMalformedSentence  = errors.New("malformed sentence")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrFieldCountMismatch = errors.New("field count mismatch")
	// ErrIgnored marks proprietary and alarm sentences that are dropped silently
	ErrIgnored = errors.New("ignored sentence")
)

// SentenceFields is the number of comma separated fields in a VDM/VDO sentence
const SentenceFields = 7

var (
	// !AIVDM,count,number,sequence,channel,payload,fill*hh
	sentenceRe = regexp.MustCompile(`!([A-Z]{2}VD[MO],\d+,\d+,\d?,\w?,.*,[0-5])\*([0-9A-Fa-f]{2})\s*$`)
	ignoreRe   = regexp.MustCompile(`[$](PFEC|AI(ALR|ABK|TXT)),`)
)

// SplitDatagram splits a datagram into its non-empty lines
func SplitDatagram(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Checksum returns the running XOR of every byte in body
func Checksum(body []byte) byte {
	var sum byte
	for _, c := range body {
		sum ^= c
	}
	return sum
}

// ParseLine validates one NMEA line and splits it into a sentence
func ParseLine(line []byte) (types.Sentence, error) {
	var s types.Sentence

	matches := sentenceRe.FindSubmatch(line)
	if matches == nil {
		if ignoreRe.Match(line) {
			return s, ErrIgnored
		}
		return s, fmt.Errorf("%w: %q", ErrMalformedSentence, line)
	}

	body := matches[1]
	declared, err := strconv.ParseUint(string(matches[2]), 16, 8)
	if err != nil {
		return s, fmt.Errorf("%w: bad checksum field %q", ErrMalformedSentence, matches[2])
	}
	if sum := Checksum(body); sum != byte(declared) {
		return s, fmt.Errorf("%w: computed %02X, declared %02X in %q", ErrChecksumMismatch, sum, declared, line)
	}

	fields := strings.Split(string(body), ",")
	if len(fields) != SentenceFields {
		return s, fmt.Errorf("%w: expected %d fields, got %d in %q", ErrFieldCountMismatch, SentenceFields, len(fields), line)
	}

	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return s, fmt.Errorf("%w: invalid fragment count: %v", ErrMalformedSentence, err)
	}
	number, err := strconv.Atoi(fields[2])
	if err != nil {
		return s, fmt.Errorf("%w: invalid fragment number: %v", ErrMalformedSentence, err)
	}
	fill, err := strconv.Atoi(fields[6])
	if err != nil {
		return s, fmt.Errorf("%w: invalid fill bits: %v", ErrMalformedSentence, err)
	}
	if count < 1 || number < 1 || number > count {
		return s, fmt.Errorf("%w: fragment %d of %d", ErrMalformedSentence, number, count)
	}

	s = types.Sentence{
		Talker:         fields[0],
		FragmentCount:  count,
		FragmentNumber: number,
		SequenceID:     fields[3],
		Channel:        fields[4],
		Payload:        fields[5],
		FillBits:       fill,
	}
	return s, nil
}
