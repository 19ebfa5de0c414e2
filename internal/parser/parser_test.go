package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/saviobatista/ais-receiver/internal/testutils"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantErr      error
		wantCount    int
		wantNumber   int
		wantSequence string
		wantChannel  string
		wantPayload  string
		wantFill     int
	}{
		{
			name:        "single fragment position report",
			line:        "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C",
			wantCount:   1,
			wantNumber:  1,
			wantChannel: "B",
			wantPayload: "177KQJ5000G?tO`K>RA1wUbN0TKH",
		},
		{
			name:         "first fragment of static data",
			line:         "!AIVDM,2,1,3,B,55P5TL01VIaAL@7WKO@mBplU@<PDhh000000001S;AJ::4A80?4i@E53,0*3E",
			wantCount:    2,
			wantNumber:   1,
			wantSequence: "3",
			wantChannel:  "B",
			wantPayload:  "55P5TL01VIaAL@7WKO@mBplU@<PDhh000000001S;AJ::4A80?4i@E53",
		},
		{
			name:         "last fragment carries fill bits",
			line:         "!AIVDM,2,2,3,B,1@0000000000000,2*55",
			wantCount:    2,
			wantNumber:   2,
			wantSequence: "3",
			wantChannel:  "B",
			wantPayload:  "1@0000000000000",
			wantFill:     2,
		},
		{
			name:        "leading garbage and trailing whitespace",
			line:        "\\s:rcv*00\\!AIVDM,1,1,,A,15M67FC000G?ufbE`G`R0dSE@00,0*00 \r",
			wantCount:   1,
			wantNumber:  1,
			wantChannel: "A",
			wantPayload: "15M67FC000G?ufbE`G`R0dSE@00",
		},
		{
			name:    "wrong declared checksum",
			line:    "!AIVDM,1,1,,A,15M67FC000G?ufbE`G`R0dSE@00,0*4D",
			wantErr: ErrChecksumMismatch,
		},
		{
			name:    "extra comma in payload",
			line:    testutils.Frame("AIVDM,1,1,,A,15M67FC000,G?ufbE,0"),
			wantErr: ErrFieldCountMismatch,
		},
		{
			name:    "fragment number beyond count",
			line:    testutils.Frame("AIVDM,2,3,1,A,15M67FC000,0"),
			wantErr: ErrMalformedSentence,
		},
		{
			name:    "no checksum",
			line:    "!AIVDM,1,1,,A,15M67FC000G?ufbE`G`R0dSE@00,0",
			wantErr: ErrMalformedSentence,
		},
		{
			name:    "gps sentence",
			line:    "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
			wantErr: ErrMalformedSentence,
		},
		{
			name:    "proprietary sentence",
			line:    "$PFEC,GPint,RMC05*2D",
			wantErr: ErrIgnored,
		},
		{
			name:    "alarm sentence",
			line:    "$AIALR,000000.00,007,A,V,AIS: UTC Lost*75",
			wantErr: ErrIgnored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseLine([]byte(tt.line))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseLine() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine() unexpected error: %v", err)
			}

			if s.FragmentCount != tt.wantCount {
				t.Errorf("FragmentCount = %d, want %d", s.FragmentCount, tt.wantCount)
			}
			if s.FragmentNumber != tt.wantNumber {
				t.Errorf("FragmentNumber = %d, want %d", s.FragmentNumber, tt.wantNumber)
			}
			if s.SequenceID != tt.wantSequence {
				t.Errorf("SequenceID = %q, want %q", s.SequenceID, tt.wantSequence)
			}
			if s.Channel != tt.wantChannel {
				t.Errorf("Channel = %q, want %q", s.Channel, tt.wantChannel)
			}
			if s.Payload != tt.wantPayload {
				t.Errorf("Payload = %q, want %q", s.Payload, tt.wantPayload)
			}
			if s.FillBits != tt.wantFill {
				t.Errorf("FillBits = %d, want %d", s.FillBits, tt.wantFill)
			}
			if s.Talker != "AIVDM" {
				t.Errorf("Talker = %q, want AIVDM", s.Talker)
			}
		})
	}
}

func TestChecksum_MatchesXOR(t *testing.T) {
	lines := []string{
		"!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C",
		"!AIVDM,2,1,3,B,55P5TL01VIaAL@7WKO@mBplU@<PDhh000000001S;AJ::4A80?4i@E53,0*3E",
		"!AIVDM,2,2,3,B,1@0000000000000,2*55",
	}

	for _, line := range lines {
		start := strings.IndexByte(line, '!')
		end := strings.IndexByte(line, '*')
		want := line[end+1:]
		if got := fmt.Sprintf("%02X", Checksum([]byte(line[start+1:end]))); got != want {
			t.Errorf("Checksum(%q) = %s, want %s", line, got, want)
		}
	}
}

func TestParseLine_SingleByteCorruption(t *testing.T) {
	line := "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"
	if _, err := ParseLine([]byte(line)); err != nil {
		t.Fatalf("baseline sentence rejected: %v", err)
	}

	start := strings.IndexByte(line, '!') + 1
	end := strings.IndexByte(line, '*')
	for i := start; i < end; i++ {
		corrupted := []byte(line)
		corrupted[i] ^= 0x01
		if _, err := ParseLine(corrupted); err == nil {
			t.Errorf("corruption at offset %d (%q) accepted", i, corrupted)
		}
	}
}

func TestSplitDatagram(t *testing.T) {
	data := []byte("!AIVDM,2,1,3,B,55P5TL01VIaAL@7WKO@mBplU@<PDhh000000001S;AJ::4A80?4i@E53,0*3E\r\n" +
		"garbage line\r\n" +
		"\r\n" +
		"!AIVDM,2,2,3,B,1@0000000000000,2*55\r\n")

	lines := SplitDatagram(data)
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), lines)
	}

	var valid, rejected int
	for _, line := range lines {
		if _, err := ParseLine(line); err != nil {
			rejected++
			continue
		}
		valid++
	}
	if valid != 2 || rejected != 1 {
		t.Errorf("Expected 2 valid and 1 rejected sentence, got %d and %d", valid, rejected)
	}
}

func TestSplitDatagram_Empty(t *testing.T) {
	if lines := SplitDatagram([]byte(" \r\n\n")); len(lines) != 0 {
		t.Errorf("Expected no lines, got %q", lines)
	}
}
