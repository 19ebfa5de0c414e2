package testutils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saviobatista/ais-receiver/internal/types"
)

// Sample sentences with valid checksums
const (
	// Position report, MMSI 477553000
	PositionReport = "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"
	// Static and voyage data in two fragments, MMSI 369190000
	StaticDataPart1 = "!AIVDM,2,1,3,B,55P5TL01VIaAL@7WKO@mBplU@<PDhh000000001S;AJ::4A80?4i@E53,0*3E"
	StaticDataPart2 = "!AIVDM,2,2,3,B,1@0000000000000,2*55"
)

// Frame wraps a sentence body with the leading '!' and its XOR checksum
func Frame(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("!%s*%02X", body, sum)
}

// MockDatagram creates a raw datagram holding the given sentences
func MockDatagram(at time.Time, sentences ...string) types.RawDatagram {
	return types.RawDatagram{
		ReceiptTime:   at,
		SourceAddress: "127.0.0.1",
		SourcePort:    10110,
		Data:          []byte(strings.Join(sentences, "\r\n") + "\r\n"),
	}
}

// MockMessage creates a decoded message for the given vessel
func MockMessage(mmsi int64, at time.Time, fields map[string]any) types.Message {
	msg := types.Message{
		types.FieldMMSI:      mmsi,
		types.FieldTime:      types.ToSeconds(at),
		types.FieldTimestamp: at.UTC().Format(types.TimestampLayout),
	}
	for k, v := range fields {
		msg[k] = v
	}
	return msg
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
