package types

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimestampLayout is the human readable UTC form stored alongside "t"
const TimestampLayout = "2006-01-02 15:04:05.000000"

// RawDatagram represents one read from the ingestion feed
type RawDatagram struct {
	ReceiptTime   time.Time `json:"receipt_time"`
	SourceAddress string    `json:"source_address,omitempty"`
	SourcePort    int       `json:"source_port,omitempty"`
	Data          []byte    `json:"data"`
}

// Seconds returns the receipt time as UTC seconds since the epoch
func (d RawDatagram) Seconds() float64 {
	return ToSeconds(d.ReceiptTime)
}

// Sentence represents one validated NMEA sentence
type Sentence struct {
	Talker         string `json:"talker"`
	FragmentCount  int    `json:"fragment_count"`
	FragmentNumber int    `json:"fragment_number"`
	SequenceID     string `json:"sequence_id,omitempty"`
	Channel        string `json:"channel,omitempty"`
	Payload        string `json:"payload"`
	FillBits       int    `json:"fill_bits"`
}

// Message represents a decoded AIS message as field name -> value.
// It always carries "mmsi" and "t" once it leaves the decoder.
type Message map[string]any

// Field names every decoded message carries
const (
	FieldMMSI      = "mmsi"
	FieldTime      = "t"
	FieldTimestamp = "timestamp"
	FieldLongitude = "x"
	FieldLatitude  = "y"
	FieldType      = "id"
)

// Clone returns a shallow copy of the message
func (m Message) Clone() Message {
	out := make(Message, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MMSI returns the vessel identifier if present and numeric
func (m Message) MMSI() (int64, bool) {
	return AsInt64(m[FieldMMSI])
}

// Time returns the receipt time in UTC seconds if present
func (m Message) Time() (float64, bool) {
	return AsFloat64(m[FieldTime])
}

// AsInt64 converts the numeric types a decoded message may hold into an int64
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// AsFloat64 converts the numeric types a decoded message may hold into a float64
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// FormatValue renders a field value for text sinks (CSV, database value column)
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case uint32:
		return strconv.FormatUint(uint64(n), 10)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprint(n)
	}
}

// ToSeconds converts a time into float UTC seconds
func ToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromSeconds converts float UTC seconds into a time
func FromSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// MessageTypes is the number of AIS message types counted (1..27, index 0 unused)
const MessageTypes = 28

// SystemStats is a point-in-time snapshot of pipeline counters
type SystemStats struct {
	RunID              string
	Time               time.Time
	Datagrams          uint64
	Sentences          uint64
	ChecksumFailures   uint64
	MalformedSentences uint64
	IgnoredSentences   uint64
	DecodedMessages    uint64
	DecodeFailures     uint64
	RangeViolations    uint64
	ExpiredPartials    uint64
	SinkErrors         uint64
	ActiveVessels      uint64
	PendingPartials    uint64
	MessageTypes       [MessageTypes]uint64
	ProcessingTime     time.Duration
	Uptime             time.Duration
}
