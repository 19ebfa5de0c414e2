package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/saviobatista/ais-receiver/internal/accumulator"
	"github.com/saviobatista/ais-receiver/internal/decoder"
	"github.com/saviobatista/ais-receiver/internal/fanout"
	"github.com/saviobatista/ais-receiver/internal/multipart"
	"github.com/saviobatista/ais-receiver/internal/stats"
	"github.com/saviobatista/ais-receiver/internal/testutils"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// exampleSentence carries a 162 bit payload, six short of a position
// report, so the codec rejects it and the routing test below runs it through
// stubDecoder. TestReceiver_EndToEnd in cmd/receiver covers the real decoder
// with a full 168 bit report.
const exampleSentence = "!AIVDM,1,1,,A,15M67FC000G?ufbE`G`R0dSE@00,0*00"

type stubDecoder struct {
	mu    sync.Mutex
	calls []string
	msg   types.Message
}

func (s *stubDecoder) Decode(payload string, fillBits int) (types.Message, error) {
	s.mu.Lock()
	s.calls = append(s.calls, payload)
	s.mu.Unlock()
	return s.msg.Clone(), nil
}

func TestDecrypter_ExampleReachesEveryConsumerOnce(t *testing.T) {
	stub := &stubDecoder{msg: types.Message{"mmsi": int64(366053209), "id": int64(1), "x": -122.39, "y": 37.80}}
	st := stats.New()
	d := NewDecrypter(stub, multipart.DefaultTimeout, st)

	raw := fanout.NewBroadcaster[types.RawDatagram]("raw", 0)
	decoded := fanout.NewBroadcaster[types.Message]("decoded", 0, fanout.WithCopy(types.Message.Clone))

	rawIn, err := raw.Register("decrypter")
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	var queues []*fanout.Queue[types.Message]
	for _, name := range []string{"accumulator", "database", "csv"} {
		q, err := decoded.Register(name)
		if err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
		queues = append(queues, q)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, rawIn, decoded) }()

	receipt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := raw.Publish(ctx, testutils.MockDatagram(receipt, exampleSentence)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	for i, q := range queues {
		msg, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("consumer %d: Get() failed: %v", i, err)
		}
		if mmsi, _ := msg.MMSI(); mmsi != 366053209 {
			t.Errorf("consumer %d: mmsi = %v", i, msg[types.FieldMMSI])
		}
		if ts, _ := msg.Time(); ts != types.ToSeconds(receipt) {
			t.Errorf("consumer %d: t = %v, want receipt time", i, msg[types.FieldTime])
		}
		if q.Len() != 0 {
			t.Errorf("consumer %d: %d extra messages queued", i, q.Len())
		}
	}

	rawIn.Close()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v after input closed", err)
	}

	if len(stub.calls) != 1 || stub.calls[0] != "15M67FC000G?ufbE`G`R0dSE@00" {
		t.Errorf("decoder calls = %q", stub.calls)
	}
	if st.DecodedMessages != 1 || st.Sentences != 1 || st.MessageTypeCounts[1] != 1 {
		t.Errorf("unexpected stats:\n%s", st)
	}
}

func TestDecrypter_RejectsAndCounts(t *testing.T) {
	stub := &stubDecoder{msg: types.Message{"mmsi": int64(1)}}
	st := stats.New()
	d := NewDecrypter(stub, 0, st)

	dg := testutils.MockDatagram(time.Now(),
		"!AIVDM,1,1,,A,15M67FC000G?ufbE`G`R0dSE@00,0*4D",
		"$PFEC,GPint,RMC05*2D",
		"not a sentence",
		exampleSentence,
	)

	msgs := d.Process(dg)
	if len(msgs) != 1 {
		t.Fatalf("Process() returned %d messages, want 1", len(msgs))
	}
	if st.ChecksumFailures != 1 || st.IgnoredSentences != 1 || st.MalformedSentences != 1 {
		t.Errorf("unexpected rejection counts:\n%s", st)
	}
}

func TestDecrypter_RangeViolationDroppedSilently(t *testing.T) {
	stub := &stubDecoder{msg: types.Message{"mmsi": int64(1), "x": 0.0, "y": 95.0}}
	st := stats.New()
	d := NewDecrypter(stub, 0, st)

	if msgs := d.Process(testutils.MockDatagram(time.Now(), exampleSentence)); len(msgs) != 0 {
		t.Errorf("Process() = %v, want nothing", msgs)
	}
	if st.RangeViolations != 1 || st.DecodeFailures != 0 {
		t.Errorf("unexpected stats:\n%s", st)
	}
}

func TestDecrypter_MultipartAcrossDatagrams(t *testing.T) {
	d := NewDecrypter(decoder.NewAIS(), 0, nil)
	now := time.Now()

	if msgs := d.Process(testutils.MockDatagram(now, testutils.StaticDataPart1)); len(msgs) != 0 {
		t.Fatalf("first fragment produced %d messages", len(msgs))
	}
	msgs := d.Process(testutils.MockDatagram(now.Add(time.Second), testutils.StaticDataPart2))
	if len(msgs) != 1 {
		t.Fatalf("second fragment produced %d messages, want 1", len(msgs))
	}
	if mmsi, _ := msgs[0].MMSI(); mmsi != 369190000 {
		t.Errorf("mmsi = %v, want 369190000", msgs[0][types.FieldMMSI])
	}
}

func TestDecrypter_FeedsAccumulator(t *testing.T) {
	d := NewDecrypter(decoder.NewAIS(), 0, nil)
	acc := accumulator.New(accumulator.DefaultMaxAge)

	for _, msg := range d.Process(testutils.MockDatagram(time.Now(), testutils.PositionReport)) {
		acc.Process(msg)
	}

	rec, ok := acc.Get(477553000)
	if !ok {
		t.Fatal("vessel 477553000 not accumulated")
	}
	if _, ok := rec[types.FieldLongitude]; !ok {
		t.Error("accumulated record has no position")
	}
	if _, ok := rec[types.FieldType]; ok {
		t.Error("message type should be stripped from accumulated records")
	}
}
