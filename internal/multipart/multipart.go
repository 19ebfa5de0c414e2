// Package multipart reassembles AIS payloads split across several NMEA sentences.
package multipart

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// DefaultTimeout is how long a sequence may take to complete after its first fragment
const DefaultTimeout = 60 * time.Second

// Complete is a whole payload ready for decoding
type Complete struct {
	Payload  string
	FillBits int
	Channel  string
	Talker   string
}

type partial struct {
	count     int
	fragments map[int]string
	fillBits  int
	firstSeen time.Time
}

// Reassembler merges fragments by sequence id. It is not safe for concurrent
// use; the decrypter stage owns it.
type Reassembler struct {
	timeout  time.Duration
	partials map[string]*partial
	expired  uint64
}

// New creates a new Reassembler
func New(timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reassembler{
		timeout:  timeout,
		partials: make(map[string]*partial),
	}
}

// Add feeds one sentence received at the given time. It returns the complete
// payload once every fragment of the sequence has arrived.
func (r *Reassembler) Add(s types.Sentence, at time.Time) (Complete, bool) {
	if s.FragmentCount <= 1 {
		return Complete{Payload: s.Payload, FillBits: s.FillBits, Channel: s.Channel, Talker: s.Talker}, true
	}

	// Stale sequences go before this fragment is stored, so a late fragment
	// of an expired sequence starts a new one.
	r.expire(at)

	p, ok := r.partials[s.SequenceID]
	if ok && p.count != s.FragmentCount {
		log.Warn().
			Str("sequence", s.SequenceID).
			Int("declared", p.count).
			Int("got", s.FragmentCount).
			Msg("Fragment count changed within sequence, restarting it")
		ok = false
	}
	if !ok {
		p = &partial{
			count:     s.FragmentCount,
			fragments: make(map[int]string, s.FragmentCount),
			firstSeen: at,
		}
		r.partials[s.SequenceID] = p
	}

	p.fragments[s.FragmentNumber] = s.Payload
	if s.FragmentNumber == s.FragmentCount {
		p.fillBits = s.FillBits
	}

	if len(p.fragments) != p.count {
		return Complete{}, false
	}

	numbers := make([]int, 0, len(p.fragments))
	for n := range p.fragments {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var b strings.Builder
	for _, n := range numbers {
		b.WriteString(p.fragments[n])
	}
	delete(r.partials, s.SequenceID)

	return Complete{Payload: b.String(), FillBits: p.fillBits, Channel: s.Channel, Talker: s.Talker}, true
}

// Pending returns the number of incomplete sequences held
func (r *Reassembler) Pending() int {
	return len(r.partials)
}

// Expired returns how many incomplete sequences have been aged out
func (r *Reassembler) Expired() uint64 {
	return r.expired
}

func (r *Reassembler) expire(now time.Time) {
	for id, p := range r.partials {
		if now.Sub(p.firstSeen) <= r.timeout {
			continue
		}
		log.Warn().
			Str("sequence", id).
			Int("fragments", len(p.fragments)).
			Int("expected", p.count).
			Dur("age", now.Sub(p.firstSeen)).
			Msg("Aged out partial message")
		delete(r.partials, id)
		r.expired++
	}
}
