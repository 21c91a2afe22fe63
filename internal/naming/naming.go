// Package naming derives filesystem-safe output names from task text.
package naming

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// DefaultMaxLength is used when a non-positive length is given.
const DefaultMaxLength = 15

const forbidden = `\/*?:"<>|`

// Sanitize strips forbidden characters, turns spaces into underscores and
// truncates to maxLength characters. Sanitize(Sanitize(x, n), n) == Sanitize(x, n).
func Sanitize(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var b strings.Builder
	n := 0
	for _, r := range text {
		if n == maxLength {
			break
		}
		if strings.ContainsRune(forbidden, r) {
			continue
		}
		if r == ' ' {
			r = '_'
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// Segment cleans text for use as a single directory name without truncating it.
// Names made only of dots, or left empty, become "_" so they cannot step out
// of the parent directory.
func Segment(text string) string {
	seg := Sanitize(strings.TrimSpace(text), len([]rune(text)))
	if strings.Trim(seg, ".") == "" {
		return "_"
	}
	return seg
}

// OutputName returns "<prefix>_<seed>.<ext>", or "<prefix>_<seed>" when ext is empty.
func OutputName(prefix string, seed uint64, ext string) string {
	base := fmt.Sprintf("%s_%d", prefix, seed)
	if ext == "" {
		return base
	}
	return base + "." + strings.TrimPrefix(ext, ".")
}

// SeedSource draws seeds uniformly from an inclusive range. It is safe for
// concurrent use.
type SeedSource struct {
	mu   sync.Mutex
	rng  *rand.Rand
	low  uint64
	high uint64
}

// NewSeedSource returns a source over [low, high]. A nil rng uses a randomly
// seeded generator; pass a seeded one for reproducible sequences.
func NewSeedSource(low, high uint64, rng *rand.Rand) (*SeedSource, error) {
	if low > high {
		return nil, fmt.Errorf("seed range low %d exceeds high %d", low, high)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SeedSource{rng: rng, low: low, high: high}, nil
}

// Draw returns the next seed.
func (s *SeedSource) Draw() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := s.high - s.low + 1
	if span == 0 {
		// [0, MaxUint64]: every value is in range.
		return s.rng.Uint64()
	}
	return s.low + s.rng.Uint64N(span)
}
