package pages

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// mulberry32 is the compact PRNG the spec names explicitly for the random
// sort mode: a 32-bit state, xorshift-and-multiply, reproducible from a
// single uint32 seed. No pack dependency implements this specific
// generator, so it is implemented by hand (see DESIGN.md).
type mulberry32 struct {
	state uint32
}

func newMulberry32(seed uint32) *mulberry32 {
	return &mulberry32{state: seed}
}

// next returns the next pseudo-random uint32 in the sequence.
func (m *mulberry32) next() uint32 {
	m.state += 0x6D2B79F5
	z := m.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

// permutation returns a Fisher-Yates shuffle of [0,n) driven by m.
func (m *mulberry32) permutation(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(m.next() % uint32(i+1))
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// nameCollator performs natural (numeric-aware) collation of entry names,
// grounded on golang.org/x/text/collate's Numeric option — the teacher
// carries golang.org/x/text as a direct dependency, and the pack's kojirou
// manga-downloader reference uses the same x/text family for title/author
// sorting.
var nameCollator = collate.New(language.Und, collate.Numeric)

func compareNatural(a, b string) int {
	return nameCollator.CompareString(a, b)
}

// sortPhysical returns a fresh, sorted copy of pages according to mode; it
// never mutates its input. For SortRandom it permutes with a mulberry32
// PRNG seeded by seed.
func sortPhysical(input []PhysicalPage, mode SortMode, seed uint32) []PhysicalPage {
	out := make([]PhysicalPage, len(input))
	copy(out, input)

	switch mode {
	case SortEntry:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	case SortEntryDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Index > out[j].Index })
	case SortName:
		sort.SliceStable(out, func(i, j int) bool { return compareNatural(out[i].EntryName, out[j].EntryName) < 0 })
	case SortNameDesc:
		sort.SliceStable(out, func(i, j int) bool { return compareNatural(out[i].EntryName, out[j].EntryName) > 0 })
	case SortTime:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	case SortTimeDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	case SortSize:
		sort.SliceStable(out, func(i, j int) bool { return out[i].FileSize < out[j].FileSize })
	case SortSizeDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].FileSize > out[j].FileSize })
	case SortRandom:
		perm := newMulberry32(seed).permutation(len(out))
		shuffled := make([]PhysicalPage, len(out))
		for i, p := range perm {
			shuffled[i] = out[p]
		}
		return shuffled
	}
	return out
}

// matchesKeyword does a case-insensitive substring match against entry
// name or locator. An empty keyword matches everything.
func matchesKeyword(p PhysicalPage, keyword string) bool {
	if keyword == "" {
		return true
	}
	k := strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(p.EntryName), k) ||
		strings.Contains(strings.ToLower(p.Locator), k)
}
