package diff

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// exactLimit is the largest segment, in old plus new lines, handed to
	// the bisection without further splitting
	exactLimit = 4096

	// one rune per distinct line, skipping the surrogate block
	surrogateStart = 0xD800
	surrogateSize  = 0x800
	maxLineRunes   = 0x10FFFF + 1 - surrogateSize
)

// edit is one aligned line; line indexes the lineTable
type edit struct {
	kind ChangeKind
	line int
}

// lineTable interns lines so each distinct line maps to one rune
type lineTable struct {
	lines []string
	index map[string]int
}

func newLineTable() *lineTable {
	return &lineTable{index: make(map[string]int)}
}

func (t *lineTable) encode(lines []string) []int {
	ids := make([]int, len(lines))
	for i, line := range lines {
		id, ok := t.index[line]
		if !ok {
			id = len(t.lines)
			t.index[line] = id
			t.lines = append(t.lines, line)
		}
		ids[i] = id
	}
	return ids
}

func idToRune(id int) rune {
	if id >= surrogateStart {
		return rune(id + surrogateSize)
	}
	return rune(id)
}

func runeToID(r rune) int {
	if r >= surrogateStart+surrogateSize {
		return int(r) - surrogateSize
	}
	return int(r)
}

func toRunes(ids []int) []rune {
	runes := make([]rune, len(ids))
	for i, id := range ids {
		runes[i] = idToRune(id)
	}
	return runes
}

// aligner produces a line script. Common prefix and suffix are trimmed,
// lines unique to both sides anchor the rest, and what lies between
// anchors is diffed by diffmatchpatch over one rune per line. Anchorless
// segments too large for an exact pass are split proportionally.
type aligner struct {
	dmp      *diffmatchpatch.DiffMatchPatch
	runeSafe bool
}

func newAligner(distinct int) *aligner {
	dmp := diffmatchpatch.New()
	// no deadline, so the same inputs always produce the same script
	dmp.DiffTimeout = 0
	return &aligner{dmp: dmp, runeSafe: distinct <= maxLineRunes}
}

func (al *aligner) align(a, b []int, out []edit) []edit {
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		out = append(out, edit{Unchanged, a[p]})
		p++
	}
	a, b = a[p:], b[p:]

	s := 0
	for s < len(a) && s < len(b) && a[len(a)-1-s] == b[len(b)-1-s] {
		s++
	}
	suffix := a[len(a)-s:]
	a, b = a[:len(a)-s], b[:len(b)-s]

	out = al.middle(a, b, out)

	for _, id := range suffix {
		out = append(out, edit{Unchanged, id})
	}
	return out
}

func (al *aligner) middle(a, b []int, out []edit) []edit {
	if len(a) == 0 || len(b) == 0 {
		return replace(a, b, out)
	}

	anchors := uniqueAnchors(a, b)
	if len(anchors) == 0 {
		return al.segment(a, b, out)
	}

	ai, bi := 0, 0
	for _, an := range anchors {
		out = al.align(a[ai:an.a], b[bi:an.b], out)
		out = append(out, edit{Unchanged, a[an.a]})
		ai, bi = an.a+1, an.b+1
	}
	return al.align(a[ai:], b[bi:], out)
}

func (al *aligner) segment(a, b []int, out []edit) []edit {
	if !al.runeSafe || !shareLine(a, b) {
		return replace(a, b, out)
	}

	if len(a)+len(b) > exactLimit {
		parts := (len(a) + len(b) + exactLimit - 1) / exactLimit
		for k := 0; k < parts; k++ {
			a0, a1 := k*len(a)/parts, (k+1)*len(a)/parts
			b0, b1 := k*len(b)/parts, (k+1)*len(b)/parts
			out = al.align(a[a0:a1], b[b0:b1], out)
		}
		return out
	}

	for _, d := range al.dmp.DiffMainRunes(toRunes(a), toRunes(b), false) {
		kind := Unchanged
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = Removed
		case diffmatchpatch.DiffInsert:
			kind = Added
		}
		for _, r := range d.Text {
			out = append(out, edit{kind, runeToID(r)})
		}
	}
	return out
}

// replace removes all of a, then adds all of b
func replace(a, b []int, out []edit) []edit {
	for _, id := range a {
		out = append(out, edit{Removed, id})
	}
	for _, id := range b {
		out = append(out, edit{Added, id})
	}
	return out
}

func shareLine(a, b []int) bool {
	seen := make(map[int]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}

type anchor struct {
	a, b int
}

// uniqueAnchors pairs lines occurring exactly once on each side and keeps
// the longest run of pairs that is increasing on both sides
func uniqueAnchors(a, b []int) []anchor {
	type count struct {
		inA, inB int
		posA     int
		posB     int
	}
	counts := make(map[int]*count)
	for i, id := range a {
		c := counts[id]
		if c == nil {
			c = &count{}
			counts[id] = c
		}
		c.inA++
		c.posA = i
	}
	for i, id := range b {
		c := counts[id]
		if c == nil || c.inA != 1 {
			continue
		}
		c.inB++
		c.posB = i
	}

	var pairs []anchor
	for _, id := range a {
		if c := counts[id]; c.inA == 1 && c.inB == 1 {
			pairs = append(pairs, anchor{a: c.posA, b: c.posB})
		}
	}
	return increasingRun(pairs)
}

// increasingRun returns the longest subsequence of pairs (already ordered
// by a) whose b positions increase, by patience sorting
func increasingRun(pairs []anchor) []anchor {
	if len(pairs) == 0 {
		return nil
	}

	tails := []int{}
	prev := make([]int, len(pairs))
	for i, p := range pairs {
		k := sort.Search(len(tails), func(j int) bool {
			return pairs[tails[j]].b >= p.b
		})
		if k > 0 {
			prev[i] = tails[k-1]
		} else {
			prev[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}

	run := make([]anchor, len(tails))
	for i, k := len(tails)-1, tails[len(tails)-1]; i >= 0; i, k = i-1, prev[k] {
		run[i] = pairs[k]
	}
	return run
}
