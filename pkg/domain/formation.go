package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// TubeFormation is an immutable, content-addressed snapshot of which tube
// occupies which position in a rack. Its label is a deterministic digest of
// the layout plus the rack type, so two formations with identical contents
// share a single stored record regardless of when or where they were
// computed. A formation is never mutated; a changed layout is a new record.
type TubeFormation struct {
	Base
	Label    string              `json:"label"`
	RackType RackType            `json:"rack_type"`
	Layout   map[Position]string `json:"layout"`
}

// FormationLabel computes the content-addressing digest for a tube layout.
// The digest covers the canonical sorted order of (position, tube barcode)
// pairs and the rack type, never map iteration order.
func FormationLabel(layout map[Position]string, rackType RackType) string {
	positions := make([]string, 0, len(layout))
	for pos := range layout {
		positions = append(positions, string(pos))
	}
	sort.Strings(positions)

	var b strings.Builder
	for _, pos := range positions {
		b.WriteString(pos)
		b.WriteByte(' ')
		b.WriteString(layout[Position(pos)])
		b.WriteByte('\n')
	}
	b.WriteString(string(rackType))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NewTubeFormation builds an unpersisted formation value with its label
// precomputed from the layout contents.
func NewTubeFormation(layout map[Position]string, rackType RackType) TubeFormation {
	cloned := make(map[Position]string, len(layout))
	for pos, tube := range layout {
		cloned[pos] = tube
	}
	return TubeFormation{
		Label:    FormationLabel(cloned, rackType),
		RackType: rackType,
		Layout:   cloned,
	}
}

// PositionOf returns the position holding the given tube barcode, or false
// when the tube is not part of the layout.
func (f TubeFormation) PositionOf(tubeLabel string) (Position, bool) {
	for pos, tube := range f.Layout {
		if tube == tubeLabel {
			return pos, true
		}
	}
	return "", false
}

// ContainsTube reports whether the tube barcode occupies any position.
func (f TubeFormation) ContainsTube(tubeLabel string) bool {
	_, ok := f.PositionOf(tubeLabel)
	return ok
}

// TubeCount returns the number of occupied positions.
func (f TubeFormation) TubeCount() int { return len(f.Layout) }
