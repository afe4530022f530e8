// Package spatial provides approximate near-neighbor enumeration over a particle table
// using a uniform grid whose cells are hashed into a bucket array sized to the table.
package spatial

import (
	"cmp"
	"slices"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"
)

// HashPrime spreads the y cell coordinate across buckets.
const HashPrime = 32121

// noOffset marks a bucket that no slot hashed into during the last Update.
const noOffset = -1

// entry pairs a slot with the bucket its cell hashes to.
type entry struct {
	slot   int
	bucket int
}

// Cell is an integer grid coordinate.
type Cell struct {
	X, Y int
}

// Index is a grid-hash bucket structure rebuilt from a particle table every tick.
// The bucket count equals the particle count N, not the number of grid cells, so
// distant cells may share a bucket: Scan never misses a slot of the 3x3 block around
// a particle but may report unrelated slots as well.
//
// The entries are transient derived data; the particle table stays authoritative.
type Index struct {
	cellSize float64
	entries  []entry // sorted by bucket after Update
	offsets  []int   // bucket id -> first entry of its run, or noOffset
}

// NewIndex allocates an index for n particles with the given cell size.
// The cell size should equal the largest interaction radius.
func NewIndex(n int, cellSize float64) *Index {
	idx := &Index{cellSize: cellSize}
	idx.Resize(n)
	return idx
}

// Resize rebuilds both arrays for n particles. It must happen before the next Update
// whenever the table length changes; Update calls it itself when it notices.
func (x *Index) Resize(n int) {
	if cap(x.entries) >= n {
		x.entries = x.entries[:n]
		x.offsets = x.offsets[:n]
	} else {
		x.entries = make([]entry, n)
		x.offsets = make([]int, n)
	}
	for i := range x.offsets {
		x.offsets[i] = noOffset
	}
}

// Len returns the number of slots (and buckets) the index is sized for.
func (x *Index) Len() int { return len(x.entries) }

// CellSize returns the grid cell size.
func (x *Index) CellSize() float64 { return x.cellSize }

// Hash maps grid cell (gx, gy) to a bucket id in [0, n).
func Hash(gx, gy, n int) int {
	if n <= 0 {
		return 0
	}
	h := (gx + gy*HashPrime) % n
	if h < 0 {
		h += n
	}
	return h
}

// Update recomputes every slot's bucket, sorts the entries by bucket id and records
// where each bucket's run starts. Cost is dominated by the O(N log N) sort.
func (x *Index) Update(table particle.Table) {
	n := len(table)
	if n != len(x.entries) {
		x.Resize(n)
	}

	for i, p := range table {
		gx, gy := p.Pos.Cell(x.cellSize)
		x.entries[i] = entry{slot: i, bucket: Hash(gx, gy, n)}
	}
	slices.SortFunc(x.entries, func(a, b entry) int {
		return cmp.Compare(a.bucket, b.bucket)
	})

	for b := range x.offsets {
		x.offsets[b] = noOffset
		found := x.search(b)
		if found < 0 {
			continue
		}
		// walk back to the first entry of the run
		start := found
		for start > 0 && x.entries[start-1].bucket == b {
			start--
		}
		x.offsets[b] = start
	}
}

// search returns the position of any entry with the given bucket id, or -1.
func (x *Index) search(bucket int) int {
	lo, hi := 0, len(x.entries)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch got := x.entries[mid].bucket; {
		case got == bucket:
			return mid
		case got < bucket:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}

// Scan runs one visitor pass. For every slot i it enumerates the 3x3 block of cells
// around i, walks each cell's bucket run and calls Next for every entry other than i.
// End(i) writes back into table[i] in place, so later slots observe the updated
// record while the buckets still reflect the positions seen by Update.
func (x *Index) Scan(table particle.Table, v Visitor) {
	n := len(table)
	if n != len(x.entries) {
		x.Update(table)
	}

	for i := range table {
		gx, gy := table[i].Pos.Cell(x.cellSize)
		v.Start(i, table[i])
		for cy := gy - 1; cy <= gy+1; cy++ {
			for cx := gx - 1; cx <= gx+1; cx++ {
				b := Hash(cx, cy, n)
				start := x.offsets[b]
				if start == noOffset {
					continue
				}
				for _, e := range x.entries[start:] {
					if e.bucket != b {
						break
					}
					if e.slot == i {
						continue
					}
					v.Next(e.slot, table[e.slot])
				}
			}
		}
		v.End(i, &table[i])
	}
}

// Cells returns the distinct occupied grid cells of table, sorted by (Y, X).
// The viewer uses it to draw the grid overlay.
func Cells(table particle.Table, cellSize float64) []Cell {
	seen := make(map[Cell]struct{}, len(table))
	cells := make([]Cell, 0, len(table))
	for _, p := range table {
		gx, gy := p.Pos.Cell(cellSize)
		c := Cell{X: gx, Y: gy}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		cells = append(cells, c)
	}
	slices.SortFunc(cells, func(a, b Cell) int {
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.X, b.X)
	})
	return cells
}
