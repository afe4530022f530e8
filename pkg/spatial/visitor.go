package spatial

import "github.com/lao-tseu-is-alive/go-flock-sync/pkg/particle"

// Visitor aggregates information about one slot's neighborhood during a scan pass.
//
// Conceptually a pass is the loop
//
//	for i in table:
//	    Start(i, table[i])
//	    for j in candidates(i):
//	        Next(j, table[j])
//	    End(i, &table[i])
//
// where candidates(i) is every other slot for BruteForce, or the 3x3 bucket walk for
// Index.Scan. Next has no ordering guarantee, may be called zero times, and may receive
// false-positive candidates caused by bucket collisions.
type Visitor interface {
	Start(i int, self particle.Particle)
	Next(j int, other particle.Particle)
	End(i int, self *particle.Particle)
}

// Mode selects how candidates are enumerated.
type Mode int

const (
	// ModeIndex walks the grid-hash buckets.
	ModeIndex Mode = iota
	// ModeBruteForce pairs every slot with every other slot.
	ModeBruteForce
)

func (m Mode) String() string {
	switch m {
	case ModeIndex:
		return "index"
	case ModeBruteForce:
		return "brute-force"
	default:
		return "unknown"
	}
}

// Run executes one visitor pass over table using the requested mode. In ModeIndex the
// index is rebuilt from table first.
func Run(mode Mode, idx *Index, table particle.Table, v Visitor) {
	if mode == ModeBruteForce || idx == nil {
		BruteForce(table, v)
		return
	}
	idx.Update(table)
	idx.Scan(table, v)
}

// BruteForce is the O(N^2) reference pass: every slot is paired with every other slot,
// in slot order. It is the correctness oracle for Index.Scan.
func BruteForce(table particle.Table, v Visitor) {
	for i := range table {
		v.Start(i, table[i])
		for j := range table {
			if i == j {
				continue
			}
			v.Next(j, table[j])
		}
		v.End(i, &table[i])
	}
}

// NeighborCollector records which candidates were visited for one selected slot.
// It is a diagnostic visitor for rendering "who influences whom" and never
// mutates particles.
type NeighborCollector struct {
	Target  int
	current int
	result  []int
}

// NewNeighborCollector creates a collector for the target slot. A negative target
// collects nothing.
func NewNeighborCollector(target int) *NeighborCollector {
	return &NeighborCollector{Target: target, current: -1}
}

func (c *NeighborCollector) Start(i int, _ particle.Particle) {
	c.current = i
}

func (c *NeighborCollector) Next(j int, _ particle.Particle) {
	if c.Target >= 0 && c.current == c.Target {
		c.result = append(c.result, j)
	}
}

func (c *NeighborCollector) End(int, *particle.Particle) {
	c.current = -1
}

// Result returns the visited candidate indices for the target slot.
func (c *NeighborCollector) Result() []int {
	return c.result
}
