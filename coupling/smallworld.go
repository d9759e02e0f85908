package coupling

import (
	"fmt"
	"math/rand"
	"sync"
)

// MaxDegree caps the number of long-range links per site.
const MaxDegree = 64

// Rewiring is an immutable long-range target table. Targets holds
// width*height*Degree site indices; site i's k-th link is
// Targets[i*Degree+k]. A site is never its own target.
type Rewiring struct {
	Key     string
	Width   int
	Height  int
	Degree  int
	Seed    int64
	Targets []int32
}

var (
	rewireMu    sync.Mutex
	rewireCache = map[string]*Rewiring{}
)

// SmallWorld returns the memoized rewiring table for a lattice. Degree at
// or below zero disables rewiring and returns nil; degrees above MaxDegree
// clamp. The table is fully determined by (width, height, degree, seed).
func SmallWorld(width, height, degree int, seed int64) *Rewiring {
	if degree <= 0 || width < 1 || height < 1 {
		return nil
	}
	if degree > MaxDegree {
		degree = MaxDegree
	}
	key := fmt.Sprintf("%dx%d|k=%d|seed=%d", width, height, degree, seed)
	rewireMu.Lock()
	defer rewireMu.Unlock()
	if tbl, ok := rewireCache[key]; ok {
		return tbl
	}
	tbl := buildRewiring(key, width, height, degree, seed)
	rewireCache[key] = tbl
	return tbl
}

func buildRewiring(key string, width, height, degree int, seed int64) *Rewiring {
	n := width * height
	rng := rand.New(rand.NewSource(seed))
	targets := make([]int32, n*degree)
	for site := 0; site < n; site++ {
		base := site * degree
		for k := 0; k < degree; k++ {
			t := rng.Intn(n)
			// Self-collisions remap to the next site modulo the lattice;
			// duplicate targets remain possible on tiny lattices.
			if t == site {
				t = (t + 1) % n
			}
			targets[base+k] = int32(t)
		}
	}
	return &Rewiring{
		Key:     key,
		Width:   width,
		Height:  height,
		Degree:  degree,
		Seed:    seed,
		Targets: targets,
	}
}
