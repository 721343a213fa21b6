package solver

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

const deadheadEps = 1e-6

// chain is one vehicle's trip sequence under construction. Starts are
// implied: the first trip starts at its earliest, each successor at the
// minimum time the sequencing constraint allows.
type chain struct {
	vehicle       int
	trips         []int
	finish        int     // finish minute of the last trip (start + duration + service)
	returnHintSum float64 // running sum of the trips' solo-return estimates
}

type incumbent struct {
	chains []chain
}

// crossSearch is a deterministic branch-and-bound over chain construction.
// Trips are consumed in the problem's (earliest, latest-start, id) order;
// each is appended to an open chain along a feasible arc or opens a fresh
// compatible vehicle.
type crossSearch struct {
	p        *Problem
	deadline time.Time

	maxChains    int // open-chain bound; math.MaxInt when unbounded
	minimizeDead bool

	best         *incumbent
	bestChains   int
	bestDeadhead float64

	chains []chain
	used   []bool

	nodes    int
	timedOut bool
}

// SolveCross runs the cross-company lexicographic optimization for one
// vehicle-category group: pass 1 minimizes the number of vehicles used,
// pass 2 minimizes total planned deadhead subject to the pass-1 optimum.
// On budget expiry the best incumbent is kept; with no incumbent the group
// falls back to round-robin assignment.
func SolveCross(ctx context.Context, p *Problem, cfg Config) Result {
	if len(p.Trips) == 0 {
		return Result{}
	}
	if len(p.Vehicles) == 0 {
		var un []Unassigned
		for i := range p.Trips {
			un = append(un, Unassigned{TripID: p.Trips[i].ID, Reason: ReasonNoCompatibleVehicle})
		}
		return Result{Unassigned: un}
	}

	budget := cfg.Budget
	if budget <= 0 {
		budget = 300 * time.Second
	}
	start := time.Now()

	// Pass 1: minimize fleet size. Half the budget, the remainder goes to
	// pass 2.
	pass1 := &crossSearch{
		p:            p,
		deadline:     start.Add(budget / 2),
		maxChains:    math.MaxInt,
		bestChains:   math.MaxInt,
		bestDeadhead: math.MaxFloat64,
		used:         make([]bool, len(p.Vehicles)),
	}
	pass1.run(ctx)

	if pass1.best == nil {
		res := roundRobin(p)
		res.TimedOut = pass1.timedOut
		res.Diagnostics = append(p.Diagnostics(), "no feasible solution, round-robin fallback")
		return res
	}

	bestL := len(pass1.best.chains)

	// Pass 2: minimize total deadhead while keeping the fleet at the
	// pass-1 optimum. The pass-1 incumbent seeds the bound so the result
	// can never regress.
	pass2 := &crossSearch{
		p:            p,
		deadline:     start.Add(budget),
		maxChains:    bestL,
		minimizeDead: true,
		best:         pass1.best,
		bestChains:   bestL,
		bestDeadhead: totalDeadhead(p, pass1.best.chains),
		used:         make([]bool, len(p.Vehicles)),
	}
	pass2.run(ctx)

	res := extract(p, pass2.best.chains)
	res.TimedOut = pass1.timedOut || pass2.timedOut
	res.Diagnostics = p.Diagnostics()
	return res
}

func (s *crossSearch) run(ctx context.Context) {
	s.chains = s.chains[:0]
	s.dfs(ctx, 0)
}

func (s *crossSearch) expired(ctx context.Context) bool {
	s.nodes++
	if s.nodes%256 == 0 {
		if ctx.Err() != nil || time.Now().After(s.deadline) {
			s.timedOut = true
		}
	}
	return s.timedOut
}

func (s *crossSearch) dfs(ctx context.Context, next int) {
	if s.expired(ctx) {
		return
	}

	if next == len(s.p.Trips) {
		s.accept()
		return
	}

	t := &s.p.Trips[next]

	// Append to an open chain along a feasible arc
	for ci := range s.chains {
		c := &s.chains[ci]
		v := &s.p.Vehicles[c.vehicle]
		if !v.Fits(t) {
			continue
		}
		last := c.trips[len(c.trips)-1]
		if !s.p.HasEdge(last, next) {
			continue
		}
		startMin := c.finish + s.p.Travel(last, next)
		if startMin < t.Earliest {
			startMin = t.Earliest
		}
		if startMin > t.LatestStart() {
			continue
		}

		prevFinish := c.finish
		c.trips = append(c.trips, next)
		c.finish = t.Finish(startMin)
		c.returnHintSum += t.ReturnKm

		s.dfs(ctx, next+1)

		// Deeper frames may have grown s.chains and moved the backing
		// array; re-fetch before undoing the move
		c = &s.chains[ci]
		c.trips = c.trips[:len(c.trips)-1]
		c.finish = prevFinish
		c.returnHintSum -= t.ReturnKm
		if s.timedOut {
			return
		}
	}

	// Open a fresh chain on an unused compatible vehicle. Vehicles with
	// identical company, capacity, and depot are interchangeable here, so
	// only the first unused of each signature branches.
	if len(s.chains)+1 > s.maxChains {
		return
	}
	if !s.minimizeDead && len(s.chains)+1 >= s.bestChains {
		return
	}
	seen := make(map[string]struct{})
	for _, vi := range s.p.Compatible[next] {
		if s.used[vi] {
			continue
		}
		v := &s.p.Vehicles[vi]
		sig := vehicleSignature(v)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}

		startMin := t.Earliest
		s.chains = append(s.chains, chain{
			vehicle:       vi,
			trips:         []int{next},
			finish:        t.Finish(startMin),
			returnHintSum: t.ReturnKm,
		})
		s.used[vi] = true

		s.dfs(ctx, next+1)

		s.used[vi] = false
		s.chains = s.chains[:len(s.chains)-1]
		if s.timedOut {
			return
		}
	}
}

// accept records a complete assignment when it beats the incumbent and
// satisfies the return-distance clamp on every chain.
func (s *crossSearch) accept() {
	for ci := range s.chains {
		c := &s.chains[ci]
		if !returnClampOK(s.p, c) {
			return
		}
	}

	if s.minimizeDead {
		dead := totalDeadhead(s.p, s.chains)
		if dead >= s.bestDeadhead-deadheadEps {
			return
		}
		s.bestDeadhead = dead
	} else {
		if len(s.chains) >= s.bestChains {
			return
		}
		s.bestChains = len(s.chains)
	}

	snap := make([]chain, len(s.chains))
	for i := range s.chains {
		snap[i] = chain{
			vehicle:       s.chains[i].vehicle,
			trips:         append([]int(nil), s.chains[i].trips...),
			finish:        s.chains[i].finish,
			returnHintSum: s.chains[i].returnHintSum,
		}
	}
	s.best = &incumbent{chains: snap}
}

// returnClampOK enforces the conservative deadhead clamp: the planned
// return of the chain's last trip may not exceed the sum of the chained
// trips' solo-return estimates.
func returnClampOK(p *Problem, c *chain) bool {
	last := c.trips[len(c.trips)-1]
	return p.ReturnKm(last, c.vehicle) <= c.returnHintSum+deadheadEps
}

func totalDeadhead(p *Problem, chains []chain) float64 {
	total := 0.0
	for ci := range chains {
		last := chains[ci].trips[len(chains[ci].trips)-1]
		total += p.ReturnKm(last, chains[ci].vehicle)
	}
	return total
}

func vehicleSignature(v *Vehicle) string {
	vol := math.NaN()
	if v.CapacityM3 != nil {
		vol = *v.CapacityM3
	}
	return fmt.Sprintf("%s|%.3f|%.3f|%.6f|%.6f", v.CompanyID, v.CapacityKg, vol, v.Depot.Lat, v.Depot.Lng)
}

// extract converts the winning chains to assignments: dense 1-based
// sequence per vehicle, minimal feasible start times, exactly one last
// trip per chain.
func extract(p *Problem, chains []chain) Result {
	var res Result
	usedVehicles := make(map[string]struct{})

	for ci := range chains {
		c := &chains[ci]
		v := &p.Vehicles[c.vehicle]
		usedVehicles[v.ID] = struct{}{}

		startMin := 0
		for seq, ti := range c.trips {
			t := &p.Trips[ti]
			if seq == 0 {
				startMin = t.Earliest
			} else {
				prev := c.trips[seq-1]
				earliest := startMin + p.Trips[prev].Duration + p.Trips[prev].Service + p.Travel(prev, ti)
				if earliest < t.Earliest {
					earliest = t.Earliest
				}
				startMin = earliest
			}
			res.Assignments = append(res.Assignments, Assignment{
				TripID:        t.ID,
				VehicleID:     v.ID,
				SequenceOrder: seq + 1,
				StartMin:      startMin,
				IsLast:        seq == len(c.trips)-1,
			})
		}
		last := c.trips[len(c.trips)-1]
		res.TotalDeadheadKm += p.ReturnKm(last, c.vehicle)
	}

	res.VehiclesUsed = len(usedVehicles)
	sort.Slice(res.Assignments, func(a, b int) bool {
		if res.Assignments[a].VehicleID != res.Assignments[b].VehicleID {
			return res.Assignments[a].VehicleID < res.Assignments[b].VehicleID
		}
		return res.Assignments[a].SequenceOrder < res.Assignments[b].SequenceOrder
	})
	return res
}

// roundRobin is the last-resort assignment when search produced no
// incumbent: trip i goes to the first compatible vehicle at or after
// position i mod |V|, chains are rebuilt per vehicle in time order.
func roundRobin(p *Problem) Result {
	n := len(p.Vehicles)
	perVehicle := make(map[int][]int)
	var res Result
	res.Fallback = true

	for i := range p.Trips {
		assigned := -1
		for off := 0; off < n; off++ {
			vi := (i + off) % n
			if p.Vehicles[vi].Fits(&p.Trips[i]) {
				assigned = vi
				break
			}
		}
		if assigned < 0 {
			res.Unassigned = append(res.Unassigned, Unassigned{TripID: p.Trips[i].ID, Reason: ReasonNoCompatibleVehicle})
			continue
		}
		perVehicle[assigned] = append(perVehicle[assigned], i)
	}

	vis := make([]int, 0, len(perVehicle))
	for vi := range perVehicle {
		vis = append(vis, vi)
	}
	sort.Ints(vis)

	for _, vi := range vis {
		trips := perVehicle[vi]
		sort.Slice(trips, func(a, b int) bool {
			if p.Trips[trips[a]].Earliest != p.Trips[trips[b]].Earliest {
				return p.Trips[trips[a]].Earliest < p.Trips[trips[b]].Earliest
			}
			return p.Trips[trips[a]].ID < p.Trips[trips[b]].ID
		})

		startMin := 0
		for seq, ti := range trips {
			t := &p.Trips[ti]
			if seq == 0 {
				startMin = t.Earliest
			} else {
				prev := trips[seq-1]
				earliest := startMin + p.Trips[prev].Duration + p.Trips[prev].Service + p.Travel(prev, ti)
				if earliest < t.Earliest {
					earliest = t.Earliest
				}
				startMin = earliest
			}
			res.Assignments = append(res.Assignments, Assignment{
				TripID:        t.ID,
				VehicleID:     p.Vehicles[vi].ID,
				SequenceOrder: seq + 1,
				StartMin:      startMin,
				IsLast:        seq == len(trips)-1,
			})
		}
		last := trips[len(trips)-1]
		res.TotalDeadheadKm += p.ReturnKm(last, vi)
		res.VehiclesUsed++
	}

	return res
}
