package solver

import (
	"context"
	"sort"
	"time"
)

// SolveSingle runs the single-company routing formulation for one
// vehicle-category group: depot start/end per vehicle, arc cost equal to
// travel plus the successor trip's duration, trip drops allowed. A
// path-cheapest-arc construction seeds the plan and relocate moves improve
// it until no move helps or the budget expires.
func SolveSingle(ctx context.Context, p *Problem, cfg Config) Result {
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
		budget = 10 * time.Second
	}
	deadline := time.Now().Add(budget)

	dropPenalty := cfg.DropPenalty
	if dropPenalty <= 0 {
		dropPenalty = 1_000_000_000
	}

	routes := constructCheapestArc(p)
	rescueDropped(p, routes, dropPenalty)
	improveRelocate(ctx, p, routes, deadline)

	return extractRoutes(p, routes)
}

// constructCheapestArc greedily extends vehicle routes by the globally
// cheapest feasible arc until no trip can be added.
func constructCheapestArc(p *Problem) [][]int {
	routes := make([][]int, len(p.Vehicles))
	routed := make([]bool, len(p.Trips))

	for {
		bestCost := int(^uint(0) >> 1)
		bestVehicle, bestTrip := -1, -1

		for vi := range p.Vehicles {
			for ti := range p.Trips {
				if routed[ti] {
					continue
				}
				if !p.Vehicles[vi].Fits(&p.Trips[ti]) {
					continue
				}
				candidate := append(routes[vi], ti)
				if !scheduleFeasible(p, candidate) {
					continue
				}
				cost := arcCost(p, vi, routes[vi], ti)
				if cost < bestCost {
					bestCost = cost
					bestVehicle, bestTrip = vi, ti
				}
			}
		}

		if bestTrip < 0 {
			break
		}
		routes[bestVehicle] = append(routes[bestVehicle], bestTrip)
		routed[bestTrip] = true
	}

	return routes
}

// arcCost is the routing arc cost of appending trip ti to the route:
// deadhead travel from the route's current end plus the trip's duration.
func arcCost(p *Problem, vi int, route []int, ti int) int {
	if len(route) == 0 {
		return p.DepotTravel(vi, ti) + p.Trips[ti].Duration
	}
	last := route[len(route)-1]
	return p.Travel(last, ti) + p.Trips[ti].Duration
}

// scheduleFeasible checks the time windows of an ordered route with
// minimal start times.
func scheduleFeasible(p *Problem, route []int) bool {
	startMin := 0
	for k, ti := range route {
		t := &p.Trips[ti]
		if k == 0 {
			startMin = t.Earliest
		} else {
			prev := route[k-1]
			earliest := startMin + p.Trips[prev].Duration + p.Trips[prev].Service + p.Travel(prev, ti)
			if earliest < t.Earliest {
				earliest = t.Earliest
			}
			startMin = earliest
		}
		if startMin > t.LatestStart() {
			return false
		}
	}
	return true
}

// routeCost is the full time cost of a route including the return to depot
func routeCost(p *Problem, vi int, route []int) int {
	if len(route) == 0 {
		return 0
	}
	cost := p.DepotTravel(vi, route[0]) + p.Trips[route[0]].Duration
	for k := 1; k < len(route); k++ {
		cost += p.Travel(route[k-1], route[k]) + p.Trips[route[k]].Duration
	}
	last := route[len(route)-1]
	cost += p.ReturnTravel(last, vi)
	return cost
}

// rescueDropped tries to insert trips the greedy construction left behind
// at any position in any route. A drop costs the penalty, so any feasible
// insertion cheaper than it is taken.
func rescueDropped(p *Problem, routes [][]int, dropPenalty int64) {
	routed := make([]bool, len(p.Trips))
	for vi := range routes {
		for _, ti := range routes[vi] {
			routed[ti] = true
		}
	}

	for ti := range p.Trips {
		if routed[ti] {
			continue
		}

		bestCost := dropPenalty
		bestVehicle, bestPos := -1, -1

		for vi := range routes {
			if !p.Vehicles[vi].Fits(&p.Trips[ti]) {
				continue
			}
			for insert := 0; insert <= len(routes[vi]); insert++ {
				candidate := make([]int, 0, len(routes[vi])+1)
				candidate = append(candidate, routes[vi][:insert]...)
				candidate = append(candidate, ti)
				candidate = append(candidate, routes[vi][insert:]...)
				if !scheduleFeasible(p, candidate) {
					continue
				}
				cost := int64(routeCost(p, vi, candidate) - routeCost(p, vi, routes[vi]))
				if cost < bestCost {
					bestCost = cost
					bestVehicle, bestPos = vi, insert
				}
			}
		}

		if bestVehicle >= 0 {
			route := routes[bestVehicle]
			candidate := make([]int, 0, len(route)+1)
			candidate = append(candidate, route[:bestPos]...)
			candidate = append(candidate, ti)
			candidate = append(candidate, route[bestPos:]...)
			routes[bestVehicle] = candidate
			routed[ti] = true
		}
	}
}

// improveRelocate repeatedly moves a single trip to the cheapest feasible
// position anywhere in the plan, stopping at a local optimum or when the
// deadline passes.
func improveRelocate(ctx context.Context, p *Problem, routes [][]int, deadline time.Time) {
	improved := true
	for improved {
		improved = false
		if ctx.Err() != nil || time.Now().After(deadline) {
			return
		}

		for fromV := range routes {
			for pos := 0; pos < len(routes[fromV]); pos++ {
				ti := routes[fromV][pos]

				removed := append(append([]int(nil), routes[fromV][:pos]...), routes[fromV][pos+1:]...)
				baseDelta := routeCost(p, fromV, removed) - routeCost(p, fromV, routes[fromV])

				bestDelta := 0
				bestToV, bestToPos := -1, -1

				for toV := range routes {
					if !p.Vehicles[toV].Fits(&p.Trips[ti]) {
						continue
					}
					target := routes[toV]
					if toV == fromV {
						target = removed
					}
					for insert := 0; insert <= len(target); insert++ {
						if toV == fromV && insert == pos {
							continue
						}
						candidate := make([]int, 0, len(target)+1)
						candidate = append(candidate, target[:insert]...)
						candidate = append(candidate, ti)
						candidate = append(candidate, target[insert:]...)
						if !scheduleFeasible(p, candidate) {
							continue
						}
						delta := routeCost(p, toV, candidate) - routeCost(p, toV, target)
						if toV != fromV {
							delta += baseDelta
						} else {
							delta = routeCost(p, toV, candidate) - routeCost(p, toV, routes[fromV])
						}
						if delta < bestDelta {
							bestDelta = delta
							bestToV, bestToPos = toV, insert
						}
					}
				}

				if bestToV >= 0 {
					routes[fromV] = removed
					target := routes[bestToV]
					candidate := make([]int, 0, len(target)+1)
					candidate = append(candidate, target[:bestToPos]...)
					candidate = append(candidate, ti)
					candidate = append(candidate, target[bestToPos:]...)
					routes[bestToV] = candidate
					improved = true
				}
			}
		}
	}
}

// extractRoutes converts routes to assignments; trips left unrouted are
// reported as dropped.
func extractRoutes(p *Problem, routes [][]int) Result {
	var res Result
	routed := make([]bool, len(p.Trips))

	for vi := range routes {
		route := routes[vi]
		if len(route) == 0 {
			continue
		}
		res.VehiclesUsed++

		startMin := 0
		for seq, ti := range route {
			routed[ti] = true
			t := &p.Trips[ti]
			if seq == 0 {
				startMin = t.Earliest
			} else {
				prev := route[seq-1]
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
				IsLast:        seq == len(route)-1,
			})
		}
		last := route[len(route)-1]
		res.TotalDeadheadKm += p.ReturnKm(last, vi)
	}

	for ti := range p.Trips {
		if !routed[ti] {
			res.Unassigned = append(res.Unassigned, Unassigned{TripID: p.Trips[ti].ID, Reason: ReasonDropped})
		}
	}

	sort.Slice(res.Assignments, func(a, b int) bool {
		if res.Assignments[a].VehicleID != res.Assignments[b].VehicleID {
			return res.Assignments[a].VehicleID < res.Assignments[b].VehicleID
		}
		return res.Assignments[a].SequenceOrder < res.Assignments[b].SequenceOrder
	})
	res.Diagnostics = p.Diagnostics()
	return res
}
