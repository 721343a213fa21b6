package solver

import (
	"fmt"
	"sort"
)

// Reasons recorded for trips removed before solving
const (
	ReasonMissingCoordinates  = "missing_coordinates"
	ReasonNoCompatibleVehicle = "no_compatible_vehicle"
	ReasonDropped             = "dropped_or_infeasible"
)

// Problem is a feasibility-checked group instance: the surviving trips, the
// group's vehicles, per-trip compatible vehicle sets, and the precedence
// arc set.
type Problem struct {
	Trips    []Trip    // sorted by (Earliest, LatestStart, ID)
	Vehicles []Vehicle // sorted by ID

	// Compatible[i] lists indices into Vehicles whose capacity fits trip i
	Compatible [][]int

	// Succ[i] lists trip indices j reachable immediately after i; travel
	// minutes for the arc are cached in ArcTravel
	Succ      [][]int
	ArcTravel map[[2]int]int

	travel Travel
}

// BuildProblem runs the feasibility builder over one vehicle-category
// group: it removes degenerate trips with a reason, computes compatible
// vehicle sets, and constructs the precedence-feasible arc set.
//
// Edge (i,j) is kept iff
//
//	earliest(i) + duration(i) + service(i) + travel(dest_i, orig_j) <= latest_start(j)
func BuildProblem(trips []Trip, vehicles []Vehicle, travel Travel) (*Problem, []Unassigned) {
	var unassigned []Unassigned

	sorted := make([]Vehicle, len(vehicles))
	copy(sorted, vehicles)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ID < sorted[b].ID })

	var feasible []Trip
	for _, t := range trips {
		compatible := false
		for i := range sorted {
			if sorted[i].Fits(&t) {
				compatible = true
				break
			}
		}
		if !compatible {
			unassigned = append(unassigned, Unassigned{TripID: t.ID, Reason: ReasonNoCompatibleVehicle})
			continue
		}
		feasible = append(feasible, t)
	}

	sort.Slice(feasible, func(a, b int) bool {
		if feasible[a].Earliest != feasible[b].Earliest {
			return feasible[a].Earliest < feasible[b].Earliest
		}
		la, lb := feasible[a].LatestStart(), feasible[b].LatestStart()
		if la != lb {
			return la < lb
		}
		return feasible[a].ID < feasible[b].ID
	})

	p := &Problem{
		Trips:      feasible,
		Vehicles:   sorted,
		Compatible: make([][]int, len(feasible)),
		Succ:       make([][]int, len(feasible)),
		ArcTravel:  make(map[[2]int]int),
		travel:     travel,
	}

	for i := range feasible {
		for vi := range sorted {
			if sorted[vi].Fits(&feasible[i]) {
				p.Compatible[i] = append(p.Compatible[i], vi)
			}
		}
	}

	for i := range feasible {
		for j := range feasible {
			if i == j {
				continue
			}
			tt := travel.Minutes(feasible[i].Dest, feasible[j].Orig)
			finish := feasible[i].Earliest + feasible[i].Duration + feasible[i].Service
			if finish+tt <= feasible[j].LatestStart() {
				p.Succ[i] = append(p.Succ[i], j)
				p.ArcTravel[[2]int{i, j}] = tt
			}
		}
	}

	return p, unassigned
}

// Travel returns the arc travel minutes for (i,j), computing it on demand
// for pairs outside the feasible arc set
func (p *Problem) Travel(i, j int) int {
	if tt, ok := p.ArcTravel[[2]int{i, j}]; ok {
		return tt
	}
	return p.travel.Minutes(p.Trips[i].Dest, p.Trips[j].Orig)
}

// ReturnKm returns the deadhead distance from trip i's destination to
// vehicle v's depot
func (p *Problem) ReturnKm(i, v int) float64 {
	return p.travel.Km(p.Trips[i].Dest, p.Vehicles[v].Depot)
}

// DepotTravel returns the travel minutes from vehicle v's depot to trip
// i's origin
func (p *Problem) DepotTravel(v, i int) int {
	return p.travel.Minutes(p.Vehicles[v].Depot, p.Trips[i].Orig)
}

// ReturnTravel returns the travel minutes from trip i's destination back
// to vehicle v's depot
func (p *Problem) ReturnTravel(i, v int) int {
	return p.travel.Minutes(p.Trips[i].Dest, p.Vehicles[v].Depot)
}

// HasEdge reports whether trip j may immediately follow trip i
func (p *Problem) HasEdge(i, j int) bool {
	_, ok := p.ArcTravel[[2]int{i, j}]
	return ok
}

// Diagnostics reports pre-solve sanity findings for the batch report
func (p *Problem) Diagnostics() []string {
	var out []string
	var impossible []string
	for i := range p.Trips {
		if p.Trips[i].Latest-p.Trips[i].Duration < p.Trips[i].Earliest {
			impossible = append(impossible, p.Trips[i].ID)
		}
	}
	if len(impossible) > 0 {
		out = append(out, fmt.Sprintf("trips with impossible windows: %v", impossible))
	}
	return out
}
