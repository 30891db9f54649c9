// Package router implements the Router (§4.G): skill filter with
// relaxation, Haversine geo filter, least-loaded selection, and
// cumulative-load mutation.
package router

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/freedomfinance/ticketfire/internal/logx"
	"github.com/freedomfinance/ticketfire/internal/models"
)

var log = logx.Tag("route")

const earthRadiusKM = 6371.0
const defaultMaxKM = 500.0

// Request is everything Route needs for one ticket.
type Request struct {
	TicketID      uuid.UUID
	Coordinates   *models.Coordinates
	Segment       models.Segment
	Type          models.TicketType
	LanguageLabel models.LanguageLabel
}

// ErrNoCandidates is returned when every relaxation step still leaves
// an empty candidate set (§7 "routing-empty error").
var ErrNoCandidates = fmt.Errorf("no eligible managers after exhausting all relaxations")

// ErrTicketCoordinatesUnresolved is returned when the ticket itself has
// no resolved coordinates. Geo-filtering is only skipped when no
// candidate office has coordinates — an unresolved ticket never falls
// through to "admit everyone".
var ErrTicketCoordinatesUnresolved = fmt.Errorf("ticket has no resolved coordinates, cannot geo-filter")

// relaxationOrder is spec.md's fixed order: drop language, drop
// position, drop VIP. This deliberately does NOT implement the
// original's additional double-drop combinations — see DESIGN.md.
var relaxationOrder = []string{"language", "position", "vip"}

// Route picks a manager for one ticket and mutates its cumulative load
// in place. Managers with Active==false are skipped by the skill
// filter, so the caller may pass the full roster.
func Route(req Request, managers []*models.Manager, offices map[uuid.UUID]*models.Office) (*models.Assignment, error) {
	requirements := requiredSkills(req)

	eligible, relaxed := filterBySkill(req, managers, requirements)
	if len(eligible) == 0 {
		return nil, ErrNoCandidates
	}

	if req.Coordinates == nil {
		return nil, ErrTicketCoordinatesUnresolved
	}

	admitted, distances, geoSkipped := filterByDistance(req, eligible, offices)
	if len(admitted) == 0 {
		return nil, ErrNoCandidates
	}

	chosen := pickLeastLoaded(admitted, distances)
	difficulty := models.TypeDifficulty(req.Type)
	chosen.CumulativeLoad += difficulty

	office := offices[chosen.OfficeID]
	officeName := ""
	if office != nil {
		officeName = office.Name
	}

	explanation := fmt.Sprintf("assigned to %s (office %s, distance %.1fkm)", chosen.FullName, officeName, distances[chosen.ID])
	if len(relaxed) > 0 {
		explanation += fmt.Sprintf("; relaxed requirements: %v", relaxed)
	}
	if geoSkipped {
		explanation += "; geo filter skipped, no office coordinates available"
	}

	return &models.Assignment{
		ID:               uuid.New(),
		TicketID:         req.TicketID,
		ManagerID:        chosen.ID,
		OfficeID:         chosen.OfficeID,
		Explanation:      explanation,
		ChosenDistanceKM: distances[chosen.ID],
		ChosenOfficeName: officeName,
		Relaxations:      relaxed,
	}, nil
}

func requiredSkills(req Request) []string {
	var reqs []string
	if req.Segment == models.SegmentVIP || req.Segment == models.SegmentPriority {
		reqs = append(reqs, "vip")
	}
	if req.Type == models.TicketDataChange {
		reqs = append(reqs, "position")
	}
	if req.LanguageLabel == models.LanguageKZ || req.LanguageLabel == models.LanguageENG {
		reqs = append(reqs, "language")
	}
	return reqs
}

func filterBySkill(req Request, managers []*models.Manager, requirements []string) ([]*models.Manager, []string) {
	eligible := applyRequirements(req, managers, requirements)
	if len(eligible) > 0 {
		return eligible, nil
	}

	for _, drop := range relaxationOrder {
		if !contains(requirements, drop) {
			continue
		}
		reduced := without(requirements, drop)
		eligible = applyRequirements(req, managers, reduced)
		if len(eligible) > 0 {
			return eligible, []string{drop}
		}
	}

	return nil, nil
}

func applyRequirements(req Request, managers []*models.Manager, requirements []string) []*models.Manager {
	var result []*models.Manager
	for _, m := range managers {
		if !m.Active {
			continue
		}
		if contains(requirements, "vip") && !m.HasSkill("VIP") {
			continue
		}
		if contains(requirements, "position") && m.Position != models.PositionChiefSpecialist {
			continue
		}
		if contains(requirements, "language") && !m.HasSkill(string(req.LanguageLabel)) {
			continue
		}
		result = append(result, m)
	}
	return result
}

// filterByDistance assumes req.Coordinates is non-nil; Route guards that
// before calling it — geo-filtering may only be skipped when no office
// has coordinates, never when the ticket itself lacks them.
func filterByDistance(req Request, candidates []*models.Manager, offices map[uuid.UUID]*models.Office) ([]*models.Manager, map[uuid.UUID]float64, bool) {
	distances := make(map[uuid.UUID]float64)

	anyOfficeCoords := false
	for _, m := range candidates {
		office := offices[m.OfficeID]
		if office == nil || office.Coordinates == nil {
			continue
		}
		anyOfficeCoords = true
		distances[m.ID] = haversineKM(*req.Coordinates, *office.Coordinates)
	}
	if !anyOfficeCoords {
		return candidates, distances, true
	}

	dMin := math.MaxFloat64
	for _, d := range distances {
		if d < dMin {
			dMin = d
		}
	}
	maxAdmit := math.Max(dMin*1.5, 50.0)
	if maxAdmit == 0 {
		maxAdmit = defaultMaxKM
	}

	var admitted []*models.Manager
	for _, m := range candidates {
		d, ok := distances[m.ID]
		if !ok {
			continue
		}
		if d <= maxAdmit {
			admitted = append(admitted, m)
		}
	}
	return admitted, distances, false
}

func pickLeastLoaded(candidates []*models.Manager, distances map[uuid.UUID]float64) *models.Manager {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CumulativeLoad != b.CumulativeLoad {
			return a.CumulativeLoad < b.CumulativeLoad
		}
		da, db := distances[a.ID], distances[b.ID]
		if da != db {
			return da < db
		}
		return a.ID.String() < b.ID.String()
	})
	return candidates[0]
}

func haversineKM(a, b models.Coordinates) float64 {
	lat1, lon1 := radians(a.Lat), radians(a.Lon)
	lat2, lon2 := radians(b.Lat), radians(b.Lon)

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func without(list []string, drop string) []string {
	var out []string
	for _, x := range list {
		if x != drop {
			out = append(out, x)
		}
	}
	return out
}
