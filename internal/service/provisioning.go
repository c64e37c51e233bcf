package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"sort"
	"strings"
)

const (
	defaultSpacesPerZone = 50
	maxZones             = 26
)

// ZoneLayout describes how provisioned spaces are numbered: zones A, B, ... of
// SpacesPerZone spaces each, numbered <zone><NNN>.
type ZoneLayout struct {
	SpacesPerZone int
	// Classes maps a zone to the vehicle class its spaces are sized for. Unlisted zones are car.
	Classes map[string]domain.VehicleClass
}

func (l ZoneLayout) classFor(zone string) domain.VehicleClass {
	if c, ok := l.Classes[zone]; ok {
		return c
	}
	return domain.VehicleCar
}

type ProvisionInput struct {
	TotalSpaces int
	// SpacesPerZone zero means the configured layout.
	SpacesPerZone int
}

type ProvisionResult struct {
	Created int `json:"created"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// SpaceNumber renders the number of the index-th space (zero based) of a layout.
func SpaceNumber(index, perZone int) (zone, number string) {
	zone = string(rune('A' + index/perZone))
	return zone, fmt.Sprintf("%s%03d", zone, index%perZone+1)
}

// Provision reconciles the store so that exactly TotalSpaces spaces exist. Missing spaces
// are created free. Surplus spaces are removed only when every one of them is free.
func (s *SpaceLifecycleService) Provision(ctx context.Context, in ProvisionInput) (ProvisionResult, error) {
	perZone := in.SpacesPerZone
	if perZone == 0 {
		perZone = s.layout.SpacesPerZone
	}
	if in.TotalSpaces < 0 {
		return ProvisionResult{}, invalid("total spaces must not be negative")
	}
	if perZone <= 0 || perZone > 999 {
		return ProvisionResult{}, invalid("spaces per zone must be between 1 and 999")
	}
	if in.TotalSpaces > maxZones*perZone {
		return ProvisionResult{}, invalid("%d spaces need more than %d zones of %d", in.TotalSpaces, maxZones, perZone)
	}

	existing, err := s.spaces.List(ctx, domain.SpaceFilter{})
	if err != nil {
		return ProvisionResult{}, mapStoreError(err, "")
	}
	have := make(map[string]domain.ParkingSpace, len(existing))
	for _, sp := range existing {
		have[sp.Number] = sp
	}

	now := s.clock.Now()
	want := make(map[string]struct{}, in.TotalSpaces)
	var missing []domain.ParkingSpace
	for i := 0; i < in.TotalSpaces; i++ {
		zone, number := SpaceNumber(i, perZone)
		want[number] = struct{}{}
		if _, ok := have[number]; ok {
			continue
		}
		missing = append(missing, domain.ParkingSpace{
			Number:       number,
			Zone:         zone,
			VehicleClass: s.layout.classFor(zone),
			Status:       domain.StatusFree,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	var surplus, busy []string
	for _, sp := range existing {
		if _, ok := want[sp.Number]; ok {
			continue
		}
		surplus = append(surplus, sp.Number)
		if sp.Status != domain.StatusFree {
			busy = append(busy, sp.Number)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(surplus)))
	if len(busy) > 0 {
		sort.Strings(busy)
		return ProvisionResult{}, fmt.Errorf("%w: %s", domain.ErrProvisionConflict, strings.Join(busy, ", "))
	}

	res := ProvisionResult{}
	if len(surplus) > 0 {
		removed, err := s.spaces.DeleteFree(ctx, surplus)
		if err != nil {
			return res, mapStoreError(err, "")
		}
		res.Removed = removed
		if removed < len(surplus) {
			return res, fmt.Errorf("%w: %d of %d surplus spaces changed state during provisioning",
				domain.ErrProvisionConflict, len(surplus)-removed, len(surplus))
		}
	}
	if len(missing) > 0 {
		if err := s.spaces.CreateMany(ctx, missing); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				return res, fmt.Errorf("%w: %w", domain.ErrProvisionConflict, err)
			}
			return res, mapStoreError(err, "")
		}
		res.Created = len(missing)
	}

	total, err := s.spaces.Count(ctx)
	if err != nil {
		return res, mapStoreError(err, "")
	}
	res.Total = total
	log.Printf("SpaceLifecycle: provisioned %d spaces (created %d, removed %d)", res.Total, res.Created, res.Removed)
	return res, nil
}
