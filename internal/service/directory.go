package service

import (
	"context"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/internal/repo/postgres"
	"github.com/stayflow/guestgate/pkg/logger"
)

// DirectoryService maps an accommodation to its configured door devices.
// Resolution never fails the caller: a configuration store fault degrades to
// "no locks" with the fault recorded on the directory, because door info also
// feeds a purely informational display path.
type DirectoryService interface {
	Resolve(ctx context.Context, accommodationID int64) *domain.LockDirectory
}

type directoryService struct {
	config postgres.LockConfigRepository
	roles  domain.RoleMap
}

func NewDirectoryService(config postgres.LockConfigRepository, roles domain.RoleMap) DirectoryService {
	return &directoryService{config: config, roles: roles}
}

func (s *directoryService) Resolve(ctx context.Context, accommodationID int64) *domain.LockDirectory {
	group, err := s.config.GroupForAccommodation(ctx, accommodationID)
	if err != nil {
		return s.degrade(ctx, accommodationID, err)
	}
	if group == nil {
		// No smart lock installed. Normal for many accommodations.
		return &domain.LockDirectory{HasLocks: false}
	}

	rows, err := s.config.DevicesForGroup(ctx, group.ID)
	if err != nil {
		return s.degrade(ctx, accommodationID, err)
	}

	dir := &domain.LockDirectory{
		PortalInfo: group.PortalInfo,
		UnitInfo:   group.UnitInfo,
	}
	for _, row := range rows {
		role, ok := s.roles.Classify(row.VendorName)
		if !ok {
			// Vendor metadata we don't recognize. Ignored, not an error.
			continue
		}
		device := &domain.LockDevice{
			AccommodationID: accommodationID,
			DeviceID:        row.DeviceID,
			DoorID:          row.DoorID,
			VendorName:      row.VendorName,
			Role:            role,
		}
		switch role {
		case domain.DoorPortal:
			if dir.Portal == nil {
				dir.Portal = device
			}
		case domain.DoorUnit:
			if dir.Unit == nil {
				dir.Unit = device
			}
		}
	}
	dir.HasLocks = dir.Portal != nil || dir.Unit != nil

	return dir
}

func (s *directoryService) degrade(ctx context.Context, accommodationID int64, err error) *domain.LockDirectory {
	logger.WarnContext(ctx, "lock configuration lookup faulted, degrading to no locks",
		"accommodation_id", accommodationID, "error", err)
	return &domain.LockDirectory{
		HasLocks: false,
		Degraded: domain.NewAccessError(domain.KindConfigurationError, "lock configuration unavailable", err),
	}
}
