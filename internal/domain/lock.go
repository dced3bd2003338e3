package domain

import "fmt"

type DoorRole string

const (
	DoorPortal DoorRole = "portal"
	DoorUnit   DoorRole = "unit"
)

func ParseDoorRole(s string) (DoorRole, bool) {
	switch DoorRole(s) {
	case DoorPortal, DoorUnit:
		return DoorRole(s), true
	default:
		return "", false
	}
}

// LockDevice is one physical access point resolved from accommodation
// configuration. Immutable for the duration of a request.
type LockDevice struct {
	AccommodationID int64    `json:"accommodation_id"`
	DeviceID        string   `json:"device_id"`
	DoorID          string   `json:"door_id"`
	VendorName      string   `json:"vendor_name"`
	Role            DoorRole `json:"role"`
}

// RoleMap translates vendor-reported door names into the closed DoorRole
// enumeration. Matching is case-sensitive; unmatched names are ignored by the
// resolver rather than treated as errors.
type RoleMap map[string]DoorRole

func NewRoleMap(portalName, unitName string) (RoleMap, error) {
	if portalName == "" || unitName == "" {
		return nil, fmt.Errorf("door role names must not be empty")
	}
	if portalName == unitName {
		return nil, fmt.Errorf("portal and unit role names collide: %q", portalName)
	}
	return RoleMap{
		portalName: DoorPortal,
		unitName:   DoorUnit,
	}, nil
}

func (m RoleMap) Classify(vendorName string) (DoorRole, bool) {
	role, ok := m[vendorName]
	return role, ok
}

// LockDirectory is the resolved mapping from an accommodation to its door
// devices. Degraded is non-nil when the configuration store faulted and the
// resolver fell back to "no locks"; callers that only render display data
// ignore it, tests assert on it.
type LockDirectory struct {
	HasLocks   bool        `json:"has_locks"`
	Portal     *LockDevice `json:"portal,omitempty"`
	Unit       *LockDevice `json:"unit,omitempty"`
	PortalInfo string      `json:"portal_info,omitempty"`
	UnitInfo   string      `json:"unit_info,omitempty"`
	Degraded   error       `json:"-"`
}

func (d *LockDirectory) Device(role DoorRole) *LockDevice {
	switch role {
	case DoorPortal:
		return d.Portal
	case DoorUnit:
		return d.Unit
	default:
		return nil
	}
}
