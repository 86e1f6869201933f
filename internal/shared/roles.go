package shared

// Role enumerates station user roles.
type Role string

const (
	// RoleStaff covers attendants recording daily readings.
	RoleStaff Role = "staff"
	// RoleManager may approve estimates and override edit windows.
	RoleManager Role = "manager"
	// RoleDirector has read access only; never writes readings.
	RoleDirector Role = "director"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleManager, RoleDirector:
		return true
	}
	return false
}

// CanRecordReadings reports whether the role may create or edit meter
// readings. Directors are categorically denied write access.
func (r Role) CanRecordReadings() bool {
	return r == RoleStaff || r == RoleManager
}

// CanOverrideWindow reports whether the role may edit past the cutoff.
func (r Role) CanOverrideWindow() bool {
	return r == RoleManager
}

// CanApprove reports whether the role may decide estimated calculations.
func (r Role) CanApprove() bool {
	return r == RoleManager
}

// CanManagePumps reports whether the role may create or edit pumps.
func (r Role) CanManagePumps() bool {
	return r == RoleManager
}
