package enums

// StaffRole gates the admin console routes.
type StaffRole string

const (
	StaffRoleOperator StaffRole = "operator"
	StaffRoleAdmin    StaffRole = "admin"
)

var staffRoles = []StaffRole{StaffRoleOperator, StaffRoleAdmin}

func (s StaffRole) String() string { return string(s) }

func (s StaffRole) IsValid() bool { return known(staffRoles, s) }

func ParseStaffRole(value string) (StaffRole, error) {
	return parse("staff role", staffRoles, value)
}
