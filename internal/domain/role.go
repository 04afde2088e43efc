package domain

// Role is the stored role string of a user.
type Role string

const (
	RoleVendor   Role = "vendor"
	RoleInvestor Role = "investor"
	RoleAdmin    Role = "admin"
)

// View is the presentation mode a client should render for an identity.
type View string

const (
	ViewVendorDashboard   View = "vendor_dashboard"
	ViewInvestorDashboard View = "investor_dashboard"
	ViewAdminDashboard    View = "admin_dashboard"
	ViewInvalidRole       View = "invalid_role"
)

// RouteForRole maps a role to its view. Matching is exact; anything else,
// including an empty role, lands on ViewInvalidRole.
func RouteForRole(role Role) View {
	switch role {
	case RoleVendor:
		return ViewVendorDashboard
	case RoleInvestor:
		return ViewInvestorDashboard
	case RoleAdmin:
		return ViewAdminDashboard
	default:
		return ViewInvalidRole
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return RouteForRole(r) != ViewInvalidRole
}

// SelfAssignable reports whether a user may pick r for themselves.
// Admin is granted by operators only.
func (r Role) SelfAssignable() bool {
	return r == RoleVendor || r == RoleInvestor
}
