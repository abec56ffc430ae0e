package session

import "strings"

// Roles the API issues credentials for.
const (
	RolePetitioner = "petitioner"
	RoleOfficial   = "official"
	RoleAdmin      = "admin"
)

// Route is a navigation target for the presentation layer. The session
// layer only computes it; acting on it is the caller's job.
type Route string

const (
	RouteLogin           Route = "/login"
	RoutePetitionerLogin Route = "/login/petitioner"
	RouteOfficialLogin   Route = "/login/official"
	RouteAdminLogin      Route = "/login/admin"
	RoutePetitionerHome  Route = "/petitioner/dashboard"
	RouteAdminHome       Route = "/admin/dashboard"
	RouteOfficialBase    Route = "/official"
)

// loginRoute maps the role held before logout to its login page. Unknown or
// absent roles fall back to the generic login route.
func loginRoute(role string) Route {
	switch strings.ToLower(role) {
	case RolePetitioner:
		return RoutePetitionerLogin
	case RoleOfficial:
		return RouteOfficialLogin
	case RoleAdmin:
		return RouteAdminLogin
	default:
		return RouteLogin
	}
}

// landingRoute maps a freshly authenticated role to its dashboard. Officials
// land on a department-specific path derived from their profile.
func landingRoute(role, department string) Route {
	switch strings.ToLower(role) {
	case RolePetitioner:
		return RoutePetitionerHome
	case RoleAdmin:
		return RouteAdminHome
	case RoleOfficial:
		dept := strings.ToLower(strings.TrimSpace(department))
		if dept == "" {
			return RouteOfficialBase
		}
		return RouteOfficialBase + Route("/"+strings.ReplaceAll(dept, " ", "-"))
	default:
		return RouteLogin
	}
}
