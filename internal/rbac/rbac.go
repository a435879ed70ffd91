package rbac

type Role string
type Action string

const (
	RoleNone   Role = "none"
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

// GitLab access levels.
const (
	AccessGuest      = 10
	AccessReporter   = 20
	AccessDeveloper  = 30
	AccessMaintainer = 40
	AccessOwner      = 50
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// FromAccessLevel maps a GitLab project access level onto a role: developers
// commit ADRs, maintainers administer the index.
func FromAccessLevel(level int) Role {
	switch {
	case level >= AccessMaintainer:
		return RoleAdmin
	case level >= AccessDeveloper:
		return RoleEditor
	case level >= AccessGuest:
		return RoleViewer
	default:
		return RoleNone
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleNone
	}
}
