package rbac

type Role string
type Action string

const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead       Action = "read"
	ActionComment    Action = "comment"
	ActionContribute Action = "contribute"
	ActionPublish    Action = "publish"
	ActionAdmin      Action = "admin"
)

// Can reports whether role may perform action. Anonymous callers have no
// role and may only read.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action != ActionAdmin
	case RoleUser:
		return action == ActionRead || action == ActionComment || action == ActionContribute
	default:
		return action == ActionRead
	}
}

// Normalize maps unknown roles to user.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}
