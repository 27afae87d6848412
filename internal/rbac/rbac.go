// Package rbac maps team membership roles to allowed actions.
package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionGenerate Action = "generate"
	ActionPublish  Action = "publish"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionGenerate || action == ActionPublish
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps stored role strings onto the known roles. Self-service
// accounts are created as "member", which grants editor rights.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	case "member":
		return RoleEditor
	default:
		return RoleViewer
	}
}
