package rbac

// Role 是房间内的权限等级，viewer < editor < owner。
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast 判断 r 是否不低于 min，所有事件的角色下限检查都走这里。
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// Valid 判断是否为已知角色。
func (r Role) Valid() bool {
	return r.rank() > 0
}

// Assignable 判断角色是否可以被申请或指派；owner 只能通过所有权转移产生。
func Assignable(r Role) bool {
	return r == RoleEditor || r == RoleViewer
}

// Normalize 把任意字符串收敛为已知角色，未知值一律按 viewer 处理。
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleOwner:
		return Role(role)
	default:
		return RoleViewer
	}
}
