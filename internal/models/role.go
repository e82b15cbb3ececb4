package models

type Role string // Роль аутентифицированного пользователя

const (
	RoleBidder    Role = "Bidder"    // Участник торгов
	RoleSeller    Role = "Seller"    // Продавец
	RoleInspector Role = "Inspector" // Инспектор физического осмотра
	RoleAdmin     Role = "Admin"     // Администратор площадки
)

// Principal представляет аутентифицированного пользователя запроса.
// Передаётся явно по цепочке вызовов, глобального состояния нет.
type Principal struct {
	UserID string
	Role   Role
}

// ParseRole проверяет строку роли из заголовка запроса.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleBidder, RoleSeller, RoleInspector, RoleAdmin:
		return Role(s), true
	}
	return "", false
}
