package user

// 定义与用户相关的Redis键名
const (
	// KnownUsersKey 是一个Set，用于快速查找一个UUID是否是已知的、已落库的认证用户。
	// Key: known_users
	// Member: User UUID
	KnownUsersKey = "known_users"
)
