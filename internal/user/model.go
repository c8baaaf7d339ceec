package user

import (
	"time"

	"gorm.io/gorm"
)

// User 定义了认证用户在SQLite数据库中的持久化模型。
// 游客身份只存在于Cookie中，首次携带有效认证令牌访问时才会被落库。
type User struct {
	// UUID 是用户的主键，来自外部认证服务签发的令牌。
	UUID string `gorm:"primarykey;type:varchar(64)"`

	// DisplayName 与 AvatarURL 是最近一次请求携带的展示资料快照。
	DisplayName string
	AvatarURL   string

	// 部分gorm.Model，由GORM自动管理
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Identity 是每个请求解析出的调用方身份。
// Authenticated 为true表示ID来自验签通过的认证令牌，否则是游客Cookie。
type Identity struct {
	ID            string
	Authenticated bool
	Name          string
	AvatarURL     string
}
