package wallet

import (
	"time"

	"gorm.io/gorm"
)

// Wallet 定义了每个用户的金币余额。
// 余额永不为负：每次扣费前都在同一个事务内校验。
type Wallet struct {
	// UserUUID 是钱包所属用户，与user.User的主键一致。
	UserUUID string `gorm:"primarykey;type:varchar(64)"`

	Balance int `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// 流水类型
const (
	KindEarn  = "earn"
	KindSpend = "spend"
)

// WalletTransaction 是只追加的流水记录。
// Reason 同时充当幂等键：同一reason的第二次入账/扣费是无操作。
type WalletTransaction struct {
	ID       uint   `gorm:"primarykey"`
	UserUUID string `gorm:"index;type:varchar(64);not null"`

	// Amount 带符号：earn为正，spend为负。
	Amount int    `gorm:"not null"`
	Kind   string `gorm:"type:varchar(8);not null"`
	Reason string `gorm:"uniqueIndex;type:varchar(128);not null"`

	CreatedAt time.Time
}
