package wallet

import (
	"fmt"

	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
)

// PrimeDB 负责自动迁移钱包与流水表结构
func PrimeDB() error {
	if err := database.DB.AutoMigrate(&Wallet{}, &WalletTransaction{}); err != nil {
		return fmt.Errorf("无法迁移wallet表: %w", err)
	}
	fmt.Println("Wallet数据库表迁移成功。")
	return nil
}
