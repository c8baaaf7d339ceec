package startup

import (
	"fmt"

	"github.com/SlpAus/tictac-duel-backend/internal/user"
	"github.com/SlpAus/tictac-duel-backend/internal/wallet"
)

// InitializeApplication 是应用首次启动时执行的总入口
func InitializeApplication() error {
	fmt.Println("开始应用首次初始化...")

	if err := user.PrimeCachedDB(); err != nil {
		return err
	}
	if err := wallet.PrimeDB(); err != nil {
		return err
	}

	fmt.Println("应用初始化完成！")
	return nil
}
