package wallet

import (
	"testing"

	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 用内存SQLite替换全局DB，测试之间互不干扰。
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Wallet{}, &WalletTransaction{}))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
}

func countTransactions(t *testing.T, uid string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, database.DB.Model(&WalletTransaction{}).Where("user_uuid = ?", uid).Count(&n).Error)
	return n
}

func TestBalanceMissingWalletIsZero(t *testing.T) {
	setupTestDB(t)
	balance, err := Balance("nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestCreditCreatesWalletLazily(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, Credit("alice", 5, "payment:order-1"))

	balance, err := Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
	assert.EqualValues(t, 1, countTransactions(t, "alice"))
}

func TestCreditIsIdempotentPerReason(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, Credit("alice", 3, "win:room1:X:5"))
	require.NoError(t, Credit("alice", 3, "win:room1:X:5")) // 重试：无操作
	require.NoError(t, Credit("alice", 3, "win:room1:X:7")) // 新reason：正常入账

	balance, err := Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 6, balance)
	assert.EqualValues(t, 2, countTransactions(t, "alice"))
}

func TestDebitInsufficientBalance(t *testing.T) {
	setupTestDB(t)

	// 钱包不存在：惰性创建后余额为0，扣费被拒绝
	err := Debit("alice", 1, "fee:room1:X:0")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.EqualValues(t, 0, countTransactions(t, "alice"))

	require.NoError(t, Credit("alice", 2, "payment:order-1"))
	err = Debit("alice", 3, "fee:room1:X:0")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	balance, err := Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, balance, "失败的扣费不能减少余额")
}

func TestDebitIsIdempotentPerReason(t *testing.T) {
	setupTestDB(t)
	require.NoError(t, Credit("alice", 5, "payment:order-1"))

	require.NoError(t, Debit("alice", 1, "fee:room1:X:0"))
	require.NoError(t, Debit("alice", 1, "fee:room1:X:0")) // 同一局的重复扣费：无操作
	require.NoError(t, Debit("alice", 1, "fee:room1:X:1")) // 下一局：正常扣费

	balance, err := Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
	assert.EqualValues(t, 3, countTransactions(t, "alice"))
}

func TestDebitAmountValidation(t *testing.T) {
	setupTestDB(t)
	assert.Error(t, Debit("alice", 0, "fee:bad"))
	assert.Error(t, Debit("alice", -1, "fee:bad"))
	assert.Error(t, Credit("alice", 0, "win:bad"))
}

func TestTransactionsOrderAndLimit(t *testing.T) {
	setupTestDB(t)
	require.NoError(t, Credit("alice", 5, "payment:order-1"))
	require.NoError(t, Debit("alice", 1, "fee:room1:X:0"))
	require.NoError(t, Credit("alice", 2, "win:room1:X:3"))

	records, err := Transactions("alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// 按时间倒序：最近的在前
	assert.Equal(t, "win:room1:X:3", records[0].Reason)
	assert.Equal(t, 2, records[0].Amount)
	assert.Equal(t, KindEarn, records[0].Kind)
	assert.Equal(t, "fee:room1:X:0", records[1].Reason)
	assert.Equal(t, -1, records[1].Amount)
	assert.Equal(t, KindSpend, records[1].Kind)

	limited, err := Transactions("alice", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
