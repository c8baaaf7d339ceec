package wallet

import (
	"errors"
	"fmt"

	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"gorm.io/gorm"
)

// ErrInsufficientBalance 表示扣费因余额不足而被拒绝。
// 调用方据此执行经济回滚（关闭生效模式），而不是让整个请求失败。
var ErrInsufficientBalance = errors.New("余额不足")

// getOrCreateWallet 在事务内按需创建钱包（惰性创建语义）。
func getOrCreateWallet(tx *gorm.DB, uid string) (*Wallet, error) {
	var w Wallet
	err := tx.Where("user_uuid = ?", uid).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = Wallet{UserUUID: uid, Balance: 0}
		if err := tx.Create(&w).Error; err != nil {
			return nil, fmt.Errorf("无法创建钱包 %s: %w", uid, err)
		}
		return &w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("无法读取钱包 %s: %w", uid, err)
	}
	return &w, nil
}

// reasonExists 检查一条reason是否已经入账（幂等护栏）。
func reasonExists(tx *gorm.DB, reason string) (bool, error) {
	var count int64
	if err := tx.Model(&WalletTransaction{}).Where("reason = ?", reason).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Balance 返回用户当前余额，钱包不存在时视为0。
func Balance(uid string) (int, error) {
	var w Wallet
	err := database.DB.Where("user_uuid = ?", uid).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("无法读取钱包 %s: %w", uid, err)
	}
	return w.Balance, nil
}

// Debit 在一个ACID事务内扣除金币并追加流水。
// 同一reason的重复调用是无操作；余额不足返回ErrInsufficientBalance。
func Debit(uid string, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("非法的扣费金额: %d", amount)
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		applied, err := reasonExists(tx, reason)
		if err != nil {
			return err
		}
		if applied {
			return nil // 已扣过费，幂等返回
		}

		w, err := getOrCreateWallet(tx, uid)
		if err != nil {
			return err
		}
		if w.Balance < amount {
			return ErrInsufficientBalance
		}

		// 条件更新保证余额非负的不变式在并发下也成立
		res := tx.Model(&Wallet{}).
			Where("user_uuid = ? AND balance >= ?", uid, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		record := WalletTransaction{
			UserUUID: uid,
			Amount:   -amount,
			Kind:     KindSpend,
			Reason:   reason,
		}
		return tx.Create(&record).Error
	})
}

// Credit 在一个ACID事务内入账金币并追加流水。
// 同一reason的重复调用是无操作，用于防止支付回调或奖励重试造成的重复入账。
func Credit(uid string, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("非法的入账金额: %d", amount)
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		applied, err := reasonExists(tx, reason)
		if err != nil {
			return err
		}
		if applied {
			return nil // 已入过账，幂等返回
		}

		if _, err := getOrCreateWallet(tx, uid); err != nil {
			return err
		}

		if err := tx.Model(&Wallet{}).
			Where("user_uuid = ?", uid).
			Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}

		record := WalletTransaction{
			UserUUID: uid,
			Amount:   amount,
			Kind:     KindEarn,
			Reason:   reason,
		}
		return tx.Create(&record).Error
	})
}

// Transactions 返回用户最近的流水记录，按时间倒序。
func Transactions(uid string, limit int) ([]WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var records []WalletTransaction
	err := database.DB.Where("user_uuid = ?", uid).
		Order("id desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取流水 %s: %w", uid, err)
	}
	return records, nil
}
