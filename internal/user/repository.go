package user

import (
	"errors"
	"fmt"

	"github.com/SlpAus/tictac-duel-backend/internal/platform/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateProvisionalID 生成一个新的游客身份ID。
// 这个ID只存在于cookie中，不会被持久化。
func CreateProvisionalID() (string, error) {
	newUUID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("无法生成UUID v7: %w", err)
	}
	return newUUID.String(), nil
}

// IsValidUUID 检查一个字符串是否是合法的UUID格式。
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// IsUserActivated 检查一个认证用户是否已经落库。
// 它只查询Redis缓存，以获得最高性能。
func IsUserActivated(uid string) (bool, error) {
	if uid == "" {
		return false, nil
	}
	exists, err := database.RDB.SIsMember(database.Ctx, KnownUsersKey, uid).Result()
	if err != nil {
		return false, fmt.Errorf("检查Redis用户缓存时出错: %w", err)
	}
	return exists, nil
}

// ActivateUser 将一个认证身份正式持久化到数据库和缓存中。
// 如果缓存写入失败，数据库写入将被回滚。
func ActivateUser(ident Identity) error {
	activated, err := IsUserActivated(ident.ID)
	if err != nil {
		return err
	}
	if activated {
		// 已落库：只刷新展示资料快照
		return database.DB.Model(&User{}).Where("uuid = ?", ident.ID).
			Updates(map[string]interface{}{
				"display_name": ident.Name,
				"avatar_url":   ident.AvatarURL,
			}).Error
	}

	tx := database.DB.Begin()
	if tx.Error != nil {
		return fmt.Errorf("无法开始数据库事务: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	newUser := User{UUID: ident.ID, DisplayName: ident.Name, AvatarURL: ident.AvatarURL}
	if err := tx.Create(&newUser).Error; err != nil {
		tx.Rollback()
		// 记录已存在不是真正的错误
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("无法在SQLite中创建新用户: %w", err)
	}

	if err := database.RDB.SAdd(database.Ctx, KnownUsersKey, ident.ID).Err(); err != nil {
		tx.Rollback()
		return fmt.Errorf("无法将新用户 %s 添加到Redis缓存: %w", ident.ID, err)
	}

	return tx.Commit().Error
}
