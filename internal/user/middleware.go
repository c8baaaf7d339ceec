package user

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/SlpAus/tictac-duel-backend/pkg/token"
	"github.com/gin-gonic/gin"
)

const (
	CookieName   = "user-id"
	CookieMaxAge = 365 * 24 * 60 * 60
	IdentityKey  = "identity"
)

// EnsureUserCookieMiddleware 确保用户的浏览器中有一个格式正确的user-id cookie。
// 如果没有或格式不正确，它会生成一个新的游客ID并设置cookie。
func EnsureUserCookieMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := c.Cookie(CookieName)

		// 如果Cookie不存在，或存在但格式不正确，则分发一个新的
		if err != nil || !IsValidUUID(userID) {
			if err != http.ErrNoCookie {
				fmt.Printf("检测到无效的用户Cookie: %s, err: %v\n", userID, err)
			}
			provisionalID, err := CreateProvisionalID()
			if err != nil {
				fmt.Printf("创建游客ID时发生错误: %v\n", err)
			} else {
				c.SetCookie(CookieName, provisionalID, CookieMaxAge, "/", "", false, true)
				c.Request.AddCookie(&http.Cookie{Name: CookieName, Value: provisionalID})
			}
		}

		c.Next()
	}
}

// ResolveIdentityMiddleware 解析请求方身份并放入Gin上下文。
// 携带有效认证令牌 => 认证身份（首次出现时惰性落库）；否则 => cookie中的游客身份。
func ResolveIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := Identity{}

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			payload, err := token.ParseIdentityToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err == nil {
				ident = Identity{
					ID:            payload.UserID,
					Authenticated: true,
					Name:          payload.Name,
					AvatarURL:     payload.AvatarURL,
				}
				// 惰性激活：钱包与流水按身份按需创建，这里只保证用户表有记录
				if err := ActivateUser(ident); err != nil {
					fmt.Printf("激活用户 %s 失败: %v\n", ident.ID, err)
				}
			} else {
				fmt.Printf("认证令牌验签失败: %v\n", err)
			}
		}

		if ident.ID == "" {
			guestID, _ := c.Cookie(CookieName)
			ident = Identity{ID: guestID}
		}

		c.Set(IdentityKey, ident)
		c.Next()
	}
}

// GetIdentity 从Gin上下文中取出已解析的身份。
func GetIdentity(c *gin.Context) Identity {
	if v, exists := c.Get(IdentityKey); exists {
		if ident, ok := v.(Identity); ok {
			return ident
		}
	}
	return Identity{}
}
