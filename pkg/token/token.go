package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// secretKey 存储与外部认证服务共享的32字节HMAC密钥。
var secretKey []byte

// IdentityPayload 定义了认证令牌中被签名的数据结构。
// 外部认证服务在用户登录成功后签发它，本服务只负责验签。
type IdentityPayload struct {
	UserID    string `json:"u"`
	Name      string `json:"n,omitempty"`
	AvatarURL string `json:"a,omitempty"`
}

// InitializeKey 设置HMAC密钥。
// secretB64 为空时生成一个随机密钥（此时外部签发的令牌将全部失效，仅适用于本地开发）。
func InitializeKey(secretB64 string) {
	if secretB64 != "" {
		key, err := base64.StdEncoding.DecodeString(secretB64)
		if err != nil || len(key) < 32 {
			panic("无效的认证密钥配置: 需要Base64编码的32字节密钥")
		}
		secretKey = key
		fmt.Println("已加载共享HMAC密钥。")
		return
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("无法生成安全的密钥: " + err.Error())
	}
	secretKey = key
	fmt.Println("警告: 未配置共享密钥，已生成临时HMAC密钥（仅限开发模式）。")
}

// sign 计算payload字节的HMAC-SHA256签名。
func sign(payloadBytes []byte) []byte {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write(payloadBytes)
	return mac.Sum(nil)
}

// GenerateIdentityToken 为一个给定的IdentityPayload生成完整令牌。
// 格式为 base64url(payload) + "." + base64url(signature)。
func GenerateIdentityToken(payload IdentityPayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", errors.New("无法序列化Token payload")
	}

	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	encodedSignature := base64.RawURLEncoding.EncodeToString(sign(payloadBytes))
	return encodedPayload + "." + encodedSignature, nil
}

// ParseIdentityToken 验证令牌签名并解出其中的身份信息。
func ParseIdentityToken(tokenStr string) (*IdentityPayload, error) {
	parts := strings.SplitN(tokenStr, ".", 2)
	if len(parts) != 2 {
		return nil, errors.New("令牌格式错误")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.New("令牌payload解码失败")
	}
	actualSignature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.New("令牌签名解码失败")
	}

	// 使用 hmac.Equal 进行安全的、时间恒定的比较，防止时序攻击
	if !hmac.Equal(sign(payloadBytes), actualSignature) {
		return nil, errors.New("令牌签名不匹配")
	}

	var payload IdentityPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, errors.New("令牌payload解析失败")
	}
	if payload.UserID == "" {
		return nil, errors.New("令牌缺少用户ID")
	}
	return &payload, nil
}
