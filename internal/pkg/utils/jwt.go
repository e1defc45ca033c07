package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken 生成上传接口使用的 JWT Token
// subject: 调用方标识，例如服务名或用户名
// secretKey: 用于签名的密钥，需与服务端 jwt.secret_key 一致
// issuer: Token 的签发者，服务端配置了 jwt.issuer 时需一致
// expiresIn: Token 的有效期
func GenerateToken(subject, secretKey, issuer string, expiresIn time.Duration) (string, error) {
	if secretKey == "" {
		return "", fmt.Errorf("secret key is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
