package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/iurnickita/artcares/internal/model"
)

var ErrInvalidToken = errors.New("token is not valid")

// Claims — утверждения с кодом и ролью пользователя
type Claims struct {
	jwt.RegisteredClaims
	UserCode string     `json:"user_code"`
	Role     model.Role `json:"role"`
}

type Issuer struct {
	secret []byte
	exp    time.Duration
}

func NewIssuer(secret string, exp time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), exp: exp}
}

// BuildJWTString создаёт токен и возвращает его в виде строки
func (i *Issuer) BuildJWTString(userCode string, role model.Role) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.exp)),
		},
		UserCode: userCode,
		Role:     role,
	})

	return token.SignedString(i.secret)
}

// GetClaims проверяет подпись и срок действия токена
func (i *Issuer) GetClaims(tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid || claims.UserCode == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
