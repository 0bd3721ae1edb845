package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zanzhit/station_recorder/internal/domain/models"
)

var ErrInvalidToken = errors.New("invalid token")

func NewToken(user models.User, duration time.Duration, secret string) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["uid"] = user.Id
	claims["username"] = user.Username
	claims["full_name"] = user.FullName
	claims["exp"] = time.Now().Add(duration).Unix()
	claims["user_type"] = user.UserType

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies an HS256 token and returns the user it was issued for.
func ParseToken(tokenString, secret string) (models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}

		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return models.User{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.User{}, ErrInvalidToken
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return models.User{}, ErrInvalidToken
	}

	username, _ := claims["username"].(string)
	fullName, _ := claims["full_name"].(string)
	userType, _ := claims["user_type"].(string)

	return models.User{
		Id:       int(uid),
		Username: username,
		FullName: fullName,
		UserType: userType,
	}, nil
}
