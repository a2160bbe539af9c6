package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pdfsuite/gateway/internal/config"
	"github.com/pdfsuite/gateway/internal/database"
	"gorm.io/gorm"
)

// Identity is the result of resolving a request's credentials. For anonymous
// traffic UserID and Email are empty and Tier is TierAnonymous.
type Identity struct {
	UserID string
	Email  string
	Tier   Tier
	Active bool
}

var anonymous = Identity{Tier: TierAnonymous, Active: true}

// Resolve maps an auth token to an identity. A missing, malformed, or
// expired token resolves to anonymous rather than failing the request.
// The caller is responsible for rejecting inactive subjects.
func Resolve(token string) (Identity, error) {
	if token == "" {
		return anonymous, nil
	}

	userID, ok := verifyToken(token)
	if !ok {
		return anonymous, nil
	}

	var user database.User
	err := database.DB.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return anonymous, nil
	}
	if err != nil {
		return anonymous, fmt.Errorf("look up user %s: %w", userID, err)
	}

	return Identity{
		UserID: user.ID,
		Email:  user.Email,
		Tier:   EffectiveTier(&user),
		Active: user.Active,
	}, nil
}

// EffectiveTier computes a user's tier at read time. A pro plan whose expiry
// has passed degrades to free without any write.
func EffectiveTier(user *database.User) Tier {
	if user.Plan != string(TierPro) {
		return TierFree
	}
	if user.ProExpiresAt != nil && user.ProExpiresAt.Before(time.Now()) {
		return TierFree
	}
	return TierPro
}

func verifyToken(tokenString string) (string, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
