// Package auth resolves the caller's identity from a session or a bearer
// token issued by the external identity provider.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrUnauthenticated = apierrors.NewDomainError(apierrors.KindUnauthenticated, apierrors.ErrCodeUnauthorized, "Authentication required")
	ErrDeactivated     = apierrors.NewDomainError(apierrors.KindDeactivated, apierrors.ErrCodeDeactivated, "Account is deactivated")
)

// Identity is what the rest of the service knows about the caller.
type Identity struct {
	UserID   uint64
	Role     models.UserRole
	FamilyID *uint64
}

// IsParent reports whether the caller has the PARENT role.
func (i Identity) IsParent() bool {
	return i.Role == models.RoleParent
}

// Claims are the fields read from a provider token. The subject is the
// provider's user id.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses token and validates its signature, expiry and subject.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Sign issues a token for subject. Used by tooling and tests standing in for
// the identity provider.
func (v *TokenVerifier) Sign(subject, name string, role models.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Authenticator turns a session user id or provider token into an Identity.
type Authenticator struct {
	users    repository.UserRepository
	verifier *TokenVerifier
	log      logrus.FieldLogger
}

func NewAuthenticator(users repository.UserRepository, verifier *TokenVerifier, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{users: users, verifier: verifier, log: log}
}

// FromUserID resolves an identity for a user id stored in the session.
func (a *Authenticator) FromUserID(userID uint64) (*Identity, error) {
	user, err := a.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return identityOf(user)
}

// FromToken verifies a provider token. The first valid token for an unknown
// subject provisions the user with the role and name it carries; later
// tokens refresh the display name.
func (a *Authenticator) FromToken(token string) (*Identity, error) {
	claims, err := a.verifier.Verify(token)
	if err != nil {
		a.log.WithError(err).Debug("token rejected")
		return nil, ErrUnauthenticated
	}

	user, err := a.users.FindByLineUserID(claims.Subject)
	switch {
	case err == nil:
		name := strings.TrimSpace(claims.Name)
		if name != "" && name != user.DisplayName {
			if err := a.users.UpdateProfile(user.ID, name); err != nil {
				return nil, fmt.Errorf("refresh profile: %w", err)
			}
			user.DisplayName = name
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		user, err = a.provision(claims)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("load user: %w", err)
	}

	return identityOf(user)
}

func (a *Authenticator) provision(claims *Claims) (*models.User, error) {
	role := models.UserRole(strings.ToUpper(claims.Role))
	if !role.Valid() {
		return nil, ErrUnauthenticated
	}
	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = claims.Subject
	}

	user := &models.User{
		LineUserID:  claims.Subject,
		DisplayName: name,
		Role:        role,
		IsActive:    true,
	}
	if err := a.users.Create(user); err != nil {
		// Lost a race with a concurrent first login for the same subject.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return a.users.FindByLineUserID(claims.Subject)
		}
		return nil, fmt.Errorf("provision user: %w", err)
	}

	a.log.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Info("user provisioned")
	return user, nil
}

func identityOf(user *models.User) (*Identity, error) {
	if !user.IsActive {
		return nil, ErrDeactivated
	}
	return &Identity{UserID: user.ID, Role: user.Role, FamilyID: user.FamilyID}, nil
}
