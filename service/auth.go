package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kevinaaaquil/bookreviews/models"
	"github.com/kevinaaaquil/bookreviews/store"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is how long a session token stays valid when no TTL is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,looseemail"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is what register and login hand back: the user and a fresh token.
type Session struct {
	User  *models.User
	Token string
}

type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// AuthService is the credential service: password hashing and stateless session
// tokens. A token stays valid until it expires or its user is removed.
type AuthService struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewAuthService builds the credential service. A zero ttl means DefaultTokenTTL
// and a zero cost means bcrypt.DefaultCost.
func NewAuthService(users UserStore, secret string, ttl time.Duration, cost int) (*AuthService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	return &AuthService{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   cost,
		now:    time.Now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := checkInput(in); err != nil {
		return nil, err
	}
	existing, err := s.users.UserByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, newError(ErrConflict, "user already exists with this email")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, invalid("password cannot exceed 72 bytes")
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &models.User{
		Name:      in.Name,
		Email:     in.Email,
		Password:  string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.users.CreateUser(ctx, user)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent registration of the same email.
		logrus.WithField("email", in.Email).Warn("registration rejected by unique email index")
		return nil, newError(ErrConflict, "user already exists with this email")
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	return s.session(user)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := checkInput(in); err != nil {
		return nil, err
	}
	user, err := s.users.UserByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)) != nil {
		return nil, newError(ErrUnauthenticated, "invalid email or password")
	}
	return s.session(user)
}

func (s *AuthService) session(user *models.User) (*Session, error) {
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}

// IssueToken signs an HS256 token carrying the user id.
func (s *AuthService) IssueToken(userID primitive.ObjectID) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken resolves a token to the id of an existing user.
func (s *AuthService) VerifyToken(ctx context.Context, raw string) (primitive.ObjectID, error) {
	if raw == "" {
		return primitive.NilObjectID, newError(ErrUnauthenticated, "not authorized, no token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.ExpiresAt == nil {
		return primitive.NilObjectID, newError(ErrUnauthenticated, "not authorized, token failed")
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return primitive.NilObjectID, newError(ErrUnauthenticated, "not authorized, token failed")
	}
	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("lookup token user: %w", err)
	}
	if user == nil {
		return primitive.NilObjectID, newError(ErrUnauthenticated, "not authorized, user not found")
	}
	return id, nil
}

// Me returns the user behind an authenticated request.
func (s *AuthService) Me(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, notFound("user")
	}
	return user, nil
}
