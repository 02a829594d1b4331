package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pollchat/internal/apperr"
	"pollchat/internal/session"
)

type Service struct {
	repo      *Repository
	sessions  session.Registry
	jwtSecret string
	jwtTTL    time.Duration
	log       *slog.Logger
	now       func() time.Time
	cost      int
	compare   func(hash, password []byte) error

	// dummyHash is compared against for unknown usernames so both login
	// failures cost one bcrypt comparison.
	dummyOnce sync.Once
	dummyHash []byte
}

type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, sessions session.Registry, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		sessions:  sessions,
		jwtSecret: secret,
		jwtTTL:    ttl,
		log:       logger.With("component", "user"),
		now:       time.Now,
		cost:      bcrypt.DefaultCost,
		compare:   bcrypt.CompareHashAndPassword,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, apperr.Validation("username")
	}
	if req.Password == "" {
		return nil, apperr.Validation("password")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, &User{Username: username, Password: string(hashedPwd)})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate returns the user matching both username and password. Every
// failure collapses into apperr.ErrLoginFailed except store errors.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, apperr.ErrLoginFailed
	}
	u, err := s.repo.FindUserByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		_ = s.compare(s.unknownUserHash(), []byte(password))
		return nil, apperr.ErrLoginFailed
	}
	if err != nil {
		return nil, err
	}
	if err := s.compare([]byte(u.Password), []byte(password)); err != nil {
		return nil, apperr.ErrLoginFailed
	}
	return u, nil
}

func (s *Service) unknownUserHash() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("pollchat-unknown-user"), s.cost)
		if err != nil {
			s.log.Error("generate dummy hash", "err", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	u, err := s.Authenticate(ctx, strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Add(ctx, session.Session{UserID: u.ID, Username: u.Username, Since: s.now().UTC()}); err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.jwtTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pollchat",
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.log.Info("user logged in", "user_id", u.ID)
	return &LoginResponse{
		Message:     "Login successful",
		AccessToken: ss,
		ExpiresAt:   expiresAt.UTC(),
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

// Logout drops the user's session. It fails only for unknown users; logging
// out twice is fine.
func (s *Service) Logout(ctx context.Context, id int) error {
	if id <= 0 {
		return apperr.Validation("id")
	}
	if _, err := s.repo.FindUser(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrUnknownUser
		}
		return err
	}
	removed, err := s.sessions.Remove(ctx, id)
	if err != nil {
		return err
	}
	s.log.Info("user logged out", "user_id", id, "had_session", removed)
	return nil
}

func (s *Service) FindUser(ctx context.Context, id int) (*User, error) {
	return s.repo.FindUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) ListSessions(ctx context.Context) ([]session.Session, error) {
	return s.sessions.List(ctx)
}

func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}

	return claims.ID, claims.Username, nil
}
