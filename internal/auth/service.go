package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/solarafrica/solarplanner/internal/storage"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	MinPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user with this email already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidInput       = errors.New("invalid input")
)

// Store is the persistence the auth service needs.
type Store interface {
	storage.UserStore
	storage.RuleStore
}

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

// default role permissions, seeded on first start
var defaultPolicies = [][]string{
	{RoleAdmin, "*", "*"},
	{RoleUser, "plans", "read"},
	{RoleUser, "plans", "write"},
	{RoleUser, "calculator", "use"},
}

type Service struct {
	store    Store
	enforcer *casbin.Enforcer
	tokenTTL string
}

// NewService loads the RBAC policy from the store, seeding the default role
// permissions when they are missing. tokenTTL is parsed by
// ParseExpirationDuration each time a token is issued.
func NewService(ctx context.Context, s Store, tokenTTL string) (*Service, error) {
	if _, err := ParseExpirationDuration(tokenTTL); err != nil {
		return nil, fmt.Errorf("token ttl: %w", err)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m, NewAdapter(ctx, s))
	if err != nil {
		return nil, fmt.Errorf("load rbac policy: %w", err)
	}

	// AddPolicy is a no-op for rules that are already loaded.
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("seed rbac policy: %w", err)
		}
	}

	return &Service{store: s, enforcer: e, tokenTTL: tokenTTL}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*storage.User, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Register(ctx context.Context, email, password, name, phone string) (*storage.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := storage.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(phone),
		PasswordHash: string(hash),
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The role goes in first so a stored account always has one.
	if _, err := s.enforcer.AddGroupingPolicy(u.ID, u.Role); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if _, rbErr := s.enforcer.DeleteRolesForUser(u.ID); rbErr != nil {
			zerolog.Ctx(ctx).Warn().Err(rbErr).Str("user_id", u.ID).Msg("failed to drop role of unsaved user")
		}
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("user_id", u.ID).Msg("user registered")
	return &u, nil
}

// Login checks the credentials and issues a bearer token. The raw token is
// returned once; only its hash is stored.
func (s *Service) Login(ctx context.Context, email, password string) (*storage.User, string, *storage.Token, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Str("email", normalizeEmail(email)).Msg("login rejected")
		return nil, "", nil, err
	}
	expiresAt, err := ParseExpirationDuration(s.tokenTTL)
	if err != nil {
		return nil, "", nil, err
	}
	t, raw, err := s.CreateToken(ctx, u.ID, "login", u.Role, expiresAt)
	if err != nil {
		return nil, "", nil, err
	}
	return u, raw, t, nil
}

// AssignRole moves a user to role, replacing any role it held before.
func (s *Service) AssignRole(ctx context.Context, userID, role string) error {
	if role != RoleUser && role != RoleAdmin {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %s not found", userID)
	}
	if _, err := s.enforcer.DeleteRolesForUser(userID); err != nil {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(userID, role)
	return err
}

func (s *Service) CreateToken(ctx context.Context, userID, name, role string, expiresAt *time.Time) (*storage.Token, string, error) {
	rawToken := uuid.New().String() + uuid.New().String()

	t := storage.Token{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		TokenHash: hashToken(rawToken),
		Role:      role,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	if err := s.store.CreateToken(ctx, t); err != nil {
		return nil, "", err
	}

	return &t, rawToken, nil
}

func (s *Service) ValidateToken(ctx context.Context, rawToken string) (*storage.Token, error) {
	t, err := s.store.GetTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrInvalidToken
	}

	if t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	if err := s.store.UpdateTokenLastUsed(ctx, t.ID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("token_id", t.ID).Msg("failed to record token use")
	}

	return t, nil
}

// Logout revokes a single token.
func (s *Service) Logout(ctx context.Context, tokenID string) error {
	return s.store.DeleteToken(ctx, tokenID)
}

// LogoutAll revokes every token held by userID and returns how many were
// removed.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	tokens, err := s.store.ListTokens(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i, t := range tokens {
		if err := s.store.DeleteToken(ctx, t.ID); err != nil {
			return i, err
		}
	}
	zerolog.Ctx(ctx).Info().Int("tokens", len(tokens)).Msg("all sessions revoked")
	return len(tokens), nil
}

// UpdateProfile changes the name and phone of an account. Nil fields are
// left as they are.
func (s *Service) UpdateProfile(ctx context.Context, userID string, name, phone *string) (*storage.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		u.Name = n
	}
	if phone != nil {
		u.Phone = strings.TrimSpace(*phone)
	}
	u.UpdatedAt = time.Now()
	if err := s.store.UpdateUser(ctx, *u); err != nil {
		return nil, err
	}
	return u, nil
}

// CurrentUser loads the account a token belongs to.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*storage.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	return s.enforcer.Enforce(sub, obj, act)
}

// LoadPolicy reloads the RBAC policy from storage.
func (s *Service) LoadPolicy() error {
	return s.enforcer.LoadPolicy()
}
