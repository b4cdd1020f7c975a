package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"moneytracker/internal/core"
	"moneytracker/internal/docstore"
	"moneytracker/internal/log"
)

const MinPasswordLength = 8

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = fmt.Errorf("password shorter than %d characters", MinPasswordLength)
	ErrGoogleDisabled     = errors.New("google sign-in not configured")
)

// GoogleValidator checks a Google ID token for audience.
type GoogleValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

type Service struct {
	docs           docstore.Store
	tokens         *TokenIssuer
	googleClientID string
	validate       GoogleValidator
	logger         *log.Logger
	now            func() time.Time
}

type ServiceOption func(*Service)

// WithGoogle enables SignInWithGoogle for tokens issued to clientID.
func WithGoogle(clientID string) ServiceOption {
	return func(s *Service) { s.googleClientID = clientID }
}

// WithGoogleValidator replaces idtoken.Validate.
func WithGoogleValidator(v GoogleValidator) ServiceOption {
	return func(s *Service) { s.validate = v }
}

func WithServiceLogger(l *log.Logger) ServiceOption {
	return func(s *Service) { s.logger = l.WithComponent(log.ComponentAuth) }
}

func NewService(docs docstore.Store, tokens *TokenIssuer, opts ...ServiceOption) *Service {
	s := &Service{
		docs:     docs,
		tokens:   tokens,
		validate: idtoken.Validate,
		logger:   log.New(log.DefaultConfig()).WithComponent(log.ComponentAuth),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the issuer so the HTTP layer can verify bearer tokens.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) SignUp(ctx context.Context, email, password string) (core.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return core.User{}, "", err
	}
	if len(password) < MinPasswordLength {
		return core.User{}, "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	u := core.User{
		ID:           s.docs.NewID(),
		Login:        email,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if _, err := s.create(ctx, u); err != nil {
		return core.User{}, "", err
	}

	s.logger.InfoContext(ctx, "User signed up",
		log.FieldUserID, u.ID,
		log.FieldOperation, log.OpSignUp)
	return s.session(u)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (core.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return core.User{}, "", ErrInvalidCredentials
	}
	u, ok, err := s.findByLogin(ctx, s.docs, email)
	if err != nil {
		return core.User{}, "", err
	}
	if !ok || len(u.PasswordHash) == 0 {
		return core.User{}, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return core.User{}, "", ErrInvalidCredentials
	}

	s.logger.InfoContext(ctx, "User signed in",
		log.FieldUserID, u.ID,
		log.FieldOperation, log.OpSignIn)
	return s.session(u)
}

// SignInWithGoogle verifies idToken and signs in the matching user,
// creating one on first use.
func (s *Service) SignInWithGoogle(ctx context.Context, idToken string) (core.User, string, error) {
	if s.googleClientID == "" {
		return core.User{}, "", ErrGoogleDisabled
	}
	payload, err := s.validate(ctx, idToken, s.googleClientID)
	if err != nil {
		return core.User{}, "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if payload.Subject == "" {
		return core.User{}, "", ErrInvalidCredentials
	}

	email, _ := payload.Claims["email"].(string)
	u, err := s.create(ctx, core.User{
		ID:        s.docs.NewID(),
		Login:     "google:" + payload.Subject,
		Email:     strings.ToLower(email),
		CreatedAt: s.now(),
	})
	if errors.Is(err, ErrUserExists) {
		err = nil
	}
	if err != nil {
		return core.User{}, "", err
	}

	s.logger.InfoContext(ctx, "User signed in with Google",
		log.FieldUserID, u.ID,
		log.FieldOperation, log.OpSignIn)
	return s.session(u)
}

// create stores u unless its login is taken, in which case the existing
// user is returned with ErrUserExists.
func (s *Service) create(ctx context.Context, u core.User) (core.User, error) {
	var result core.User
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		existing, ok, err := s.findByLogin(ctx, tx, u.Login)
		if err != nil {
			return err
		}
		if ok {
			result = existing
			return ErrUserExists
		}
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		result = u
		return tx.Set(ctx, docstore.Document{
			Collection: core.CollectionUsers,
			ID:         u.ID,
			UserID:     u.ID,
			Key:        u.Login,
			Data:       data,
			CreatedAt:  u.CreatedAt,
			UpdatedAt:  u.CreatedAt,
		})
	})
	if errors.Is(err, ErrUserExists) {
		return result, ErrUserExists
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return result, nil
}

func (s *Service) findByLogin(ctx context.Context, r docstore.Reader, login string) (core.User, bool, error) {
	docs, err := r.Find(ctx, docstore.Query{Collection: core.CollectionUsers, Key: login})
	if err != nil {
		return core.User{}, false, fmt.Errorf("find user: %w", err)
	}
	if len(docs) == 0 {
		return core.User{}, false, nil
	}
	var u core.User
	if err := json.Unmarshal(docs[0].Data, &u); err != nil {
		return core.User{}, false, fmt.Errorf("decode user: %w", err)
	}
	return u, true, nil
}

func (s *Service) session(u core.User) (core.User, string, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return core.User{}, "", err
	}
	u.PasswordHash = nil
	return u, token, nil
}
