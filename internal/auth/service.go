package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-pasar/internal/common"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	defaultIssuer     = "backend-pasar"
	defaultAudience   = "pasar-frontend"
	refreshTokenBytes = 48
	minPasswordLength = 8
)

// Service handles credential verification and token issuance.
type Service struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Store           Store
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User is the client-safe view of an account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResult bundles the token material issued after login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// NewService constructs a Service. The signing algorithm is fixed to HS256;
// tokens whose header claims anything else are rejected before parsing.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	s := &Service{
		store:      cfg.Store,
		secret:     []byte(secret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		issuer:     strings.TrimSpace(cfg.Issuer),
		audience:   strings.TrimSpace(cfg.Audience),
		clockSkew:  cfg.ClockSkew,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = defaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = defaultRefreshTTL
	}
	if s.issuer == "" {
		s.issuer = defaultIssuer
	}
	if s.audience == "" {
		s.audience = defaultAudience
	}
	return s, nil
}

// WithNow lets tests override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new user. Emails are stored lowercased so the unique
// index treats User@x and user@x as the same account.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if msg := registrationProblem(name, email, password); msg != "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", msg, http.StatusBadRequest, nil)
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.store.CreateUser(ctx, name, email, hash)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return toUser(created), nil
}

func registrationProblem(name, email, password string) string {
	switch {
	case name == "":
		return "name is required"
	case email == "":
		return "email is required"
	case len(password) < minPasswordLength:
		return "password must be at least 8 characters"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Login verifies credentials and issues a fresh token pair. All failure
// modes collapse into one INVALID_CREDENTIALS answer so the endpoint does
// not reveal whether the email exists.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, invalidCredentials(nil)
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, invalidCredentials(err)
	}
	match, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil || !match {
		return LoginResult{}, invalidCredentials(err)
	}
	return s.issueTokens(ctx, u, userAgent, ip)
}

func (s *Service) issueTokens(ctx context.Context, u UserRecord, userAgent, ip string) (LoginResult, error) {
	accessToken, accessExpiry, err := s.signAccessToken(common.UUIDString(u.ID))
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExpiry, err := s.createSession(ctx, u.ID, userAgent, ip)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	return LoginResult{
		User:          toUser(u),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Refresh rotates a refresh token: the presented token stops working the
// moment the store accepts its replacement.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	presented := strings.TrimSpace(refreshToken)
	if presented == "" {
		return LoginResult{}, unauthorized(nil)
	}
	hashed := hashRefreshToken(presented)
	sess, err := s.store.GetSessionByToken(ctx, hashed)
	if err != nil {
		return LoginResult{}, unauthorized(err)
	}
	if !sess.ExpiresAt.Valid || s.now().After(sess.ExpiresAt.Time) {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return LoginResult{}, unauthorized(nil)
	}
	u, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return LoginResult{}, unauthorized(err)
	}

	accessToken, accessExpiry, err := s.signAccessToken(common.UUIDString(u.ID))
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	newToken, hashedNew, refreshExpiry, err := s.newRefreshToken()
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.store.RotateSessionToken(ctx, sess.ID, hashedNew, pgTimestamp(refreshExpiry)); err != nil {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return LoginResult{}, fmt.Errorf("rotate session token: %w", err)
	}
	return LoginResult{
		User:          toUser(u),
		AccessToken:   accessToken,
		RefreshToken:  newToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the refresh token. Revoking an unknown token is not an
// error; the session is gone either way.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.store.DeleteSessionByToken(ctx, hashRefreshToken(token))
}

// Me fetches the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	id, err := common.ToUUID(strings.TrimSpace(userID))
	if err != nil {
		return User{}, unauthorized(err)
	}
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return User{}, unauthorized(err)
	}
	return toUser(u), nil
}

// ParseAccessToken validates an access token and returns the subject. The
// JWS header is inspected first and must name exactly the pinned algorithm.
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized(nil)
	}
	if err := s.checkAlgorithm(trimmed); err != nil {
		return "", unauthorized(err)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", unauthorized(err)
	}
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	}
	if s.clockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(s.clockSkew))
	}
	if err := jwt.Validate(parsed, opts...); err != nil {
		return "", unauthorized(err)
	}
	return parsed.Subject(), nil
}

func (s *Service) checkAlgorithm(token string) error {
	msg, err := jws.ParseString(token)
	if err != nil {
		return err
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return errors.New("auth: token carries no signature")
	}
	for _, sig := range sigs {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return errors.New("auth: token missing protected headers")
		}
		if alg := headers.Algorithm(); alg != s.signer {
			return fmt.Errorf("auth: unexpected token algorithm %q", alg)
		}
	}
	return nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) createSession(ctx context.Context, userID pgtype.UUID, userAgent, ip string) (string, time.Time, error) {
	token, hashed, expiresAt, err := s.newRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	_, err = s.store.CreateSession(ctx, SessionRecord{
		UserID:       userID,
		RefreshToken: hashed,
		UserAgent:    pgText(userAgent),
		IP:           pgText(ip),
		ExpiresAt:    pgTimestamp(expiresAt),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) newRefreshToken() (string, string, time.Time, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, hashRefreshToken(token), s.now().Add(s.refreshTTL), nil
}

// Only the hash of a refresh token ever reaches the database.
func hashRefreshToken(token string) string {
	return common.Sha256Hex([]byte(token))
}

func invalidCredentials(err error) error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, err)
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, err)
}

func toUser(u UserRecord) User {
	out := User{
		ID:    common.UUIDString(u.ID),
		Name:  u.Name,
		Email: u.Email,
	}
	if u.CreatedAt.Valid {
		out.CreatedAt = u.CreatedAt.Time
	}
	return out
}

func pgText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func pgTimestamp(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
