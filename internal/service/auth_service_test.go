package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa-ayuda/helpdesk-service/internal/config"
	"github.com/mesa-ayuda/helpdesk-service/internal/repository"
)

type fakeResetRepo struct {
	mu     sync.Mutex
	tokens map[string]repository.PasswordResetToken
	nextID int
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{tokens: make(map[string]repository.PasswordResetToken)}
}

func (r *fakeResetRepo) Create(_ context.Context, token *repository.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	token.ID = fmt.Sprintf("reset-%d", r.nextID)
	token.CreatedAt = time.Now()
	r.tokens[token.ID] = *token
	return nil
}

func (r *fakeResetRepo) GetByToken(_ context.Context, tokenStr string) (*repository.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.Token == tokenStr {
			copied := token
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeResetRepo) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok || token.UsedAt != nil {
		return pgx.ErrNoRows
	}
	now := time.Now()
	token.UsedAt = &now
	r.tokens[id] = token
	return nil
}

func newAuthFixture() (*AuthService, *fakeUserRepo, *fakeResetRepo) {
	users := newFakeUserRepo()
	resets := newFakeResetRepo()
	cfg := config.Config{
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret",
			AccessTokenTTLMinutes:   60,
			PasswordResetTTLMinutes: 30,
			// Low cost keeps the hashing fast in tests.
			BcryptCost: 4,
		},
	}
	svc := NewAuthService(cfg, AuthDependencies{UserRepo: users, PasswordResetRepo: resets})
	return svc, users, resets
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newAuthFixture()
	ctx := context.Background()

	user, token, expiresAt, err := svc.Register(ctx, "Ana Torres", "ana@example.com", "contraseña123")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.NotEqual(t, "contraseña123", user.PasswordHash)

	// Duplicate email is rejected.
	_, _, _, err = svc.Register(ctx, "Otra Ana", "ana@example.com", "otracontraseña")
	requireDomainCode(t, err, "CONFLICT")

	loggedIn, token, _, err := svc.Login(ctx, "ana@example.com", "contraseña123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEmpty(t, token)

	_, _, _, err = svc.Login(ctx, "ana@example.com", "incorrecta")
	requireDomainCode(t, err, "UNAUTHORIZED")

	_, _, _, err = svc.Login(ctx, "nadie@example.com", "loquesea")
	requireDomainCode(t, err, "UNAUTHORIZED")
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _, _ := newAuthFixture()
	ctx := context.Background()

	_, _, _, err := svc.Register(ctx, "Ana Torres", "ana@example.com", "contraseña123")
	require.NoError(t, err)

	_, err = svc.RequestPasswordReset(ctx, "nadie@example.com")
	requireDomainCode(t, err, "NOT_FOUND")

	token, err := svc.RequestPasswordReset(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.True(t, token.ExpiresAt.After(time.Now()))

	require.NoError(t, svc.ConfirmPasswordReset(ctx, token.Token, "nuevacontraseña"))

	// The token is single use.
	err = svc.ConfirmPasswordReset(ctx, token.Token, "otravez")
	requireDomainCode(t, err, "VALIDATION_FAILED")

	_, _, _, err = svc.Login(ctx, "ana@example.com", "contraseña123")
	requireDomainCode(t, err, "UNAUTHORIZED")
	_, _, _, err = svc.Login(ctx, "ana@example.com", "nuevacontraseña")
	require.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newAuthFixture()
	ctx := context.Background()

	user, _, _, err := svc.Register(ctx, "Ana Torres", "ana@example.com", "contraseña123")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "incorrecta", "nuevacontraseña")
	requireDomainCode(t, err, "UNAUTHORIZED")

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "contraseña123", "nuevacontraseña"))
	_, _, _, err = svc.Login(ctx, "ana@example.com", "nuevacontraseña")
	require.NoError(t, err)
}
