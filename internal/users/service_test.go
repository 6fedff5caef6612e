package users

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell-backend/pkg/auth"
	"github.com/inkwell-labs/inkwell-backend/pkg/config"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

func errCode(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return ""
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "inkwell-test",
		ExpirationMinutes: 30,
	}
}

func testPasswordConfig() config.PasswordConfig {
	// Minimal parameters keep Argon2id fast enough for tests.
	return config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := "file:users_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  display_name TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		JWT:      testJWTConfig(),
		Password: testPasswordConfig(),
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{
		Email:       "  Writer@Example.COM ",
		Password:    "correct horse",
		DisplayName: "Writer",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.User.Email != "writer@example.com" {
		t.Fatalf("email = %q, want normalized lowercase", reg.User.Email)
	}
	if reg.AccessToken == "" {
		t.Fatal("expected access token on registration")
	}

	claims, err := auth.ParseAccessToken(testJWTConfig(), reg.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != reg.User.ID {
		t.Fatalf("token user = %s, want %s", claims.UserID, reg.User.ID)
	}

	authRes, err := svc.Authenticate(ctx, "writer@example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authRes.User.ID != reg.User.ID {
		t.Fatalf("authenticated user = %s, want %s", authRes.User.ID, reg.User.ID)
	}

	user, err := svc.GetByID(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if user.LastLoginAt == nil {
		t.Fatal("expected last_login_at to be set after login")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	input := RegisterInput{Email: "dup@example.com", Password: "long enough"}
	if _, err := svc.Register(ctx, input); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := svc.Register(ctx, input)
	if got := errCode(err); got != pkgerrors.CodeConflict {
		t.Fatalf("code = %v, want conflict", got)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "short@example.com",
		Password: "tiny",
	})
	if got := errCode(err); got != pkgerrors.CodeValidation {
		t.Fatalf("code = %v, want validation", got)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "auth@example.com", Password: "long enough"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Authenticate(ctx, "auth@example.com", "wrong password")
	if got := errCode(err); got != pkgerrors.CodeUnauthorized {
		t.Fatalf("code = %v, want unauthorized", got)
	}
}

func TestAuthenticateUnknownUserIsUnauthorized(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "ghost@example.com", "whatever!")
	if got := errCode(err); got != pkgerrors.CodeUnauthorized {
		t.Fatalf("code = %v, want unauthorized", got)
	}
}

func TestAuthenticateDisabledAccountIsForbidden(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Email: "off@example.com", Password: "long enough"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := db.Exec("UPDATE users SET is_active = 0 WHERE id = ?", reg.User.ID).Error; err != nil {
		t.Fatalf("disable user: %v", err)
	}

	_, err = svc.Authenticate(ctx, "off@example.com", "long enough")
	if got := errCode(err); got != pkgerrors.CodeForbidden {
		t.Fatalf("code = %v, want forbidden", got)
	}
}
