package service

import (
	"context"
	"testing"

	"github.com/calmtunes/chat-service/internal/config"
	"github.com/calmtunes/chat-service/internal/domain"
	apperrors "github.com/calmtunes/chat-service/pkg/util"
)

func newAuthService(users *memUserRepo) *AuthService {
	cfg := config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: 4},
	}
	return NewAuthService(cfg, users)
}

func TestRegisterAndLogin(t *testing.T) {
	users := newMemUserRepo()
	svc := newAuthService(users)
	ctx := context.Background()

	user, token, _, err := svc.Register(ctx, "Avery", "avery@example.com", "hunter22", domain.RolePatient)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token == "" {
		t.Fatalf("no token issued")
	}
	if !user.Approved {
		t.Fatalf("patients should be approved on registration")
	}
	if user.PasswordHash == "hunter22" {
		t.Fatalf("password stored in the clear")
	}

	claims, err := svc.TokenManager().ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != domain.RolePatient {
		t.Fatalf("claims = %+v", claims)
	}

	if _, _, _, err := svc.Register(ctx, "Avery", "avery@example.com", "other", domain.RolePatient); !apperrors.IsCode(err, "CONFLICT") {
		t.Fatalf("duplicate email err = %v, want CONFLICT", err)
	}
	if _, _, _, err := svc.Register(ctx, "Root", "root2@example.com", "pw", domain.RoleAdmin); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("admin self-registration err = %v, want VALIDATION_FAILED", err)
	}

	if _, _, _, err := svc.Login(ctx, "avery@example.com", "hunter22"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, _, err := svc.Login(ctx, "avery@example.com", "wrong"); !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("bad password err = %v, want UNAUTHORIZED", err)
	}
	if _, _, _, err := svc.Login(ctx, "ghost@example.com", "pw"); !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("unknown email err = %v, want UNAUTHORIZED", err)
	}
}

func TestTherapistApprovalFlow(t *testing.T) {
	users := newMemUserRepo()
	svc := newAuthService(users)
	ctx := context.Background()

	therapist, _, _, err := svc.Register(ctx, "Dana", "dana@example.com", "pw123456", domain.RoleTherapist)
	if err != nil {
		t.Fatalf("register therapist: %v", err)
	}
	if therapist.Approved {
		t.Fatalf("therapists must start unapproved")
	}

	if err := svc.ApproveTherapist(ctx, therapist.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	stored, err := users.GetByID(ctx, therapist.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.Approved {
		t.Fatalf("approval not persisted")
	}

	// approving twice is a no-op
	if err := svc.ApproveTherapist(ctx, therapist.ID); err != nil {
		t.Fatalf("re-approve: %v", err)
	}

	if err := svc.ApproveTherapist(ctx, "ghost"); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("missing therapist err = %v, want NOT_FOUND", err)
	}

	patient, _, _, err := svc.Register(ctx, "Avery", "avery@example.com", "pw123456", domain.RolePatient)
	if err != nil {
		t.Fatalf("register patient: %v", err)
	}
	if err := svc.ApproveTherapist(ctx, patient.ID); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("approve patient err = %v, want VALIDATION_FAILED", err)
	}
}

func TestLoginSuspendedAccount(t *testing.T) {
	users := newMemUserRepo()
	svc := newAuthService(users)
	ctx := context.Background()

	user, _, _, err := svc.Register(ctx, "Avery", "avery@example.com", "pw123456", domain.RolePatient)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user.Status = domain.UserStatusSuspended
	if err := users.Update(ctx, user); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	if _, _, _, err := svc.Login(ctx, "avery@example.com", "pw123456"); !apperrors.IsCode(err, "UNAUTHORIZED") {
		t.Fatalf("suspended login err = %v, want UNAUTHORIZED", err)
	}
}
