package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/internal/services"
)

func TestCreateInvitation(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "elder@example.com", "password123", models.UserRoleMember)
	family := createTestFamily(t, env.db, admin)
	invitationsPath := fmt.Sprintf("/api/families/%s/invitations", family.ID)

	t.Run("family admins can invite", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, invitationsPath, map[string]any{
			"email":        "nephew@example.com",
			"kinshipLabel": "nephew",
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusCreated)

		body := decodeJSONMap(t, resp)
		data := body["data"].(map[string]any)
		code, _ := data["code"].(string)
		if len(code) != 8 {
			t.Fatalf("expected an 8 character code, got %q", code)
		}
		if status, _ := data["status"].(string); status != string(models.InvitationPending) {
			t.Fatalf("expected pending status, got %q", status)
		}
	})

	t.Run("readers may not invite", func(t *testing.T) {
		reader, readerToken := createTestUser(t, env.db, "reader@example.com", "password123", models.UserRoleMember)
		addTestMembership(t, env.db, family.ID, reader.ID, models.FamilyRoleReader)

		resp := performJSONRequest(t, env.app, http.MethodPost, invitationsPath, map[string]any{
			"email": "blocked@example.com",
		}, authHeaders(readerToken))
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, decodeJSONMap(t, resp), services.ReasonInsufficientRole)
	})

	t.Run("lists the family's invitation history", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, invitationsPath, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 invitation, got %d", len(data))
		}
	})
}

func TestValidateInvitation(t *testing.T) {
	env := setupTestEnv(t)
	admin, _ := createTestUser(t, env.db, "elder@example.com", "password123", models.UserRoleMember)
	family := createTestFamily(t, env.db, admin)

	invitation, err := env.invitations.Create(context.Background(), family.ID, admin.ID, services.CreateInvitationInput{
		Email: "cousin@example.com",
	})
	if err != nil {
		t.Fatalf("failed creating invitation: %v", err)
	}

	validatePath := func(code, email string) string {
		return "/api/invitations/validate?code=" + url.QueryEscape(code) + "&email=" + url.QueryEscape(email)
	}

	t.Run("accepts a matching code and email", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, validatePath(invitation.Code, "Cousin@Example.com"), nil, nil)
		assertStatus(t, resp, http.StatusOK)
	})

	t.Run("rejects a mismatched email", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, validatePath(invitation.Code, "stranger@example.com"), nil, nil)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "invitation was issued to a different email")
	})

	t.Run("rejects an unknown code", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, validatePath("NOPE1234", "cousin@example.com"), nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("a stale pending code expires on contact", func(t *testing.T) {
		stale, err := env.invitations.Create(context.Background(), family.ID, admin.ID, services.CreateInvitationInput{
			Email: "late@example.com",
		})
		if err != nil {
			t.Fatalf("failed creating invitation: %v", err)
		}
		past := time.Now().Add(-time.Hour)
		if err := env.db.Model(&models.Invitation{}).Where("id = ?", stale.ID).Update("expires_at", past).Error; err != nil {
			t.Fatalf("failed backdating invitation: %v", err)
		}

		resp := performJSONRequest(t, env.app, http.MethodGet, validatePath(stale.Code, "late@example.com"), nil, nil)
		assertStatus(t, resp, http.StatusGone)

		var stored models.Invitation
		if err := env.db.First(&stored, "id = ?", stale.ID).Error; err != nil {
			t.Fatalf("failed reloading invitation: %v", err)
		}
		if stored.Status != models.InvitationExpired {
			t.Fatalf("expected expired status persisted, got %q", stored.Status)
		}
	})
}

func TestAcceptInvitation(t *testing.T) {
	env := setupTestEnv(t)
	admin, _ := createTestUser(t, env.db, "elder@example.com", "password123", models.UserRoleMember)
	family := createTestFamily(t, env.db, admin)

	invitation, err := env.invitations.Create(context.Background(), family.ID, admin.ID, services.CreateInvitationInput{
		Email: "invitee@example.com",
	})
	if err != nil {
		t.Fatalf("failed creating invitation: %v", err)
	}

	invitee, inviteeToken := createTestUser(t, env.db, "invitee@example.com", "password123", models.UserRoleMember)
	acceptPath := fmt.Sprintf("/api/invitations/%s/accept", invitation.ID)

	t.Run("a different account may not accept", func(t *testing.T) {
		_, strangerToken := createTestUser(t, env.db, "stranger@example.com", "password123", models.UserRoleMember)
		resp := performJSONRequest(t, env.app, http.MethodPost, acceptPath, nil, authHeaders(strangerToken))
		assertStatus(t, resp, http.StatusConflict)
	})

	t.Run("accepting resolves the invitation and grants reader membership", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, acceptPath, nil, authHeaders(inviteeToken))
		assertStatus(t, resp, http.StatusOK)

		var stored models.Invitation
		if err := env.db.First(&stored, "id = ?", invitation.ID).Error; err != nil {
			t.Fatalf("failed reloading invitation: %v", err)
		}
		if stored.Status != models.InvitationAccepted {
			t.Fatalf("expected accepted status, got %q", stored.Status)
		}
		if stored.ResolvedAt == nil {
			t.Fatal("expected resolvedAt to be set")
		}

		var membership models.Membership
		if err := env.db.First(&membership, "family_id = ? AND user_id = ?", family.ID, invitee.ID).Error; err != nil {
			t.Fatalf("expected membership after acceptance: %v", err)
		}
		if membership.Role != models.FamilyRoleReader {
			t.Fatalf("expected reader role, got %q", membership.Role)
		}
	})

	t.Run("accepting twice conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, acceptPath, nil, authHeaders(inviteeToken))
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "invitation already resolved")
	})
}

func TestRefuseInvitation(t *testing.T) {
	env := setupTestEnv(t)
	admin, _ := createTestUser(t, env.db, "elder@example.com", "password123", models.UserRoleMember)
	family := createTestFamily(t, env.db, admin)

	invitation, err := env.invitations.Create(context.Background(), family.ID, admin.ID, services.CreateInvitationInput{
		Email: "declined@example.com",
	})
	if err != nil {
		t.Fatalf("failed creating invitation: %v", err)
	}

	invitee, inviteeToken := createTestUser(t, env.db, "declined@example.com", "password123", models.UserRoleMember)
	if err := env.invitations.CreateProvisionalMembership(context.Background(), invitation, invitee.ID); err != nil {
		t.Fatalf("failed creating provisional membership: %v", err)
	}

	refusePath := fmt.Sprintf("/api/invitations/%s/refuse", invitation.ID)
	resp := performJSONRequest(t, env.app, http.MethodPost, refusePath, nil, authHeaders(inviteeToken))
	assertStatus(t, resp, http.StatusOK)

	var stored models.Invitation
	if err := env.db.First(&stored, "id = ?", invitation.ID).Error; err != nil {
		t.Fatalf("failed reloading invitation: %v", err)
	}
	if stored.Status != models.InvitationRefused {
		t.Fatalf("expected refused status, got %q", stored.Status)
	}

	var count int64
	if err := env.db.Model(&models.Membership{}).Where("family_id = ? AND user_id = ?", family.ID, invitee.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting memberships: %v", err)
	}
	if count != 0 {
		t.Fatal("refusal must remove the provisional membership")
	}
}
