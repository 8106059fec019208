package services

import (
	"context"
	"testing"

	"github.com/heritago/backend/internal/apperr"
	"github.com/heritago/backend/internal/models"
)

func TestFamilyService_Create(t *testing.T) {
	db := setupTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewFamilyService(db, NewAuthzService(db), notifier)

	creator := createUser(t, db, "founder@x.com", models.UserRoleMember)

	family, err := svc.Create(context.TODO(), creator.ID, "Benali", nil)
	if err != nil {
		t.Fatalf("failed creating family: %v", err)
	}

	var membership models.Membership
	if err := db.First(&membership, "family_id = ? AND user_id = ?", family.ID, creator.ID).Error; err != nil {
		t.Fatalf("expected creator membership: %v", err)
	}
	if membership.Role != models.FamilyRoleAdmin {
		t.Fatalf("expected creator to be admin, got %s", membership.Role)
	}
}

func TestFamilyService_AddMember(t *testing.T) {
	db := setupTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewFamilyService(db, NewAuthzService(db), notifier)

	admin := createUser(t, db, "admin@x.com", models.UserRoleMember)
	reader := createUser(t, db, "reader@x.com", models.UserRoleMember)
	family := createFamily(t, db, admin)
	addMembership(t, db, family.ID, reader.ID, models.FamilyRoleReader)

	t.Run("existing user joins without provisioning", func(t *testing.T) {
		existing := createUser(t, db, "aunt@x.com", models.UserRoleMember)
		kinship := "aunt"

		membership, err := svc.AddMember(context.TODO(), family.ID, admin.ID, AddMemberInput{
			Email:        "AUNT@x.com",
			Role:         models.FamilyRoleEditor,
			KinshipLabel: &kinship,
		})
		if err != nil {
			t.Fatalf("failed adding member: %v", err)
		}
		if membership.UserID != existing.ID {
			t.Fatalf("expected existing user reused, got %s", membership.UserID)
		}
		if len(notifier.all()) != 0 {
			t.Fatalf("no provisioning notification expected, got %+v", notifier.all())
		}
	})

	t.Run("missing user is provisioned with forced password reset", func(t *testing.T) {
		notifier.sent = nil

		membership, err := svc.AddMember(context.TODO(), family.ID, admin.ID, AddMemberInput{
			Email: "cousin@x.com",
			Role:  models.FamilyRoleReader,
		})
		if err != nil {
			t.Fatalf("failed adding member: %v", err)
		}

		var user models.User
		if err := db.First(&user, "id = ?", membership.UserID).Error; err != nil {
			t.Fatalf("expected provisioned user: %v", err)
		}
		if !user.PasswordResetRequired {
			t.Fatal("provisioned user must be flagged for password reset")
		}
		if user.Role != models.UserRoleMember {
			t.Fatalf("expected member global role, got %s", user.Role)
		}

		sent := notifier.all()
		if len(sent) != 1 || sent[0].Template != TemplateMemberProvisioned {
			t.Fatalf("expected one member_provisioned notification, got %+v", sent)
		}
		if _, ok := sent[0].Payload["temporaryPassword"].(string); !ok {
			t.Fatal("expected temporary password in notification payload")
		}
	})

	t.Run("duplicate membership is Conflict", func(t *testing.T) {
		_, err := svc.AddMember(context.TODO(), family.ID, admin.ID, AddMemberInput{
			Email: reader.Email,
			Role:  models.FamilyRoleReader,
		})
		if !apperr.IsKind(err, apperr.KindConflict) {
			t.Fatalf("expected Conflict, got %v", err)
		}
	})

	t.Run("non-admin may not add members", func(t *testing.T) {
		_, err := svc.AddMember(context.TODO(), family.ID, reader.ID, AddMemberInput{
			Email: "whoever@x.com",
			Role:  models.FamilyRoleReader,
		})
		if !apperr.IsKind(err, apperr.KindUnauthorized) {
			t.Fatalf("expected Unauthorized, got %v", err)
		}
	})
}

func TestFamilyService_ChangeRole(t *testing.T) {
	db := setupTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewFamilyService(db, NewAuthzService(db), notifier)

	admin := createUser(t, db, "admin@x.com", models.UserRoleMember)
	reader := createUser(t, db, "reader@x.com", models.UserRoleMember)
	family := createFamily(t, db, admin)
	readerMembership := addMembership(t, db, family.ID, reader.ID, models.FamilyRoleReader)

	var adminMembership models.Membership
	if err := db.First(&adminMembership, "family_id = ? AND user_id = ?", family.ID, admin.ID).Error; err != nil {
		t.Fatalf("failed loading admin membership: %v", err)
	}

	t.Run("admin promotes a reader to editor", func(t *testing.T) {
		updated, err := svc.ChangeRole(context.TODO(), family.ID, admin.ID, readerMembership.ID, models.FamilyRoleEditor)
		if err != nil {
			t.Fatalf("failed changing role: %v", err)
		}
		if updated.Role != models.FamilyRoleEditor {
			t.Fatalf("expected editor, got %s", updated.Role)
		}
	})

	t.Run("admin demoting self is Unauthorized", func(t *testing.T) {
		_, err := svc.ChangeRole(context.TODO(), family.ID, admin.ID, adminMembership.ID, models.FamilyRoleEditor)
		if !apperr.IsKind(err, apperr.KindUnauthorized) {
			t.Fatalf("expected Unauthorized, got %v", err)
		}
		if err.Error() != ReasonSelfDemotion {
			t.Fatalf("expected reason %q, got %q", ReasonSelfDemotion, err.Error())
		}

		var reloaded models.Membership
		if err := db.First(&reloaded, "id = ?", adminMembership.ID).Error; err != nil {
			t.Fatalf("failed reloading membership: %v", err)
		}
		if reloaded.Role != models.FamilyRoleAdmin {
			t.Fatalf("role must be unchanged, got %s", reloaded.Role)
		}
	})

	t.Run("non-admin may not change roles", func(t *testing.T) {
		_, err := svc.ChangeRole(context.TODO(), family.ID, reader.ID, readerMembership.ID, models.FamilyRoleAdmin)
		if !apperr.IsKind(err, apperr.KindUnauthorized) {
			t.Fatalf("expected Unauthorized, got %v", err)
		}
	})

	t.Run("membership from another family is NotFound", func(t *testing.T) {
		other := createUser(t, db, "other@x.com", models.UserRoleMember)
		otherFamily := createFamily(t, db, other)
		var otherMembership models.Membership
		if err := db.First(&otherMembership, "family_id = ?", otherFamily.ID).Error; err != nil {
			t.Fatalf("failed loading membership: %v", err)
		}

		_, err := svc.ChangeRole(context.TODO(), family.ID, admin.ID, otherMembership.ID, models.FamilyRoleEditor)
		if !apperr.IsKind(err, apperr.KindNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}
