package services

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/heritago/backend/internal/database"
	"github.com/heritago/backend/internal/models"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating schema: %v", err)
	}

	return db
}

// recordingNotifier captures dispatched notifications for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func createUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) *models.User {
	t.Helper()

	user := &models.User{
		Email:        email,
		PasswordHash: "hash",
		DisplayName:  "Test User",
		Role:         role,
		Active:       true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", email, err)
	}
	return user
}

func createFamily(t *testing.T, db *gorm.DB, creator *models.User) *models.Family {
	t.Helper()

	family := &models.Family{
		Name:        "Test Family",
		CreatedByID: creator.ID,
	}
	if err := db.Create(family).Error; err != nil {
		t.Fatalf("failed creating family: %v", err)
	}

	membership := &models.Membership{
		FamilyID: family.ID,
		UserID:   creator.ID,
		Role:     models.FamilyRoleAdmin,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating admin membership: %v", err)
	}
	return family
}

func addMembership(t *testing.T, db *gorm.DB, familyID, userID uuid.UUID, role models.FamilyRole) *models.Membership {
	t.Helper()

	membership := &models.Membership{
		FamilyID: familyID,
		UserID:   userID,
		Role:     role,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating membership: %v", err)
	}
	return membership
}

func createDraftContent(t *testing.T, db *gorm.DB, familyID uuid.UUID, author *models.User) *models.Content {
	t.Helper()

	content := &models.Content{
		FamilyID: &familyID,
		AuthorID: author.ID,
		Title:    "The Fox and the Well",
		Body:     "Once upon a time...",
		Type:     models.ContentTypeTale,
		Status:   models.ContentDraft,
	}
	if err := db.Create(content).Error; err != nil {
		t.Fatalf("failed creating content: %v", err)
	}
	return content
}
