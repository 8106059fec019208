package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/heritago/backend/internal/database"
	"github.com/heritago/backend/internal/middleware"
	"github.com/heritago/backend/internal/models"
	"github.com/heritago/backend/internal/services"
	"github.com/heritago/backend/pkg/logger"
	"github.com/heritago/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app         *fiber.App
	db          *gorm.DB
	invitations *services.InvitationService
	notifier    *fakeNotifier
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []services.Notification
}

func (f *fakeNotifier) Notify(n services.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

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

	notifier := &fakeNotifier{}
	authzService := services.NewAuthzService(db)
	familyService := services.NewFamilyService(db, authzService, notifier)
	invitationService := services.NewInvitationService(db, authzService, notifier, true)
	publicationService := services.NewPublicationService(db, authzService, notifier)

	authHandler := NewAuthHandler(db, invitationService)
	familiesHandler := NewFamiliesHandler(db, familyService, authzService)
	invitationsHandler := NewInvitationsHandler(db, invitationService, authzService)
	contentsHandler := NewContentsHandler(db, authzService)
	publicationsHandler := NewPublicationsHandler(db, publicationService, authzService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	familyRoutes := api.Group("/families", authMiddleware.RequireAuth)
	familyRoutes.Post("/", familiesHandler.Create)
	familyRoutes.Get("/", familiesHandler.List)
	familyRoutes.Get("/:id", familiesHandler.Get)
	familyRoutes.Post("/:id/members", familiesHandler.AddMember)
	familyRoutes.Put("/:id/members/:memberId", familiesHandler.ChangeRole)
	familyRoutes.Post("/:id/invitations", invitationsHandler.Create)
	familyRoutes.Get("/:id/invitations", invitationsHandler.ListForFamily)
	familyRoutes.Get("/:id/contents", contentsHandler.ListForFamily)
	familyRoutes.Get("/:id/publication-requests", publicationsHandler.ListForFamily)

	api.Get("/invitations/validate", invitationsHandler.Validate)
	invitationRoutes := api.Group("/invitations", authMiddleware.RequireAuth)
	invitationRoutes.Post("/:id/accept", invitationsHandler.Accept)
	invitationRoutes.Post("/:id/refuse", invitationsHandler.Refuse)

	api.Get("/public/contents", contentsHandler.ListPublic)

	api.Get("/contents/:id", authMiddleware.OptionalAuth, contentsHandler.Get)
	contentRoutes := api.Group("/contents", authMiddleware.RequireAuth)
	contentRoutes.Post("/", contentsHandler.Create)
	contentRoutes.Post("/:id/publication-requests", publicationsHandler.Request)

	publicationRoutes := api.Group("/publication-requests", authMiddleware.RequireAuth, middleware.SuperadminOnly)
	publicationRoutes.Get("/", publicationsHandler.ListPending)
	publicationRoutes.Post("/:id/approve", publicationsHandler.Approve)
	publicationRoutes.Post("/:id/reject", publicationsHandler.Reject)

	return &testEnv{app: app, db: db, invitations: invitationService, notifier: notifier}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test User",
		Role:         role,
		Active:       true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestFamily(t *testing.T, db *gorm.DB, admin *models.User) *models.Family {
	t.Helper()

	family := &models.Family{Name: "Test Family"}
	if err := db.Create(family).Error; err != nil {
		t.Fatalf("failed creating test family: %v", err)
	}
	addTestMembership(t, db, family.ID, admin.ID, models.FamilyRoleAdmin)
	return family
}

func addTestMembership(t *testing.T, db *gorm.DB, familyID, userID uuid.UUID, role models.FamilyRole) *models.Membership {
	t.Helper()

	membership := &models.Membership{FamilyID: familyID, UserID: userID, Role: role}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating test membership: %v", err)
	}
	return membership
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
