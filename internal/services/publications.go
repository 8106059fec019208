package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/heritago/backend/internal/apperr"
	"github.com/heritago/backend/internal/models"
	"gorm.io/gorm"
)

type PublicationService struct {
	DB       *gorm.DB
	Authz    *AuthzService
	Notifier Notifier
}

func NewPublicationService(db *gorm.DB, authz *AuthzService, notifier Notifier) *PublicationService {
	return &PublicationService{DB: db, Authz: authz, Notifier: notifier}
}

// Request opens a PENDING publication request for a draft content item.
// Only a family admin of the content's family or a superadmin may raise one,
// and at most one pending request per content exists at a time (enforced by
// a partial unique index, surfaced as Conflict).
func (s *PublicationService) Request(ctx context.Context, contentID, requesterID uuid.UUID) (*models.PublicationRequest, error) {
	var content models.Content
	err := s.DB.WithContext(ctx).First(&content, "id = ?", contentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("content not found")
		}
		return nil, apperr.Internal("failed loading content", err)
	}

	if content.Status == models.ContentPublished {
		return nil, apperr.Conflict("content is already published")
	}
	if content.FamilyID == nil {
		return nil, apperr.Conflict("content does not belong to a family")
	}

	if err := s.Authz.Authorize(ctx, requesterID, *content.FamilyID, ActionRequestPublication); err != nil {
		return nil, err
	}

	request := &models.PublicationRequest{
		ContentID:   contentID,
		RequesterID: requesterID,
		Status:      models.PublicationPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(request).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, apperr.Conflict("a pending publication request already exists for this content")
		}
		return nil, apperr.Internal("failed creating publication request", err)
	}
	return request, nil
}

// Approve resolves a pending request positively. The request transition and
// the content publication are one transaction: no observable state has the
// request approved while the content is still a draft.
func (s *PublicationService) Approve(ctx context.Context, requestID, resolverID uuid.UUID) (*models.PublicationRequest, error) {
	request, err := s.loadForResolution(ctx, requestID, resolverID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PublicationRequest{}).
			Where("id = ? AND status = ?", request.ID, models.PublicationPending).
			Updates(map[string]interface{}{
				"status":      models.PublicationApproved,
				"resolver_id": resolverID,
				"resolved_at": now,
			})
		if result.Error != nil {
			return apperr.Internal("failed approving publication request", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.Conflict("publication request already processed")
		}

		return tx.Model(&models.Content{}).
			Where("id = ?", request.ContentID).
			Update("status", models.ContentPublished).Error
	})
	if err != nil {
		return nil, err
	}

	request.Status = models.PublicationApproved
	request.ResolverID = &resolverID
	request.ResolvedAt = &now
	s.notifyRequester(ctx, request)
	return request, nil
}

// Reject resolves a pending request negatively with a reviewer comment.
// The content stays a draft and remains eligible for a future request.
func (s *PublicationService) Reject(ctx context.Context, requestID, resolverID uuid.UUID, comment string) (*models.PublicationRequest, error) {
	request, err := s.loadForResolution(ctx, requestID, resolverID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := s.DB.WithContext(ctx).Model(&models.PublicationRequest{}).
		Where("id = ? AND status = ?", request.ID, models.PublicationPending).
		Updates(map[string]interface{}{
			"status":      models.PublicationRejected,
			"resolver_id": resolverID,
			"resolved_at": now,
			"comment":     comment,
		})
	if result.Error != nil {
		return nil, apperr.Internal("failed rejecting publication request", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.Conflict("publication request already processed")
	}

	request.Status = models.PublicationRejected
	request.ResolverID = &resolverID
	request.ResolvedAt = &now
	request.Comment = &comment
	s.notifyRequester(ctx, request)
	return request, nil
}

func (s *PublicationService) loadForResolution(ctx context.Context, requestID, resolverID uuid.UUID) (*models.PublicationRequest, error) {
	var resolver models.User
	err := s.DB.WithContext(ctx).First(&resolver, "id = ?", resolverID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed loading user", err)
	}
	if !resolver.IsSuperadmin() {
		return nil, apperr.Unauthorized(ReasonSuperadminOnly)
	}

	var request models.PublicationRequest
	err = s.DB.WithContext(ctx).First(&request, "id = ?", requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("publication request not found")
		}
		return nil, apperr.Internal("failed loading publication request", err)
	}

	if request.Status != models.PublicationPending {
		return nil, apperr.Conflict("publication request already processed")
	}
	return &request, nil
}

func (s *PublicationService) notifyRequester(ctx context.Context, request *models.PublicationRequest) {
	var requester models.User
	if err := s.DB.WithContext(ctx).First(&requester, "id = ?", request.RequesterID).Error; err != nil {
		return
	}
	var content models.Content
	if err := s.DB.WithContext(ctx).First(&content, "id = ?", request.ContentID).Error; err != nil {
		return
	}

	s.Notifier.Notify(Notification{
		RecipientEmail: requester.Email,
		Template:       TemplatePublicationResolved,
		Payload: map[string]interface{}{
			"contentTitle": content.Title,
			"status":       string(request.Status),
		},
	})
}
