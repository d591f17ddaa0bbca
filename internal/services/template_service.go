package services

import (
	"context"
	"strings"

	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

const MaxTemplateNameLength = 255

type TemplateService struct {
	templateRepo *repository.TemplateRepository
}

func NewTemplateService(templateRepo *repository.TemplateRepository) *TemplateService {
	return &TemplateService{templateRepo: templateRepo}
}

type CreateTemplateInput struct {
	Name     string
	Content  string
	Category *string
	IsPublic bool
}

func (s *TemplateService) Create(
	ctx context.Context,
	ownerID int64,
	input CreateTemplateInput,
) (*models.Template, error) {
	name := strings.TrimSpace(input.Name)
	content := strings.TrimSpace(input.Content)
	if name == "" || content == "" {
		return nil, ErrInvalidInput
	}
	if len(name) > MaxTemplateNameLength || len(content) > MaxMessageLength {
		return nil, ErrInvalidInput
	}

	taken, err := s.templateRepo.ExistsByOwnerAndName(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrTemplateNameTaken
	}

	return s.templateRepo.Create(ctx, repository.CreateTemplateInput{
		OwnerID:  ownerID,
		Name:     name,
		Content:  content,
		Category: input.Category,
		IsPublic: input.IsPublic,
	})
}

// List returns the requester's templates plus everyone's public ones.
func (s *TemplateService) List(ctx context.Context, requesterID int64) ([]models.Template, error) {
	return s.templateRepo.ListVisible(ctx, requesterID)
}

func (s *TemplateService) Delete(ctx context.Context, requesterID int64, templateID int64) error {
	template, err := s.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return err
	}
	if template.OwnerID != requesterID {
		return ErrForbidden
	}

	return s.templateRepo.Delete(ctx, templateID)
}
