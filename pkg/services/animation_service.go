package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/db"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const quotaExhaustedMessage = "You have reached your animation generation limit"

// AnimationStore is the part of the record store that animation requests use.
type AnimationStore interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	DecrementUserGenerations(ctx context.Context, id uuid.UUID) (*db.User, error)
	CreateAnimationWithTasks(ctx context.Context, animation *db.Animation) (*db.Animation, []db.GenerationTask, error)
	FindAnimationByID(ctx context.Context, id uuid.UUID) (*db.Animation, error)
	FindAnimationsByUserID(ctx context.Context, userID uuid.UUID) ([]db.Animation, error)
	FindTasksByAnimationID(ctx context.Context, animationID uuid.UUID) ([]db.GenerationTask, error)
	ResetAnimation(ctx context.Context, id uuid.UUID, prompt *string) (*db.Animation, error)
}

// Submitter starts a pipeline run without waiting for it.
// *pipeline.Orchestrator satisfies it.
type Submitter interface {
	Submit(animationID uuid.UUID, model db.AIModel)
}

type CreateAnimationInput struct {
	Prompt   string `json:"prompt" validate:"required,min=10"`
	Title    string `json:"title" validate:"omitempty,min=3,max=255"`
	AIModel  string `json:"aiModel" validate:"required,oneof=openai gemini groq"`
	Duration int    `json:"duration" validate:"required,min=5,max=60"`
}

type RegenerateInput struct {
	Prompt *string `json:"prompt" validate:"omitempty,min=10"`
}

type AnimationService struct {
	store    AnimationStore
	pipeline Submitter
	validate *validator.Validate
	now      func() time.Time
}

func NewAnimationService(store AnimationStore, pipeline Submitter) *AnimationService {
	return &AnimationService{
		store:    store,
		pipeline: pipeline,
		validate: NewValidator(),
		now:      time.Now,
	}
}

// Create records a new animation with its three pending tasks, spends one
// generation and starts the pipeline. The quota is checked before the input
// is looked at.
func (s *AnimationService) Create(ctx context.Context, userID uuid.UUID, in CreateAnimationInput) (*db.Animation, []db.GenerationTask, error) {
	if err := s.requireQuota(ctx, userID); err != nil {
		return nil, nil, err
	}

	in.Prompt = strings.TrimSpace(in.Prompt)
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return nil, nil, validationError(err)
	}
	if in.Title == "" {
		in.Title = fmt.Sprintf("Animation %d", s.now().UnixMilli())
	}

	animation, tasks, err := s.store.CreateAnimationWithTasks(ctx, &db.Animation{
		UserID:   userID,
		Prompt:   in.Prompt,
		Title:    in.Title,
		AIModel:  db.AIModel(in.AIModel),
		Duration: in.Duration,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create animation: %w", err)
	}
	if err := s.spend(ctx, userID); err != nil {
		return nil, nil, err
	}

	s.pipeline.Submit(animation.ID, animation.AIModel)
	log.WithFields(log.Fields{"animation_id": animation.ID, "user_id": userID}).Info("Animation created, pipeline submitted")
	return animation, tasks, nil
}

// Regenerate resets an owned animation and runs the pipeline again with the
// model it was created with. Previous script, code and video stay visible
// until the new run replaces them.
func (s *AnimationService) Regenerate(ctx context.Context, userID, animationID uuid.UUID, in RegenerateInput) (*db.Animation, error) {
	animation, err := s.owned(ctx, userID, animationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireQuota(ctx, userID); err != nil {
		return nil, err
	}

	in.Prompt = trimOptional(in.Prompt)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	reset, err := s.store.ResetAnimation(ctx, animationID, in.Prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, animationNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("reset animation: %w", err)
	}
	if err := s.spend(ctx, userID); err != nil {
		return nil, err
	}

	s.pipeline.Submit(animationID, animation.AIModel)
	log.WithFields(log.Fields{"animation_id": animationID, "user_id": userID}).Info("Animation reset, pipeline resubmitted")
	return reset, nil
}

// Get returns an owned animation together with its tasks in stage order.
func (s *AnimationService) Get(ctx context.Context, userID, animationID uuid.UUID) (*db.Animation, []db.GenerationTask, error) {
	animation, err := s.owned(ctx, userID, animationID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.store.FindTasksByAnimationID(ctx, animationID)
	if err != nil {
		return nil, nil, fmt.Errorf("find tasks: %w", err)
	}
	if tasks == nil {
		tasks = []db.GenerationTask{}
	}
	return animation, tasks, nil
}

// List returns the user's animations, newest first.
func (s *AnimationService) List(ctx context.Context, userID uuid.UUID) ([]db.Animation, error) {
	animations, err := s.store.FindAnimationsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list animations: %w", err)
	}
	if animations == nil {
		animations = []db.Animation{}
	}
	return animations, nil
}

func (s *AnimationService) owned(ctx context.Context, userID, animationID uuid.UUID) (*db.Animation, error) {
	animation, err := s.store.FindAnimationByID(ctx, animationID)
	if err != nil {
		return nil, fmt.Errorf("find animation: %w", err)
	}
	if animation == nil {
		return nil, animationNotFound()
	}
	if animation.UserID != userID {
		return nil, apperr.Wrap(apperr.ErrForbidden, "", "Forbidden", nil)
	}
	return animation, nil
}

// requireQuota is a read-then-act check; two concurrent requests from the
// same user can both pass it when one generation is left.
func (s *AnimationService) requireQuota(ctx context.Context, userID uuid.UUID) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return apperr.Wrap(apperr.ErrNotFound, "", "User account not found", nil)
	}
	if user.GenerationsRemaining <= 0 {
		return apperr.Wrap(apperr.ErrEntitlement, "", quotaExhaustedMessage, nil)
	}
	return nil
}

func (s *AnimationService) spend(ctx context.Context, userID uuid.UUID) error {
	user, err := s.store.DecrementUserGenerations(ctx, userID)
	if err != nil {
		return fmt.Errorf("decrement generations: %w", err)
	}
	if user != nil {
		log.Debugf("User '%s' has %d generations remaining.", userID.String(), user.GenerationsRemaining)
	}
	return nil
}

func animationNotFound() error {
	return apperr.Wrap(apperr.ErrNotFound, "", "Animation not found", nil)
}
