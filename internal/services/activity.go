package services

import (
	"context"

	"github.com/older-wiser/apiserver/internal/store"
	"github.com/older-wiser/apiserver/types"
)

// ActivityRepository defines persistence operations for activities.
type ActivityRepository interface {
	List(ctx context.Context, filter store.ActivityFilter) ([]types.Activity, error)
	Get(ctx context.Context, id int64) (types.Activity, error)
	Create(ctx context.Context, activity types.Activity) (types.Activity, error)
	Update(ctx context.Context, activity types.Activity) (types.Activity, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// ActivityUpdate lists the mutable fields of an activity. Owner and
// provenance fields are deliberately absent; they cannot change after
// creation.
type ActivityUpdate struct {
	Title       *string
	Images      *[]string
	Duration    *string
	Category    *string
	Description *string
	Difficulty  *types.Difficulty
	Materials   *[]string
	Steps       *[]string
}

// ActivityService encapsulates catalog use-cases.
type ActivityService struct {
	repo   ActivityRepository
	events *EventPublisher
}

func NewActivityService(repo ActivityRepository, events *EventPublisher) *ActivityService {
	return &ActivityService{repo: repo, events: events}
}

func (s *ActivityService) List(ctx context.Context, filter store.ActivityFilter) ([]types.Activity, error) {
	return s.repo.List(ctx, filter)
}

func (s *ActivityService) Get(ctx context.Context, id int64) (types.Activity, error) {
	return s.repo.Get(ctx, id)
}

// CreateCurated persists an admin-maintained entry. Any owner fields on
// the input are discarded.
func (s *ActivityService) CreateCurated(ctx context.Context, activity types.Activity) (types.Activity, error) {
	activity.IsUserCreated = false
	activity.CreatedBy = 0
	activity.Email = ""
	return s.create(ctx, activity)
}

// CreateOwned persists a user submission. The owner is always the given
// principal; owner fields supplied by the client are discarded.
func (s *ActivityService) CreateOwned(ctx context.Context, activity types.Activity, ownerID int64, ownerEmail string) (types.Activity, error) {
	activity.IsUserCreated = true
	activity.CreatedBy = ownerID
	activity.Email = ownerEmail
	return s.create(ctx, activity)
}

func (s *ActivityService) create(ctx context.Context, activity types.Activity) (types.Activity, error) {
	if activity.Difficulty == "" {
		activity.Difficulty = types.DifficultyBeginner
	}
	if activity.Materials == nil {
		activity.Materials = []string{}
	}
	if activity.Steps == nil {
		activity.Steps = []string{}
	}
	created, err := s.repo.Create(ctx, activity)
	if err != nil {
		return types.Activity{}, err
	}
	s.events.Publish(ctx, EventActivityCreated, activityEvent(created))
	return created, nil
}

// Update applies the mutable fields of upd to the stored activity.
func (s *ActivityService) Update(ctx context.Context, existing types.Activity, upd ActivityUpdate) (types.Activity, error) {
	if upd.Title != nil {
		existing.Title = *upd.Title
	}
	if upd.Images != nil {
		existing.Images = *upd.Images
	}
	if upd.Duration != nil {
		existing.Duration = *upd.Duration
	}
	if upd.Category != nil {
		existing.Category = *upd.Category
	}
	if upd.Description != nil {
		existing.Description = *upd.Description
	}
	if upd.Difficulty != nil {
		existing.Difficulty = *upd.Difficulty
	}
	if upd.Materials != nil {
		existing.Materials = *upd.Materials
	}
	if upd.Steps != nil {
		existing.Steps = *upd.Steps
	}

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return types.Activity{}, err
	}
	s.events.Publish(ctx, EventActivityUpdated, activityEvent(updated))
	return updated, nil
}

// Delete removes the activity. Deleting an absent id yields
// store.ErrNotFound, same as the first delete of an already-removed record.
func (s *ActivityService) Delete(ctx context.Context, id int64) error {
	activity, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.events.Publish(ctx, EventActivityDeleted, activityEvent(activity))
	return nil
}

// AttachImage associates a stored image reference with the activity. The
// upload itself happens elsewhere; only the resulting key is recorded.
func (s *ActivityService) AttachImage(ctx context.Context, id int64, key string) (types.Activity, error) {
	activity, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Activity{}, err
	}
	activity.Images = append(activity.Images, key)
	return s.repo.Update(ctx, activity)
}

func (s *ActivityService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
