package deal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealflow/workspace"
)

var (
	ErrMissingOwner      = errors.New("deal: missing owner user id")
	ErrMissingField      = errors.New("deal: required field missing")
	ErrInvalidStage      = errors.New("deal: invalid stage")
	ErrInvalidValue      = errors.New("deal: value must be a non-negative decimal with at most 15 digits and 2 decimals")
	ErrInvalidReferralID = errors.New("deal: referral id must be a UUID")
	ErrInvalidCloseDate  = errors.New("deal: expected close date must be YYYY-MM-DD")
)

var valueRe = regexp.MustCompile(`^[0-9]{1,15}(\.[0-9]{1,2})?$`)

// ChangeNotifier is told, with the owner's id, after a deal has been stored.
type ChangeNotifier interface {
	Invalidate(ctx context.Context, ownerID string)
}

type Service struct {
	repo        Repository
	notifier    ChangeNotifier
	visibility  workspace.Visibility
	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Repository, notifier ChangeNotifier) *Service {
	return &Service{
		repo:        repo,
		notifier:    notifier,
		visibility:  workspace.Shared,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithVisibility(v workspace.Visibility) *Service {
	s.visibility = v
	return s
}

// Create stores a new deal owned by ownerID. The referral id is not checked for
// existence.
func (s *Service) Create(ctx context.Context, ownerID string, params CreateParams) (Deal, error) {
	if ownerID == "" {
		return Deal{}, ErrMissingOwner
	}

	title := strings.TrimSpace(params.Title)
	clientName := strings.TrimSpace(params.ClientName)
	if title == "" {
		return Deal{}, fmt.Errorf("%w: title", ErrMissingField)
	}
	if clientName == "" {
		return Deal{}, fmt.Errorf("%w: client_name", ErrMissingField)
	}

	value := strings.TrimSpace(params.Value)
	if !valueRe.MatchString(value) {
		return Deal{}, fmt.Errorf("%w: %q", ErrInvalidValue, params.Value)
	}

	stage := params.Stage
	if stage == "" {
		stage = StageProspecting
	}
	if !stage.Valid() {
		return Deal{}, fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}

	closeDate, err := time.Parse(DateLayout, strings.TrimSpace(params.ExpectedCloseDate))
	if err != nil {
		return Deal{}, fmt.Errorf("%w: %q", ErrInvalidCloseDate, params.ExpectedCloseDate)
	}

	referralID, err := normalizeReferralID(params.ReferralID)
	if err != nil {
		return Deal{}, err
	}

	d := Deal{
		ID:                s.idGenerator(),
		Title:             title,
		ReferralID:        referralID,
		Value:             value,
		ClientName:        clientName,
		Stage:             stage,
		ExpectedCloseDate: closeDate,
		Description:       optionalText(params.Description),
		CreatedAt:         s.now().UTC(),
		UserID:            ownerID,
	}

	created, err := s.repo.Create(ctx, d)
	if err != nil {
		return Deal{}, err
	}

	if s.notifier != nil {
		s.notifier.Invalidate(ctx, ownerID)
	}
	return created, nil
}

// List returns all deals visible to viewerID, newest first.
func (s *Service) List(ctx context.Context, viewerID string) ([]Deal, error) {
	return s.repo.List(ctx, s.visibility.For(viewerID))
}

// ListSorted returns all deals visible to viewerID ordered by sortBy. Unknown keys
// fall back to title; value sorts highest first.
func (s *Service) ListSorted(ctx context.Context, viewerID, sortBy string) ([]Deal, error) {
	return s.repo.ListSorted(ctx, s.visibility.For(viewerID), sortBy)
}

func normalizeReferralID(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, nil
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReferralID, trimmed)
	}
	s := id.String()
	return &s, nil
}

func optionalText(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
