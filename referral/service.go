package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealflow/workspace"
)

var (
	ErrMissingOwner  = errors.New("referral: missing owner user id")
	ErrMissingField  = errors.New("referral: required field missing")
	ErrInvalidStatus = errors.New("referral: invalid status")
)

// ChangeNotifier is told, with the owner's id, after a referral has been stored.
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

// Create stores a new referral owned by ownerID. Id and creation time are assigned
// here; status defaults to new.
func (s *Service) Create(ctx context.Context, ownerID string, params CreateParams) (Referral, error) {
	if ownerID == "" {
		return Referral{}, ErrMissingOwner
	}

	ref := Referral{
		ID:               s.idGenerator(),
		ReferringCompany: strings.TrimSpace(params.ReferringCompany),
		ClientName:       strings.TrimSpace(params.ClientName),
		ContactPerson:    strings.TrimSpace(params.ContactPerson),
		ContactEmail:     strings.TrimSpace(params.ContactEmail),
		ContactPhone:     strings.TrimSpace(params.ContactPhone),
		Service:          strings.TrimSpace(params.Service),
		Status:           params.Status,
		Notes:            normalizeNotes(params.Notes),
		CreatedAt:        s.now().UTC(),
		UserID:           ownerID,
	}
	if ref.Status == "" {
		ref.Status = StatusNew
	}
	if err := validate(ref); err != nil {
		return Referral{}, err
	}

	created, err := s.repo.Create(ctx, ref)
	if err != nil {
		return Referral{}, err
	}

	if s.notifier != nil {
		s.notifier.Invalidate(ctx, ownerID)
	}
	return created, nil
}

// List returns all referrals visible to viewerID, newest first.
func (s *Service) List(ctx context.Context, viewerID string) ([]Referral, error) {
	return s.repo.List(ctx, s.visibility.For(viewerID))
}

// ListSorted returns all referrals visible to viewerID ordered by sortBy.
// Unknown keys fall back to client_name.
func (s *Service) ListSorted(ctx context.Context, viewerID, sortBy string) ([]Referral, error) {
	return s.repo.ListSorted(ctx, s.visibility.For(viewerID), sortBy)
}

func validate(ref Referral) error {
	required := []struct{ field, value string }{
		{"referring_company", ref.ReferringCompany},
		{"client_name", ref.ClientName},
		{"contact_person", ref.ContactPerson},
		{"contact_email", ref.ContactEmail},
		{"contact_phone", ref.ContactPhone},
		{"service", ref.Service},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, r.field)
		}
	}
	if !ref.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, ref.Status)
	}
	return nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
