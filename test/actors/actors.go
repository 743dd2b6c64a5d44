package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/auth"
	"dealflow/dashboard"
	"dealflow/deal"
	"dealflow/referral"
)

// LegacyTitlePrefix marks deals written around the service layer with free-form values.
const LegacyTitlePrefix = "legacy "

// Registry collects ids created by actors so others can reference them.
type Registry struct {
	mu        sync.Mutex
	users     []string
	referrals []string
}

func (r *Registry) AddUser(id string) {
	r.mu.Lock()
	r.users = append(r.users, id)
	r.mu.Unlock()
}

func (r *Registry) AddReferral(id string) {
	r.mu.Lock()
	r.referrals = append(r.referrals, id)
	r.mu.Unlock()
}

func (r *Registry) RandomUser(rng *rand.Rand) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.users) == 0 {
		return "", false
	}
	return r.users[rng.Intn(len(r.users))], true
}

func (r *Registry) RandomReferral(rng *rand.Rand) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.referrals) == 0 {
		return "", false
	}
	return r.referrals[rng.Intn(len(r.referrals))], true
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pause(rng *rand.Rand, base, jitter int) {
	time.Sleep(time.Duration(base+rng.Intn(jitter)) * time.Millisecond)
}

// Registrar signs up fresh users and, now and then, races everyone else for one contested email.
func Registrar(ctx context.Context, svc *auth.Service, reg *Registry, contested string, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		email := fmt.Sprintf("user-%d@stress.test", rng.Int63())
		if rng.Intn(4) == 0 {
			email = contested
		}
		res, err := svc.Register(ctx, auth.RegisterRequest{
			Name:     "Stress User",
			Email:    email,
			Password: "correct-horse",
		})
		switch {
		case err == nil:
			reg.AddUser(res.User.ID)
		case errors.Is(err, auth.ErrDuplicateEmail) && email == contested:
			// expected under contention
		default:
			return fmt.Errorf("registrar %s: %w", email, err)
		}
		pause(rng, 10, 20)
	}
}

var statuses = []referral.Status{
	referral.StatusNew,
	referral.StatusContacted,
	referral.StatusMeetingScheduled,
	referral.StatusQualified,
	referral.StatusUnqualified,
}

// ReferralWriter creates referrals for random registered users.
func ReferralWriter(ctx context.Context, svc *referral.Service, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		owner, ok := reg.RandomUser(rng)
		if !ok {
			pause(rng, 10, 10)
			continue
		}
		n := rng.Int63()
		ref, err := svc.Create(ctx, owner, referral.CreateParams{
			ReferringCompany: fmt.Sprintf("Partner %d", n%17),
			ClientName:       fmt.Sprintf("Client %d", n),
			ContactPerson:    "Pat Contact",
			ContactEmail:     fmt.Sprintf("contact-%d@client.test", n),
			ContactPhone:     "555-0100",
			Service:          "consultation",
			Status:           statuses[rng.Intn(len(statuses))],
		})
		if err != nil {
			return fmt.Errorf("referral writer: %w", err)
		}
		reg.AddReferral(ref.ID)
		pause(rng, 10, 30)
	}
}

var stages = []deal.Stage{
	deal.StageProspecting,
	deal.StageQualification,
	deal.StageProposal,
	deal.StageNegotiation,
	deal.StageClosedWon,
	deal.StageClosedLost,
}

// DealWriter creates deals linked to an existing referral, to nothing, or to a
// referral id that was never stored.
func DealWriter(ctx context.Context, svc *deal.Service, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		owner, ok := reg.RandomUser(rng)
		if !ok {
			pause(rng, 10, 10)
			continue
		}

		var referralID *string
		switch rng.Intn(3) {
		case 0:
			if id, ok := reg.RandomReferral(rng); ok {
				referralID = &id
			}
		case 1:
			dangling := uuid.NewString()
			referralID = &dangling
		}

		value := fmt.Sprintf("%d.%02d", rng.Intn(100000), rng.Intn(100))
		_, err := svc.Create(ctx, owner, deal.CreateParams{
			Title:             fmt.Sprintf("Deal %d", rng.Int63()),
			ReferralID:        referralID,
			Value:             value,
			ClientName:        "Stress Client",
			Stage:             stages[rng.Intn(len(stages))],
			ExpectedCloseDate: time.Now().AddDate(0, 0, rng.Intn(90)).Format(deal.DateLayout),
		})
		if err != nil {
			return fmt.Errorf("deal writer: %w", err)
		}
		pause(rng, 10, 30)
	}
}

var legacyValues = []string{"TBD", "", "1,000", " 12.5 ", "-3", ".75", "N/A"}

// LegacyWriter inserts deals the way pre-validation clients did, with whatever
// value text they sent.
func LegacyWriter(ctx context.Context, pool *pgxpool.Pool, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		owner, ok := reg.RandomUser(rng)
		if !ok {
			pause(rng, 10, 10)
			continue
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO deals (title, value, client_name, stage, expected_close_date, user_id)
			VALUES ($1, $2, 'Legacy Client', 'prospecting', CURRENT_DATE, $3)`,
			fmt.Sprintf("%s%d", LegacyTitlePrefix, rng.Int63()),
			legacyValues[rng.Intn(len(legacyValues))],
			owner,
		)
		if err != nil {
			return fmt.Errorf("legacy writer: %w", err)
		}
		pause(rng, 50, 100)
	}
}

// StatsReader polls the dashboard while writers run.
func StatsReader(ctx context.Context, stats *dashboard.Service, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		viewer, _ := reg.RandomUser(rng)
		s, err := stats.Stats(ctx, viewer)
		if err != nil {
			return fmt.Errorf("stats reader: %w", err)
		}
		if s.ReferralCount < 0 || s.DealCount < 0 || s.ConversionRate < 0 {
			return fmt.Errorf("stats reader: negative figure in %+v", s)
		}
		pause(rng, 20, 40)
	}
}
