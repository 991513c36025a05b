// Package seed generates demo users and a random follow mesh through the
// real services, so seeded data obeys the same invariants as live traffic.
// It is intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"dropp/internal/models"
	"dropp/internal/observability"
	"dropp/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
)

// DefaultPassword is the password every seeded user gets.
const DefaultPassword = "password123"

// Accounts creates users.
type Accounts interface {
	CreateUser(ctx context.Context, username, displayName, password string) (*models.User, error)
}

// Follows drives the request/accept flow.
type Follows interface {
	RequestToFollow(ctx context.Context, actor, target string) error
	RespondToFollowerRequest(ctx context.Context, actor, requester string, intent models.RequestIntent) error
}

// Options configures the seeder
type Options struct {
	NumUsers int
	// FollowProbability is the chance that a user requests to follow another.
	FollowProbability float64
	// AcceptProbability is the chance a request is accepted; otherwise it
	// is declined or left pending with equal odds.
	AcceptProbability float64
	Password          string
	// Seed makes generation deterministic when non-zero.
	Seed int64
}

// Stats summarizes a seeding run.
type Stats struct {
	Users    int
	Requests int
	Accepted int
	Declined int
	Pending  int
	Skipped  int
}

// Seeder generates users and relationships.
type Seeder struct {
	accounts Accounts
	follows  Follows
	opts     Options
	faker    *gofakeit.Faker
	rng      *rand.Rand
}

// NewSeeder creates a seeder. Zero-valued options get defaults.
func NewSeeder(accounts Accounts, follows Follows, opts Options) *Seeder {
	if opts.NumUsers <= 0 {
		opts.NumUsers = 25
	}
	if opts.FollowProbability <= 0 {
		opts.FollowProbability = 0.2
	}
	if opts.AcceptProbability <= 0 {
		opts.AcceptProbability = 0.7
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Seeder{
		accounts: accounts,
		follows:  follows,
		opts:     opts,
		faker:    gofakeit.New(seed),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Run seeds users then the follow mesh between them.
func (s *Seeder) Run(ctx context.Context) ([]string, Stats, error) {
	users, err := s.SeedUsers(ctx, s.opts.NumUsers)
	if err != nil {
		return nil, Stats{}, err
	}
	stats, err := s.SeedFollowMesh(ctx, users)
	stats.Users = len(users)
	return users, stats, err
}

// SeedUsers creates n users with generated usernames. Names that collide
// with existing accounts are regenerated.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]string, error) {
	users := make([]string, 0, n)
	seen := make(map[string]struct{}, n)

	for attempts := 0; len(users) < n; attempts++ {
		if attempts > n*10 {
			return users, fmt.Errorf("gave up after %d attempts with %d of %d users", attempts, len(users), n)
		}

		username := s.username()
		if _, dup := seen[username]; dup {
			continue
		}
		seen[username] = struct{}{}

		_, err := s.accounts.CreateUser(ctx, username, s.faker.Name(), s.opts.Password)
		if models.IsKind(err, models.KindResourceConflict) {
			continue
		}
		if err != nil {
			return users, fmt.Errorf("create %s: %w", username, err)
		}
		users = append(users, username)
	}

	observability.Logger.InfoContext(ctx, "seeded users", slog.Int("count", len(users)))
	return users, nil
}

// SeedFollowMesh sends follow requests between random pairs of users and
// answers a share of them. Conflicts from earlier answers are skipped.
func (s *Seeder) SeedFollowMesh(ctx context.Context, users []string) (Stats, error) {
	var stats Stats

	for _, actor := range users {
		for _, target := range users {
			if actor == target || s.rng.Float64() >= s.opts.FollowProbability {
				continue
			}

			err := s.follows.RequestToFollow(ctx, actor, target)
			if models.IsKind(err, models.KindResourceConflict) {
				stats.Skipped++
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("request %s -> %s: %w", actor, target, err)
			}
			stats.Requests++

			roll := s.rng.Float64()
			switch {
			case roll < s.opts.AcceptProbability:
				if err := s.follows.RespondToFollowerRequest(ctx, target, actor, models.IntentAccept); err != nil {
					return stats, fmt.Errorf("accept %s -> %s: %w", actor, target, err)
				}
				stats.Accepted++
			case roll < s.opts.AcceptProbability+(1-s.opts.AcceptProbability)/2:
				if err := s.follows.RespondToFollowerRequest(ctx, target, actor, models.IntentDecline); err != nil {
					return stats, fmt.Errorf("decline %s -> %s: %w", actor, target, err)
				}
				stats.Declined++
			default:
				stats.Pending++
			}
		}
	}

	observability.Logger.InfoContext(ctx, "seeded follow mesh",
		slog.Int("requests", stats.Requests),
		slog.Int("accepted", stats.Accepted),
		slog.Int("declined", stats.Declined),
		slog.Int("pending", stats.Pending),
	)
	return stats, nil
}

// username returns a generated name that passes username validation.
func (s *Seeder) username() string {
	for {
		name := Sanitize(s.faker.Username())
		if len(name) < 3 {
			name += fmt.Sprintf("%03d", s.faker.Number(0, 999))
		}
		if validation.ValidateUsername(name) == nil {
			return name
		}
	}
}

// Sanitize lowercases raw and drops characters usernames cannot hold.
func Sanitize(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.' && b.Len() > 0 && !strings.HasSuffix(b.String(), "."):
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), ".")
	if len(out) > 30 {
		out = strings.TrimRight(out[:30], ".")
	}
	return out
}
