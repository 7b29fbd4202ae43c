package lib

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uvensys/abacus"
	"github.com/uvensys/abacus/internal"
	"github.com/uvensys/abacus/lib/challenge"
	"github.com/uvensys/abacus/lib/policy"
	"github.com/uvensys/abacus/lib/puzzle"
	"github.com/uvensys/abacus/lib/quota"
)

// userLockStripes is the number of mutexes verify requests are spread over.
const userLockStripes = 64

var (
	challengesValidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abacus_challenges_validated",
		Help: "The total number of challenges answered correctly",
	})

	failedValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abacus_failed_validations",
		Help: "The total number of failed validations",
	}, []string{"reason"})

	creditsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abacus_credits_awarded_total",
		Help: "The total number of credits handed out for correct answers",
	})
)

var ErrNoPolicy = errors.New("lib: no policy or policy store configured")

type Options struct {
	Policy *policy.ParsedConfig

	// Clock drives challenge expiry and quota accounting. Defaults to the
	// system clock.
	Clock internal.Clock

	// Puzzles generates the questions. Defaults to a randomly seeded
	// generator.
	Puzzles *puzzle.Generator

	// UserHeader is the trusted header holding the user ID when JWTSecret is
	// not set. Defaults to abacus.DefaultUserHeader.
	UserHeader string

	// JWTSecret, when set, makes the user ID come from the sub claim of an
	// HMAC signed bearer token instead of UserHeader.
	JWTSecret []byte
}

// IssueResult is handed to the client when a challenge is issued.
type IssueResult struct {
	ID        string `json:"id"`
	ImageHTML string `json:"imageHtml"`
	Remaining int    `json:"remaining"`
}

// VerifyResult is handed to the client after a correct answer.
type VerifyResult struct {
	Success   bool `json:"success"`
	Credits   int  `json:"credits"`
	Remaining int  `json:"remaining"`
}

type Server struct {
	mux        *http.ServeMux
	policy     *policy.ParsedConfig
	challenges *challenge.Store
	quota      *quota.Tracker
	puzzles    *puzzle.Generator
	clock      internal.Clock
	userLocks  [userLockStripes]sync.Mutex
	opts       Options
}

func New(opts Options) (*Server, error) {
	if opts.Policy == nil || opts.Policy.Store == nil {
		return nil, ErrNoPolicy
	}

	if opts.Clock == nil {
		opts.Clock = internal.SystemClock{}
	}

	if opts.Puzzles == nil {
		opts.Puzzles = puzzle.NewGenerator(nil)
	}

	if opts.UserHeader == "" {
		opts.UserHeader = abacus.DefaultUserHeader
	}

	qopts := opts.Policy.QuotaOptions()
	qopts.Clock = opts.Clock

	result := &Server{
		policy:     opts.Policy,
		challenges: challenge.NewStore(opts.Policy.Store, opts.Policy.ChallengeTTL, opts.Clock),
		quota:      quota.New(opts.Policy.Store, qopts),
		puzzles:    opts.Puzzles,
		clock:      opts.Clock,
		opts:       opts,
	}

	result.mux = result.routes()

	return result, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) lockUser(userID string) func() {
	mu := &s.userLocks[internal.Shard(userID, userLockStripes)]
	mu.Lock()
	return mu.Unlock
}

// quotaError turns a quota refusal into a user facing error. Anything that
// is not a refusal is passed through unchanged.
func quotaError(verb string, err error) error {
	var cerr *quota.CooldownError

	switch {
	case errors.Is(err, quota.ErrDailyLimitExceeded):
		failedValidations.WithLabelValues("daily_limit").Inc()
		return challenge.NewError(verb, "daily_limit_reached", err).WithStatus(http.StatusTooManyRequests)
	case errors.As(err, &cerr):
		failedValidations.WithLabelValues("cooldown").Inc()
		return challenge.NewError(verb, "cooldown_active", err).
			WithStatus(http.StatusTooManyRequests).
			WithCooldown(cerr.Remaining)
	default:
		return err
	}
}

func missingField(name string) error {
	return challenge.NewError("verify", "missing_field", fmt.Errorf("%w %s", challenge.ErrMissingField, name)).WithStatus(http.StatusBadRequest)
}

// consumeError does the same for the outcomes of challenge.Store.Consume.
func consumeError(err error) error {
	switch {
	case errors.Is(err, challenge.ErrNotFound):
		failedValidations.WithLabelValues("not_found").Inc()
		return challenge.NewError("verify", "challenge_not_found", err).WithStatus(http.StatusNotFound)
	case errors.Is(err, challenge.ErrExpired):
		failedValidations.WithLabelValues("expired").Inc()
		return challenge.NewError("verify", "challenge_expired", err).WithStatus(http.StatusGone)
	case errors.Is(err, challenge.ErrAlreadyUsed):
		failedValidations.WithLabelValues("already_used").Inc()
		return challenge.NewError("verify", "challenge_already_used", err).WithStatus(http.StatusConflict)
	default:
		return err
	}
}

// IssueChallenge hands userID a new puzzle if their quota allows it. Issuing
// never counts against the quota; only a correct answer does.
func (s *Server) IssueChallenge(ctx context.Context, userID string) (*IssueResult, error) {
	if err := s.quota.CheckEligible(ctx, userID); err != nil {
		return nil, quotaError("issue", err)
	}

	st, err := s.quota.Status(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := s.puzzles.New()

	img, err := puzzle.DataURI(ctx, s.puzzles.Render(p))
	if err != nil {
		return nil, err
	}

	chall, err := s.challenges.Create(ctx, p.Answer())
	if err != nil {
		return nil, err
	}

	slog.Debug("issued challenge", "challenge", chall.ID, "user", internal.FastHash(userID), "remaining", st.Remaining)

	return &IssueResult{
		ID:        chall.ID,
		ImageHTML: img,
		Remaining: st.Remaining,
	}, nil
}

// VerifyChallenge checks userID's answer to challengeID. The challenge is
// burned by the first attempt that reaches it, right or wrong; an answer
// that is blank after trimming is just a wrong one. A correct answer records
// a solve and earns the policy's reward.
//
// A challenge that was already answered reports challenge.ErrAlreadyUsed
// before the quota is looked at, so a client that resubmits right after a
// success learns why instead of seeing a cooldown.
func (s *Server) VerifyChallenge(ctx context.Context, userID, challengeID, answer string) (*VerifyResult, error) {
	answer = strings.TrimSpace(answer)

	if challengeID == "" {
		return nil, missingField("challengeId")
	}

	defer s.lockUser(userID)()

	chall, err := s.challenges.Peek(ctx, challengeID)
	switch {
	case err == nil && chall.Consumed:
		_, err := s.challenges.Consume(ctx, challengeID)
		return nil, consumeError(err)
	case err != nil && !errors.Is(err, challenge.ErrNotFound) && !errors.Is(err, challenge.ErrExpired):
		return nil, err
	}

	if err := s.quota.CheckEligible(ctx, userID); err != nil {
		return nil, quotaError("verify", err)
	}

	want, err := s.challenges.Consume(ctx, challengeID)
	if err != nil {
		return nil, consumeError(err)
	}

	if subtle.ConstantTimeCompare([]byte(answer), []byte(want)) != 1 {
		failedValidations.WithLabelValues("wrong_answer").Inc()
		return nil, challenge.NewError("verify", "wrong_answer", fmt.Errorf("%w: wanted %s but got %s", challenge.ErrWrongAnswer, want, answer))
	}

	st, err := s.quota.RecordSolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	challengesValidated.Inc()
	creditsAwarded.Add(float64(s.policy.Reward))
	slog.Debug("challenge passed", "challenge", challengeID, "user", internal.FastHash(userID), "solved_today", st.SolvedToday)

	return &VerifyResult{
		Success:   true,
		Credits:   s.policy.Reward,
		Remaining: s.quota.Remaining(st),
	}, nil
}

// GetStatus reports userID's quota without changing anything.
func (s *Server) GetStatus(ctx context.Context, userID string) (quota.Status, error) {
	return s.quota.Status(ctx, userID)
}
