package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lifelink/internal/bloodtype"
	"lifelink/internal/donation"
	"lifelink/internal/donor"
	"lifelink/internal/matching"
	"lifelink/internal/notification"
	"lifelink/internal/request/metrics"
	domainerrors "lifelink/pkg/domain-errors"
	"lifelink/pkg/platform/sentinel"
	txcontext "lifelink/pkg/platform/tx"
	"lifelink/pkg/requestcontext"
)

// casRetries bounds how often a writer re-reads and replays after losing an
// optimistic update. Beyond this the caller gets a conflict and retries at
// its own level.
const casRetries = 3

// CandidateSelector finds eligible donors for a request.
type CandidateSelector interface {
	SelectCandidates(ctx context.Context, q matching.Query) ([]donor.Donor, error)
}

// DonorDirectory is the slice of the donor store the lifecycle needs.
type DonorDirectory interface {
	FindByID(ctx context.Context, id string) (donor.Donor, error)
	SetLastDonationDate(ctx context.Context, id string, donatedAt time.Time) error
}

// DonationLedger records completed donations.
type DonationLedger interface {
	Save(ctx context.Context, d *donation.Donation) error
}

// ExpiryIndex lets an external index (Redis) mirror request deadlines.
// Optional; a nil index is skipped.
type ExpiryIndex interface {
	Track(ctx context.Context, requestID string, expiresAt time.Time) error
	Forget(ctx context.Context, requestID string) error
}

// Service drives the request lifecycle. All writes go through the store's
// CAS Update; the service owns the retry policy and the transition rules.
type Service struct {
	store       Store
	donors      DonorDirectory
	ledger      DonationLedger
	selector    CandidateSelector
	dispatcher  notification.Dispatcher
	txRunner    txcontext.Runner
	expiryIndex ExpiryIndex
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	matchLimit  int
	ttl         time.Duration
}

type Option func(*Service)

func WithMatchLimit(n int) Option {
	return func(s *Service) { s.matchLimit = n }
}

func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithExpiryIndex(idx ExpiryIndex) Option {
	return func(s *Service) { s.expiryIndex = idx }
}

func WithTxRunner(r txcontext.Runner) Option {
	return func(s *Service) { s.txRunner = r }
}

func NewService(
	store Store,
	donors DonorDirectory,
	ledger DonationLedger,
	selector CandidateSelector,
	dispatcher notification.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:      store,
		donors:     donors,
		ledger:     ledger,
		selector:   selector,
		dispatcher: dispatcher,
		txRunner:   txcontext.NoopRunner{},
		logger:     logger,
		tracer:     otel.Tracer("lifelink/request"),
		matchLimit: 10,
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the requester-supplied fields.
type CreateInput struct {
	PatientName   string
	BloodType     string
	UnitsRequired int
	Urgency       string
	Hospital      Hospital
	ContactPerson ContactPerson
	Description   string
	ExpiryDate    *time.Time
}

func (s *Service) Create(ctx context.Context, requesterID string, in CreateInput) (*BloodRequest, error) {
	bt, err := bloodtype.Parse(in.BloodType)
	if err != nil {
		return nil, err
	}
	if in.UnitsRequired < 1 || in.UnitsRequired > MaxUnitsPerRequest {
		return nil, domainerrors.New(domainerrors.CodeBadRequest,
			fmt.Sprintf("units required must be between 1 and %d", MaxUnitsPerRequest))
	}
	urgency := Urgency(in.Urgency)
	if in.Urgency == "" {
		urgency = UrgencyMedium
	}
	if !urgency.IsValid() {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, fmt.Sprintf("invalid urgency %q", in.Urgency))
	}

	now := requestcontext.Now(ctx)
	expiry := now.Add(s.ttl)
	if in.ExpiryDate != nil {
		if !in.ExpiryDate.After(now) {
			return nil, domainerrors.New(domainerrors.CodeBadRequest, "expiry date must be in the future")
		}
		expiry = *in.ExpiryDate
	}

	req := &BloodRequest{
		ID:            uuid.NewString(),
		RequesterID:   requesterID,
		PatientName:   in.PatientName,
		BloodType:     bt,
		UnitsRequired: in.UnitsRequired,
		Urgency:       urgency,
		Hospital:      in.Hospital,
		ContactPerson: in.ContactPerson,
		Description:   in.Description,
		Status:        StatusPending,
		IsActive:      true,
		ExpiryDate:    expiry,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Save(ctx, req); err != nil {
		return nil, s.storeError(err, "failed to save request")
	}
	s.trackExpiry(ctx, req)
	s.metrics.ObserveTransition(string(StatusPending))
	s.logger.InfoContext(ctx, "blood request created",
		"request_id", req.ID,
		"blood_type", string(req.BloodType),
		"units_required", req.UnitsRequired,
		"urgency", string(req.Urgency),
	)
	return req, nil
}

func (s *Service) Get(ctx context.Context, id string) (*BloodRequest, error) {
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "request not found")
		}
		return nil, s.storeError(err, "failed to load request")
	}
	return req, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*BloodRequest, error) {
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, s.storeError(err, "failed to list requests")
	}
	return out, nil
}

// UpdateInput holds the mutable descriptive fields. Lifecycle fields are
// never writable through Update.
type UpdateInput struct {
	PatientName   *string
	UnitsRequired *int
	Urgency       *string
	Hospital      *Hospital
	ContactPerson *ContactPerson
	Description   *string
}

func (s *Service) Update(ctx context.Context, id, requesterID string, in UpdateInput) (*BloodRequest, error) {
	var updated *BloodRequest
	err := s.withCAS(ctx, id, func(req *BloodRequest) error {
		if req.RequesterID != requesterID {
			return domainerrors.New(domainerrors.CodeForbidden, "only the requester can update a request")
		}
		if req.Status.IsTerminal() {
			return domainerrors.New(domainerrors.CodeConflict,
				fmt.Sprintf("cannot update a %s request", req.Status))
		}
		if in.PatientName != nil {
			req.PatientName = *in.PatientName
		}
		if in.UnitsRequired != nil {
			if *in.UnitsRequired < 1 || *in.UnitsRequired > MaxUnitsPerRequest {
				return domainerrors.New(domainerrors.CodeBadRequest,
					fmt.Sprintf("units required must be between 1 and %d", MaxUnitsPerRequest))
			}
			if *in.UnitsRequired < req.FulfilledUnits {
				return domainerrors.New(domainerrors.CodeBadRequest, "units required cannot drop below units fulfilled")
			}
			req.UnitsRequired = *in.UnitsRequired
		}
		if in.Urgency != nil {
			u := Urgency(*in.Urgency)
			if !u.IsValid() {
				return domainerrors.New(domainerrors.CodeBadRequest, fmt.Sprintf("invalid urgency %q", *in.Urgency))
			}
			req.Urgency = u
		}
		if in.Hospital != nil {
			req.Hospital = *in.Hospital
		}
		if in.ContactPerson != nil {
			req.ContactPerson = *in.ContactPerson
		}
		if in.Description != nil {
			req.Description = *in.Description
		}
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id, requesterID string) (*BloodRequest, error) {
	var cancelled *BloodRequest
	err := s.withCAS(ctx, id, func(req *BloodRequest) error {
		if req.RequesterID != requesterID {
			return domainerrors.New(domainerrors.CodeForbidden, "only the requester can cancel a request")
		}
		if req.Status.IsTerminal() {
			return domainerrors.New(domainerrors.CodeConflict,
				fmt.Sprintf("cannot cancel a %s request", req.Status))
		}
		req.Status = StatusCancelled
		req.IsActive = false
		cancelled = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.forgetExpiry(ctx, id)
	s.metrics.ObserveTransition(string(StatusCancelled))
	s.logger.InfoContext(ctx, "blood request cancelled", "request_id", id)
	return cancelled, nil
}

// MatchResult reports what a matching pass produced.
type MatchResult struct {
	Request    *BloodRequest
	NewMatches []MatchEntry
}

// Match runs the candidate selector and appends new donors to the match
// list. Finding nobody is not an error: the request stays pending and a
// later pass may succeed once donors become eligible again.
func (s *Service) Match(ctx context.Context, id, requesterID string) (*MatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "request.Match",
		trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()

	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, domainerrors.New(domainerrors.CodeForbidden, "only the requester can match a request")
	}
	now := requestcontext.Now(ctx)
	if req.Status.IsTerminal() {
		return nil, domainerrors.New(domainerrors.CodeConflict,
			fmt.Sprintf("cannot match a %s request", req.Status))
	}
	if req.IsExpired(now) {
		return nil, domainerrors.New(domainerrors.CodeConflict, "request has expired")
	}

	candidates, err := s.selector.SelectCandidates(ctx, matching.Query{
		BloodType:     req.BloodType,
		ExcludeUserID: req.RequesterID,
		MaxCount:      s.matchLimit,
	})
	if err != nil {
		return nil, err
	}

	var result MatchResult
	err = s.withCAS(ctx, id, func(req *BloodRequest) error {
		result.NewMatches = result.NewMatches[:0]
		for _, c := range candidates {
			if req.FindMatch(c.ID) >= 0 {
				continue
			}
			entry := MatchEntry{DonorID: c.ID, Status: MatchPending, MatchedAt: now}
			req.MatchedDonors = append(req.MatchedDonors, entry)
			result.NewMatches = append(result.NewMatches, entry)
		}
		if len(req.MatchedDonors) > 0 && req.Status == StatusPending {
			req.Status = StatusMatched
		}
		result.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("match.candidates", len(result.NewMatches)))
	if result.Request.Status == StatusMatched {
		s.metrics.ObserveTransition(string(StatusMatched))
	}
	for _, entry := range result.NewMatches {
		s.dispatcher.Dispatch(ctx, notification.Notification{
			RecipientID: entry.DonorID,
			Type:        notification.TypeDonationMatch,
			Title:       "You have been matched to a blood request",
			Message:     fmt.Sprintf("A patient needs %s blood. Please respond if you can donate.", req.BloodType),
			Data: map[string]any{
				"requestId": req.ID,
				"bloodType": string(req.BloodType),
				"urgency":   string(req.Urgency),
			},
		})
	}
	s.logger.InfoContext(ctx, "matching pass completed",
		"request_id", id,
		"new_matches", len(result.NewMatches),
		"status", string(result.Request.Status),
	)
	return &result, nil
}

// FulfillInput carries the details of a recorded donation. CallerID and
// DonorID are required; the rest default when zero.
type FulfillInput struct {
	CallerID  string
	DonorID   string
	VolumeML  int
	Location  string
	DonatedAt *time.Time
}

// Fulfill records one unit donated by a matched donor. Only the requester,
// or the matched donor acting for themselves, may record it. The request
// update, the ledger entry, and the donor cooldown commit in one
// transaction; two donors racing for the last unit are serialized by the
// CAS, and the loser replays against the fresh state and fails cleanly if
// no units remain.
func (s *Service) Fulfill(ctx context.Context, requestID string, in FulfillInput) (*BloodRequest, error) {
	donorID := in.DonorID
	ctx, span := s.tracer.Start(ctx, "request.Fulfill",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("donor.id", donorID),
		))
	defer span.End()

	current, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if in.CallerID != current.RequesterID && in.CallerID != donorID {
		return nil, domainerrors.New(domainerrors.CodeForbidden,
			"only the requester or the matched donor can record a donation")
	}

	d, err := s.donors.FindByID(ctx, donorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "donor not found")
		}
		return nil, s.storeError(err, "failed to load donor")
	}

	now := requestcontext.Now(ctx)
	if !d.CanDonate(now) {
		return nil, domainerrors.New(domainerrors.CodeConflict,
			"donor is within the donation cooldown period")
	}

	donatedAt := now
	if in.DonatedAt != nil {
		donatedAt = *in.DonatedAt
	}
	var (
		fulfilled *BloodRequest
		completed bool
	)
	err = s.withCAS(ctx, requestID, func(req *BloodRequest) error {
		completed = false
		if req.Status.IsTerminal() {
			return domainerrors.New(domainerrors.CodeConflict,
				fmt.Sprintf("cannot fulfill a %s request", req.Status))
		}
		if req.IsExpired(now) {
			return domainerrors.New(domainerrors.CodeConflict, "request has expired")
		}
		if req.FulfilledUnits >= req.UnitsRequired {
			return domainerrors.New(domainerrors.CodeConflict, "request already has all units")
		}
		idx := req.FindMatch(donorID)
		if idx < 0 {
			return domainerrors.New(domainerrors.CodeBadRequest, "donor is not matched to this request")
		}
		switch req.MatchedDonors[idx].Status {
		case MatchCompleted:
			return domainerrors.New(domainerrors.CodeConflict, "donor has already donated for this request")
		case MatchDeclined:
			return domainerrors.New(domainerrors.CodeBadRequest, "donor declined this match")
		}

		req.FulfilledUnits++
		req.MatchedDonors[idx].Status = MatchCompleted
		if req.FulfilledUnits >= req.UnitsRequired {
			req.Status = StatusFulfilled
			req.IsActive = false
			completed = true
		}
		fulfilled = req
		return nil
	}, func(ctx context.Context, req *BloodRequest) error {
		entry := &donation.Donation{
			ID:          uuid.NewString(),
			DonorID:     donorID,
			RequestID:   req.ID,
			BloodType:   string(req.BloodType),
			VolumeML:    donation.ClampVolume(in.VolumeML),
			Location:    in.Location,
			Status:      donation.StatusCompleted,
			HealthCheck: donation.HealthCheck{Passed: true},
			DonatedAt:   donatedAt,
			CreatedAt:   now,
		}
		if err := s.ledger.Save(ctx, entry); err != nil {
			return s.storeError(err, "failed to record donation")
		}
		if err := s.donors.SetLastDonationDate(ctx, donorID, donatedAt); err != nil {
			return s.storeError(err, "failed to update donor cooldown")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, notification.Notification{
		RecipientID: donorID,
		Type:        notification.TypeDonationCompleted,
		Title:       "Thank you for donating",
		Message:     "Your donation has been recorded.",
		Data:        map[string]any{"requestId": fulfilled.ID},
	})
	if completed {
		s.forgetExpiry(ctx, fulfilled.ID)
		s.metrics.ObserveTransition(string(StatusFulfilled))
		s.dispatcher.Dispatch(ctx, notification.Notification{
			RecipientID: fulfilled.RequesterID,
			Type:        notification.TypeRequestFulfilled,
			Title:       "Your blood request is fulfilled",
			Message:     fmt.Sprintf("All %d units have been donated.", fulfilled.UnitsRequired),
			Data:        map[string]any{"requestId": fulfilled.ID},
		})
	}
	s.logger.InfoContext(ctx, "donation recorded",
		"request_id", fulfilled.ID,
		"donor_id", donorID,
		"fulfilled_units", fulfilled.FulfilledUnits,
		"units_required", fulfilled.UnitsRequired,
	)
	return fulfilled, nil
}

// Expire flips requests past their deadline to expired. The CAS means a
// concurrent fulfillment of the last unit wins over the sweep.
func (s *Service) Expire(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.ListExpirable(ctx, now)
	if err != nil {
		return 0, s.storeError(err, "failed to list expirable requests")
	}
	expired := 0
	for _, req := range stale {
		err := s.withCAS(ctx, req.ID, func(req *BloodRequest) error {
			if req.Status.IsTerminal() {
				return errSkipTransition
			}
			if req.ExpiryDate.After(now) {
				return errSkipTransition
			}
			req.Status = StatusExpired
			req.IsActive = false
			return nil
		})
		if errors.Is(err, errSkipTransition) {
			continue
		}
		if err != nil {
			s.logger.WarnContext(ctx, "failed to expire request", "request_id", req.ID, "error", err)
			continue
		}
		expired++
		s.forgetExpiry(ctx, req.ID)
		s.dispatcher.Dispatch(ctx, notification.Notification{
			RecipientID: req.RequesterID,
			Type:        notification.TypeRequestExpired,
			Title:       "Your blood request has expired",
			Message:     "The request passed its deadline before all units were donated.",
			Data:        map[string]any{"requestId": req.ID},
		})
	}
	if expired > 0 {
		s.metrics.ObserveExpired(expired)
		s.logger.InfoContext(ctx, "expired stale requests", "count", expired)
	}
	return expired, nil
}

// errSkipTransition aborts a CAS attempt without surfacing an error; used
// when a re-read shows the transition no longer applies.
var errSkipTransition = errors.New("transition no longer applies")

// withCAS re-reads the request, applies mutate, and writes with the version
// check, retrying on lost races. The optional post hooks run inside the
// same transaction as the write, after mutate succeeds.
func (s *Service) withCAS(ctx context.Context, id string, mutate func(*BloodRequest) error, post ...func(context.Context, *BloodRequest) error) error {
	var lastErr error
	for attempt := 0; attempt <= casRetries; attempt++ {
		req, err := s.store.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainerrors.New(domainerrors.CodeNotFound, "request not found")
			}
			return s.storeError(err, "failed to load request")
		}
		if err := mutate(req); err != nil {
			return err
		}
		req.UpdatedAt = requestcontext.Now(ctx)

		err = s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.store.Update(ctx, req); err != nil {
				return err
			}
			for _, fn := range post {
				if err := fn(ctx, req); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.ObserveConflict()
			lastErr = err
			continue
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return domainerrors.New(domainerrors.CodeNotFound, "request not found")
		}
		var derr *domainerrors.Error
		if errors.As(err, &derr) {
			return err
		}
		return s.storeError(err, "failed to update request")
	}
	return domainerrors.Wrap(lastErr, domainerrors.CodeConflict, "request was modified concurrently, please retry")
}

func (s *Service) trackExpiry(ctx context.Context, req *BloodRequest) {
	if s.expiryIndex == nil {
		return
	}
	if err := s.expiryIndex.Track(ctx, req.ID, req.ExpiryDate); err != nil {
		s.logger.WarnContext(ctx, "failed to index request expiry", "request_id", req.ID, "error", err)
	}
}

func (s *Service) forgetExpiry(ctx context.Context, id string) {
	if s.expiryIndex == nil {
		return
	}
	if err := s.expiryIndex.Forget(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to drop request from expiry index", "request_id", id, "error", err)
	}
}

func (s *Service) storeError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return domainerrors.Wrap(err, domainerrors.CodeTimeout, msg)
	}
	return domainerrors.Wrap(err, domainerrors.CodeInternal, msg)
}
