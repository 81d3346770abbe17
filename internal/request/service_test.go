package request_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lifelink/internal/donation"
	"lifelink/internal/donor"
	"lifelink/internal/matching"
	"lifelink/internal/notification"
	"lifelink/internal/request"
	domainerrors "lifelink/pkg/domain-errors"
	"lifelink/pkg/requestcontext"
)

type RequestServiceSuite struct {
	suite.Suite

	donors     *donor.InMemoryStore
	requests   *request.InMemoryStore
	ledger     *donation.InMemoryStore
	dispatcher *recordingDispatcher
	service    *request.Service

	now time.Time
	ctx context.Context
}

func TestRequestServiceSuite(t *testing.T) {
	suite.Run(t, new(RequestServiceSuite))
}

func (s *RequestServiceSuite) SetupTest() {
	s.donors = donor.NewInMemoryStore()
	s.requests = request.NewInMemoryStore()
	s.ledger = donation.NewInMemoryStore()
	s.dispatcher = &recordingDispatcher{}
	s.service = request.NewService(
		s.requests,
		s.donors,
		s.ledger,
		matching.NewSelector(s.donors),
		s.dispatcher,
		discardLogger(),
	)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *RequestServiceSuite) seedDonor(d donor.Donor) {
	s.Require().NoError(s.donors.Save(s.ctx, d))
}

// fulfillAs records a donation on behalf of the given caller, the shape
// most tests need.
func (s *RequestServiceSuite) fulfillAs(ctx context.Context, requestID, callerID, donorID string) (*request.BloodRequest, error) {
	return s.service.Fulfill(ctx, requestID, request.FulfillInput{CallerID: callerID, DonorID: donorID})
}

func (s *RequestServiceSuite) createRequest(requesterID string, units int) *request.BloodRequest {
	req, err := s.service.Create(s.ctx, requesterID, request.CreateInput{
		PatientName:   "Asha",
		BloodType:     "A+",
		UnitsRequired: units,
		Urgency:       "high",
		Hospital:      request.Hospital{Name: "City General", City: "Bengaluru"},
	})
	s.Require().NoError(err)
	return req
}

func (s *RequestServiceSuite) TestCreateDefaults() {
	req := s.createRequest("requester-1", 2)

	s.Equal(request.StatusPending, req.Status)
	s.True(req.IsActive)
	s.Zero(req.FulfilledUnits)
	s.Empty(req.MatchedDonors)
	s.Equal(s.now.Add(request.DefaultTTL), req.ExpiryDate)
	s.NotEmpty(req.ID)
}

func (s *RequestServiceSuite) TestCreateValidation() {
	s.Run("unknown blood type", func() {
		_, err := s.service.Create(s.ctx, "r1", request.CreateInput{BloodType: "C+", UnitsRequired: 1})
		s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))
	})
	s.Run("zero units", func() {
		_, err := s.service.Create(s.ctx, "r1", request.CreateInput{BloodType: "A+", UnitsRequired: 0})
		s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))
	})
	s.Run("too many units", func() {
		_, err := s.service.Create(s.ctx, "r1", request.CreateInput{
			BloodType: "A+", UnitsRequired: request.MaxUnitsPerRequest + 1,
		})
		s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))
	})
	s.Run("invalid urgency", func() {
		_, err := s.service.Create(s.ctx, "r1", request.CreateInput{BloodType: "A+", UnitsRequired: 1, Urgency: "asap"})
		s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))
	})
	s.Run("expiry in the past", func() {
		past := s.now.Add(-time.Hour)
		_, err := s.service.Create(s.ctx, "r1", request.CreateInput{
			BloodType: "A+", UnitsRequired: 1, ExpiryDate: &past,
		})
		s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))
	})
}

func (s *RequestServiceSuite) TestMatchSelectsCompatibleDonors() {
	s.seedDonor(newDonor("d-opos", "O+", nil))
	s.seedDonor(newDonor("d-oneg", "O-", nil))
	s.seedDonor(newDonor("d-bpos", "B+", nil)) // incompatible with A+
	req := s.createRequest("requester-1", 2)

	res, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	s.Equal(request.StatusMatched, res.Request.Status)
	s.Len(res.NewMatches, 2)
	for _, m := range res.Request.MatchedDonors {
		s.Equal(request.MatchPending, m.Status)
		s.Equal(s.now, m.MatchedAt)
		s.NotEqual("d-bpos", m.DonorID)
	}

	notified := s.dispatcher.byType(notification.TypeDonationMatch)
	s.Len(notified, 2)
}

func (s *RequestServiceSuite) TestMatchZeroCandidatesStaysPending() {
	req := s.createRequest("requester-1", 1)

	res, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	s.Equal(request.StatusPending, res.Request.Status)
	s.Empty(res.NewMatches)
	s.Empty(s.dispatcher.byType(notification.TypeDonationMatch))
}

func (s *RequestServiceSuite) TestMatchDoesNotDuplicateEntries() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	req := s.createRequest("requester-1", 1)

	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)
	res, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	s.Empty(res.NewMatches)
	s.Len(res.Request.MatchedDonors, 1)
}

func (s *RequestServiceSuite) TestMatchExcludesRequester() {
	s.seedDonor(newDonor("requester-1", "A+", nil))
	req := s.createRequest("requester-1", 1)

	res, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)
	s.Empty(res.Request.MatchedDonors)
}

func (s *RequestServiceSuite) TestMatchRequiresOwnership() {
	req := s.createRequest("requester-1", 1)
	_, err := s.service.Match(s.ctx, req.ID, "someone-else")
	s.True(domainerrors.Is(err, domainerrors.CodeForbidden))
}

func (s *RequestServiceSuite) TestFulfillRequiresOwnership() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	req := s.createRequest("requester-1", 2)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	s.Run("stranger cannot record a donation", func() {
		_, err := s.fulfillAs(s.ctx, req.ID, "someone-else", "d-1")
		s.True(domainerrors.Is(err, domainerrors.CodeForbidden))

		entries, err := s.ledger.ListByRequest(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("matched donor may record their own", func() {
		got, err := s.fulfillAs(s.ctx, req.ID, "d-1", "d-1")
		s.Require().NoError(err)
		s.Equal(1, got.FulfilledUnits)
	})

	s.Run("donor cannot record for another donor", func() {
		s.seedDonor(newDonor("d-2", "A+", nil))
		_, err := s.fulfillAs(s.ctx, req.ID, "d-1", "d-2")
		s.True(domainerrors.Is(err, domainerrors.CodeForbidden))
	})
}

func (s *RequestServiceSuite) TestFulfillRechecksDonorEligibility() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	first := s.createRequest("requester-1", 1)
	second := s.createRequest("requester-1", 1)
	for _, req := range []*request.BloodRequest{first, second} {
		_, err := s.service.Match(s.ctx, req.ID, "requester-1")
		s.Require().NoError(err)
	}

	_, err := s.fulfillAs(s.ctx, first.ID, "requester-1", "d-1")
	s.Require().NoError(err)

	// The first donation started the cooldown, so the still-open match on
	// the second request must not be fulfillable.
	_, err = s.fulfillAs(s.ctx, second.ID, "requester-1", "d-1")
	s.True(domainerrors.Is(err, domainerrors.CodeConflict))

	entries, err := s.ledger.ListByRequest(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *RequestServiceSuite) TestFulfillRecordsDonationDetails() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	req := s.createRequest("requester-1", 1)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	donatedAt := s.now.Add(-2 * time.Hour)
	_, err = s.service.Fulfill(s.ctx, req.ID, request.FulfillInput{
		CallerID:  "requester-1",
		DonorID:   "d-1",
		VolumeML:  500, // above the cap, must be clamped
		Location:  "City General, Bengaluru",
		DonatedAt: &donatedAt,
	})
	s.Require().NoError(err)

	entries, err := s.ledger.ListByRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(donation.MaxVolumeML, entries[0].VolumeML)
	s.Equal("City General, Bengaluru", entries[0].Location)
	s.Equal(donatedAt, entries[0].DonatedAt)

	d, err := s.donors.FindByID(s.ctx, "d-1")
	s.Require().NoError(err)
	s.Require().NotNil(d.LastDonationDate)
	s.Equal(donatedAt, *d.LastDonationDate)
}

func (s *RequestServiceSuite) TestFulfillRoundTrip() {
	for _, id := range []string{"d-1", "d-2", "d-3", "d-4"} {
		s.seedDonor(newDonor(id, "A+", nil))
	}
	req := s.createRequest("requester-1", 3)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	for i, donorID := range []string{"d-1", "d-2", "d-3"} {
		got, err := s.fulfillAs(s.ctx, req.ID, "requester-1", donorID)
		s.Require().NoError(err)
		s.Equal(i+1, got.FulfilledUnits)

		d, err := s.donors.FindByID(s.ctx, donorID)
		s.Require().NoError(err)
		s.Require().NotNil(d.LastDonationDate)
		s.Equal(s.now, *d.LastDonationDate)
	}

	final, err := s.service.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusFulfilled, final.Status)
	s.False(final.IsActive)

	entries, err := s.ledger.ListByRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Len(entries, 3)

	// A fourth donation against a fulfilled request must fail and must not
	// write a ledger entry.
	_, err = s.fulfillAs(s.ctx, req.ID, "requester-1", "d-4")
	s.True(domainerrors.Is(err, domainerrors.CodeConflict))
	entries, err = s.ledger.ListByRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Len(entries, 3)

	s.Len(s.dispatcher.byType(notification.TypeDonationCompleted), 3)
	s.Len(s.dispatcher.byType(notification.TypeRequestFulfilled), 1)
}

func (s *RequestServiceSuite) TestFulfillRejectsUnmatchedDonor() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	s.seedDonor(newDonor("d-stranger", "AB+", nil)) // exists, but incompatible with A+
	req := s.createRequest("requester-1", 1)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	_, err = s.fulfillAs(s.ctx, req.ID, "requester-1", "d-stranger")
	s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))

	_, err = s.fulfillAs(s.ctx, req.ID, "requester-1", "d-unknown")
	s.True(domainerrors.Is(err, domainerrors.CodeNotFound))
}

func (s *RequestServiceSuite) TestFulfillSameDonorTwice() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	req := s.createRequest("requester-1", 2)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	_, err = s.fulfillAs(s.ctx, req.ID, "requester-1", "d-1")
	s.Require().NoError(err)
	_, err = s.fulfillAs(s.ctx, req.ID, "requester-1", "d-1")
	s.True(domainerrors.Is(err, domainerrors.CodeConflict))
}

func (s *RequestServiceSuite) TestFulfillExpiredRequest() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	req := s.createRequest("requester-1", 1)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	// Move the clock past the deadline without running the sweeper; the
	// inline expiry check must reject the donation on its own.
	lateCtx := requestcontext.WithTime(context.Background(), req.ExpiryDate.Add(time.Minute))
	_, err = s.fulfillAs(lateCtx, req.ID, "requester-1", "d-1")
	s.True(domainerrors.Is(err, domainerrors.CodeConflict))

	entries, err := s.ledger.ListByRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *RequestServiceSuite) TestConcurrentFulfillLastUnit() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	s.seedDonor(newDonor("d-2", "A+", nil))
	req := s.createRequest("requester-1", 1)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, donorID := range []string{"d-1", "d-2"} {
		wg.Add(1)
		go func(i int, donorID string) {
			defer wg.Done()
			_, errs[i] = s.fulfillAs(s.ctx, req.ID, "requester-1", donorID)
		}(i, donorID)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domainerrors.Is(err, domainerrors.CodeConflict):
			conflicts++
		default:
			s.FailNowf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(1, conflicts)

	final, err := s.service.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusFulfilled, final.Status)
	s.Equal(1, final.FulfilledUnits)

	entries, err := s.ledger.ListByRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *RequestServiceSuite) TestConcurrentFulfillNeverOvershoots() {
	donorIDs := []string{"d-1", "d-2", "d-3", "d-4", "d-5"}
	for _, id := range donorIDs {
		s.seedDonor(newDonor(id, "A+", nil))
	}
	req := s.createRequest("requester-1", 3)
	_, err := s.service.Match(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make([]error, len(donorIDs))
	for i, donorID := range donorIDs {
		wg.Add(1)
		go func(i int, donorID string) {
			defer wg.Done()
			_, errs[i] = s.fulfillAs(s.ctx, req.ID, "requester-1", donorID)
		}(i, donorID)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			s.True(domainerrors.Is(err, domainerrors.CodeConflict))
		}
	}
	s.Equal(3, ok)

	final, err := s.service.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(3, final.FulfilledUnits)
	s.Equal(request.StatusFulfilled, final.Status)

	entries, err := s.ledger.ListByRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Len(entries, 3)
}

func (s *RequestServiceSuite) TestCancel() {
	req := s.createRequest("requester-1", 1)

	s.Run("only requester may cancel", func() {
		_, err := s.service.Cancel(s.ctx, req.ID, "intruder")
		s.True(domainerrors.Is(err, domainerrors.CodeForbidden))
	})

	cancelled, err := s.service.Cancel(s.ctx, req.ID, "requester-1")
	s.Require().NoError(err)
	s.Equal(request.StatusCancelled, cancelled.Status)
	s.False(cancelled.IsActive)

	s.Run("cancel is terminal", func() {
		_, err := s.service.Cancel(s.ctx, req.ID, "requester-1")
		s.True(domainerrors.Is(err, domainerrors.CodeConflict))
	})

	s.Run("no fulfillment after cancel", func() {
		s.seedDonor(newDonor("d-1", "A+", nil))
		_, err := s.fulfillAs(s.ctx, req.ID, "requester-1", "d-1")
		s.True(domainerrors.Is(err, domainerrors.CodeConflict))
	})
}

func (s *RequestServiceSuite) TestUpdate() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	req := s.createRequest("requester-1", 2)

	s.Run("descriptive fields", func() {
		name := "Ravi"
		urgency := "critical"
		got, err := s.service.Update(s.ctx, req.ID, "requester-1", request.UpdateInput{
			PatientName: &name,
			Urgency:     &urgency,
		})
		s.Require().NoError(err)
		s.Equal("Ravi", got.PatientName)
		s.Equal(request.UrgencyCritical, got.Urgency)
	})

	s.Run("units cannot drop below fulfilled", func() {
		_, err := s.service.Match(s.ctx, req.ID, "requester-1")
		s.Require().NoError(err)
		_, err = s.fulfillAs(s.ctx, req.ID, "requester-1", "d-1")
		s.Require().NoError(err)

		zero := 0
		_, err = s.service.Update(s.ctx, req.ID, "requester-1", request.UpdateInput{UnitsRequired: &zero})
		s.True(domainerrors.Is(err, domainerrors.CodeBadRequest))
	})

	s.Run("ownership enforced", func() {
		name := "x"
		_, err := s.service.Update(s.ctx, req.ID, "intruder", request.UpdateInput{PatientName: &name})
		s.True(domainerrors.Is(err, domainerrors.CodeForbidden))
	})
}

func (s *RequestServiceSuite) TestExpireSweep() {
	s.seedDonor(newDonor("d-1", "A+", nil))
	stale := s.createRequest("requester-1", 1)

	// Fulfilled before the deadline, so the sweep must leave it alone.
	done := s.createRequest("requester-2", 1)
	_, err := s.service.Match(s.ctx, done.ID, "requester-2")
	s.Require().NoError(err)
	_, err = s.fulfillAs(s.ctx, done.ID, "requester-2", "d-1")
	s.Require().NoError(err)

	n, err := s.service.Expire(s.ctx, stale.ExpiryDate.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.service.Get(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusExpired, got.Status)
	s.False(got.IsActive)

	final, err := s.service.Get(s.ctx, done.ID)
	s.Require().NoError(err)
	s.Equal(request.StatusFulfilled, final.Status)

	s.Len(s.dispatcher.byType(notification.TypeRequestExpired), 1)
}

func (s *RequestServiceSuite) TestGetUnknownID() {
	_, err := s.service.Get(s.ctx, "nope")
	s.True(domainerrors.Is(err, domainerrors.CodeNotFound))
}
