package handler_test

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lifelink/internal/bloodtype"
	"lifelink/internal/donation"
	"lifelink/internal/donor"
	donorhandler "lifelink/internal/donor/handler"
	"lifelink/internal/jwttoken"
	"lifelink/internal/matching"
	"lifelink/internal/notification"
	notificationhandler "lifelink/internal/notification/handler"
	"lifelink/internal/request"
	requesthandler "lifelink/internal/request/handler"
	"lifelink/internal/stats"
	transporthttp "lifelink/internal/transport/http"
	"lifelink/pkg/testutil"
)

// RequestAPISuite exercises the lifecycle through the assembled router, so
// auth, routing and error mapping are covered together.
type RequestAPISuite struct {
	suite.Suite

	router http.Handler
	donors *donor.InMemoryStore
	jwt    *jwttoken.JWTService
}

func TestRequestAPISuite(t *testing.T) {
	suite.Run(t, new(RequestAPISuite))
}

func (s *RequestAPISuite) SetupTest() {
	log := slog.New(slog.DiscardHandler)

	s.donors = donor.NewInMemoryStore()
	requestStore := request.NewInMemoryStore()
	ledger := donation.NewInMemoryStore()
	notificationStore := notification.NewInMemoryStore()
	dispatcher := notification.NewChannelDispatcher(notificationStore, log)

	requestService := request.NewService(
		requestStore, s.donors, ledger,
		matching.NewSelector(s.donors),
		dispatcher, log,
	)
	s.jwt = jwttoken.NewJWTService("test-signing-key", "lifelink-test")

	s.router = transporthttp.NewRouter(transporthttp.Deps{
		Logger:        log,
		JWTValidator:  s.jwt,
		Donors:        donorhandler.New(donor.NewService(s.donors, log), log),
		Requests:      requesthandler.New(requestService, log),
		Notifications: notificationhandler.New(notification.NewService(notificationStore, log), log),
		Stats:         stats.NewHandler(stats.NewService(s.donors, requestStore, ledger, log)),
	})
}

func (s *RequestAPISuite) token(userID string) map[string]string {
	token, err := s.jwt.GenerateAccessToken(userID, time.Hour)
	s.Require().NoError(err)
	return testutil.BearerHeader(token)
}

func (s *RequestAPISuite) seedDonor(id, bloodType string) {
	s.Require().NoError(s.donors.Save(s.T().Context(), donor.Donor{
		ID:          id,
		Username:    id,
		BloodType:   bloodtype.BloodType(bloodType),
		IsAvailable: true,
		IsActive:    true,
	}))
}

type requestPayload struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FulfilledUnits int    `json:"fulfilledUnits"`
	MatchedDonors  []struct {
		DonorID string `json:"donorId"`
		Status  string `json:"matchStatus"`
	} `json:"matchedDonors"`
}

func (s *RequestAPISuite) TestLifecycleOverHTTP() {
	s.seedDonor("donor-1", "O-")

	auth := s.token("requester-1")

	var created requestPayload
	rec := testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests", map[string]any{
		"patientName":   "Asha",
		"bloodType":     "A+",
		"unitsRequired": 1,
		"urgency":       "high",
		"hospital":      map[string]any{"name": "City General"},
	}, auth, &created)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	s.Equal("pending", created.Status)

	var matched struct {
		Request    requestPayload `json:"request"`
		NewMatches int            `json:"newMatches"`
	}
	rec = testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/match", nil, auth, &matched)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("matched", matched.Request.Status)
	s.Equal(1, matched.NewMatches)

	var fulfilled requestPayload
	rec = testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/fulfill",
		map[string]any{"donorId": "donor-1"}, auth, &fulfilled)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("fulfilled", fulfilled.Status)
	s.Equal(1, fulfilled.FulfilledUnits)
	s.Require().Len(fulfilled.MatchedDonors, 1)
	s.Equal("completed", fulfilled.MatchedDonors[0].Status)
}

func (s *RequestAPISuite) TestConflictMapsTo409() {
	s.seedDonor("donor-1", "A+")
	auth := s.token("requester-1")

	var created requestPayload
	testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests", map[string]any{
		"bloodType": "A+", "unitsRequired": 1,
	}, auth, &created)
	testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/match", nil, auth, nil)
	testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/fulfill",
		map[string]any{"donorId": "donor-1"}, auth, nil)

	rec := testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/fulfill",
		map[string]any{"donorId": "donor-1"}, auth, nil)
	s.Equal(http.StatusConflict, rec.Code, rec.Body.String())
}

func (s *RequestAPISuite) TestAuthRequired() {
	rec := testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests", map[string]any{
		"bloodType": "A+", "unitsRequired": 1,
	}, nil, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RequestAPISuite) TestOwnershipEnforced() {
	auth := s.token("requester-1")
	var created requestPayload
	testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests", map[string]any{
		"bloodType": "A+", "unitsRequired": 1,
	}, auth, &created)

	rec := testutil.DoJSON(s.T(), s.router, http.MethodDelete, "/api/v1/requests/"+created.ID, nil,
		s.token("intruder"), nil)
	s.Equal(http.StatusForbidden, rec.Code, rec.Body.String())
}

func (s *RequestAPISuite) TestFulfillForbiddenForStranger() {
	s.seedDonor("donor-1", "O-")
	auth := s.token("requester-1")

	var created requestPayload
	testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests", map[string]any{
		"bloodType": "A+", "unitsRequired": 1,
	}, auth, &created)
	testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/match", nil, auth, nil)

	// A third party naming a matched donor must not be able to mark units
	// donated on someone else's request.
	rec := testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/fulfill",
		map[string]any{"donorId": "donor-1"}, s.token("intruder"), nil)
	s.Equal(http.StatusForbidden, rec.Code, rec.Body.String())

	// The matched donor acting for themselves still can, with no body.
	rec = testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests/"+created.ID+"/fulfill",
		nil, s.token("donor-1"), nil)
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *RequestAPISuite) TestValidationMapsTo400() {
	rec := testutil.DoJSON(s.T(), s.router, http.MethodPost, "/api/v1/requests", map[string]any{
		"bloodType": "Z+", "unitsRequired": 1,
	}, s.token("requester-1"), nil)
	s.Equal(http.StatusBadRequest, rec.Code, rec.Body.String())
}
