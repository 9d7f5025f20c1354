package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/gearledger-backend/internal/checkout"
	"github.com/angelmondragon/gearledger-backend/internal/reconcile"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
)

type stubCheckout struct {
	input  checkoutsvc.CreateCheckoutInput
	called bool
	err    error
}

func (s *stubCheckout) CreateCheckout(ctx context.Context, input checkoutsvc.CreateCheckoutInput) (*checkoutsvc.CheckoutResult, error) {
	s.called = true
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.CheckoutResult{OrderID: uuid.New(), SessionID: "cs_test_1", RedirectURL: "https://checkout.test/pay/cs_test_1"}, nil
}

type stubConfirmer struct {
	payerID   uuid.UUID
	lookupErr error
	result    *reconcile.Result
	err       error
	confirms  int
}

func (s *stubConfirmer) PayerForSession(ctx context.Context, sessionID string) (uuid.UUID, error) {
	return s.payerID, s.lookupErr
}

func (s *stubConfirmer) Confirm(ctx context.Context, sessionID string) (*reconcile.Result, error) {
	s.confirms++
	return s.result, s.err
}

func authedRequest(method, target, body string, userID uuid.UUID, role enums.Role) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func TestCheckoutCreatesSessionForCaller(t *testing.T) {
	svc := &stubCheckout{}
	payer := uuid.New()
	payee := uuid.New()
	body := `{"kind":"service_payment","payee_id":"` + payee.String() + `","gross_cents":12500}`

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", body, payer, enums.RoleUser))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input.PayerID != payer {
		t.Fatalf("payer should come from the token, got %s", svc.input.PayerID)
	}
	if svc.input.Kind != enums.OrderKindServicePayment || svc.input.GrossCents != 12500 || svc.input.PayeeID != payee {
		t.Fatalf("unexpected input %+v", svc.input)
	}

	var envelope struct {
		Data checkoutsvc.CheckoutResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.RedirectURL == "" {
		t.Fatal("expected redirect url in response")
	}
}

func TestCheckoutRejectsUnknownKind(t *testing.T) {
	svc := &stubCheckout{}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", `{"kind":"gift_card"}`, uuid.New(), enums.RoleUser))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.called {
		t.Fatal("service should not run for an invalid kind")
	}
}

func TestCheckoutRejectsUnknownFields(t *testing.T) {
	svc := &stubCheckout{}

	resp := httptest.NewRecorder()
	body := `{"kind":"boost","payer_id":"` + uuid.NewString() + `"}`
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", body, uuid.New(), enums.RoleUser))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutRequiresCaller(t *testing.T) {
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"kind":"boost"}`))
	Checkout(&stubCheckout{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCheckoutSurfacesProviderFailure(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "create checkout session")}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", `{"kind":"boost","gross_cents":500}`, uuid.New(), enums.RoleUser))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestConfirmCheckoutReturnsResultToPayer(t *testing.T) {
	payer := uuid.New()
	confirmer := &stubConfirmer{payerID: payer, result: &reconcile.Result{OrderID: uuid.New(), PayerID: payer, Status: enums.OrderStatusSucceeded}}

	resp := httptest.NewRecorder()
	ConfirmCheckout(confirmer, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/confirm", `{"session_id":"cs_test_1"}`, payer, enums.RoleUser))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), payer.String()) {
		t.Fatal("payer id must not be serialized")
	}
}

func TestConfirmCheckoutHidesOtherPayersOrders(t *testing.T) {
	payer := uuid.New()
	confirmer := &stubConfirmer{payerID: payer, result: &reconcile.Result{OrderID: uuid.New(), PayerID: payer, Status: enums.OrderStatusSucceeded}}

	resp := httptest.NewRecorder()
	ConfirmCheckout(confirmer, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/confirm", `{"session_id":"cs_test_1"}`, uuid.New(), enums.RoleUser))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	ConfirmCheckout(confirmer, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/confirm", `{"session_id":"cs_test_1"}`, uuid.New(), enums.RoleAdmin))
	if resp.Code != http.StatusOK {
		t.Fatalf("admin should see any order, got %d", resp.Code)
	}
}

func TestConfirmCheckoutStrangerNeverReconciles(t *testing.T) {
	confirmer := &stubConfirmer{payerID: uuid.New()}

	resp := httptest.NewRecorder()
	ConfirmCheckout(confirmer, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/confirm", `{"session_id":"cs_test_1"}`, uuid.New(), enums.RoleUser))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if confirmer.confirms != 0 {
		t.Fatalf("confirm must not run for another payer's session, ran %d times", confirmer.confirms)
	}
}

func TestConfirmCheckoutRequiresSessionID(t *testing.T) {
	resp := httptest.NewRecorder()
	ConfirmCheckout(&stubConfirmer{}, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/confirm", `{}`, uuid.New(), enums.RoleUser))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestConfirmCheckoutUnknownSession(t *testing.T) {
	confirmer := &stubConfirmer{lookupErr: pkgerrors.New(pkgerrors.CodeUnknownSession, "unknown checkout session")}

	resp := httptest.NewRecorder()
	ConfirmCheckout(confirmer, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/confirm", `{"session_id":"cs_missing"}`, uuid.New(), enums.RoleUser))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if confirmer.confirms != 0 {
		t.Fatal("confirm must not run for an unknown session")
	}
}
