package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
)

type sampleAddress struct {
	City    string `json:"city" validate:"required"`
	Country string `json:"country" validate:"required,country"`
}

type sampleRequest struct {
	Kind    enums.OrderKind `json:"kind" validate:"required,order_kind"`
	Note    string          `json:"note" validate:"omitempty,max=5"`
	Address *sampleAddress  `json:"address"`
}

func postJSON(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "expected validation error, got %v", err)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	var req sampleRequest
	err := DecodeJSONBody(postJSON(`{"kind":"boost","address":{"city":"Austin","country":"us"}}`), &req)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderKindBoost, req.Kind)
	assert.Equal(t, "Austin", req.Address.City)
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	var req sampleRequest
	err := DecodeJSONBody(postJSON(`{"kind":"gift_card","note":"too long","address":{"country":"usa"}}`), &req)
	details := validationDetails(t, err)
	assert.Equal(t, "must be one of: boost, part_purchase, service_payment", details["kind"])
	assert.Equal(t, "must be at most 5", details["note"])
	assert.Equal(t, "is required", details["address.city"])
	assert.Equal(t, "must be a two-letter country code", details["address.country"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"unknown field":  `{"kind":"boost","payer_id":"x"}`,
		"trailing value": `{"kind":"boost"} {"kind":"boost"}`,
		"not json":       `kind=boost`,
		"too large":      `{"kind":"boost","note":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var req sampleRequest
			err := DecodeJSONBody(postJSON(body), &req)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDecodeOptionalJSONBodyAllowsEmpty(t *testing.T) {
	req := sampleRequest{Kind: enums.OrderKindBoost}
	require.NoError(t, DecodeOptionalJSONBody(postJSON(``), &req))
	assert.Equal(t, enums.OrderKindBoost, req.Kind)

	noBody := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeOptionalJSONBody(noBody, &req))

	err := DecodeOptionalJSONBody(postJSON(`{"kind":"nope"}`), &req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("orderId", value)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseUUIDParam(withParam(""), "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10&unclaimed=true&bad=x&big=500", nil)

	limit, err := ParseQueryInt(r, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)

	limit, err = ParseQueryInt(r, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	_, err = ParseQueryInt(r, "bad", 25, 1, 100)
	assert.Error(t, err)
	_, err = ParseQueryInt(r, "big", 25, 1, 100)
	assert.Error(t, err)

	unclaimed, err := ParseQueryBool(r, "unclaimed")
	require.NoError(t, err)
	assert.True(t, unclaimed)
	_, err = ParseQueryBool(r, "bad")
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hel\x00lo\n ", 0))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
	// "é" is two bytes; the cut backs off rather than splitting it
	assert.Equal(t, "ab", SanitizeString("abé", 3))
	assert.Equal(t, "CA", NormalizeCountry(" ca "))
}
