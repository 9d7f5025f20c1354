package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeMetadata(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeUnknownSession, status: http.StatusNotFound, publicMsg: "checkout session not recognized", detailsOK: true},
		{code: CodeInsufficientClaimable, status: http.StatusUnprocessableEntity, publicMsg: "nothing available to pay out", detailsOK: true},
		{code: CodeInconsistentInvariant, status: http.StatusInternalServerError, publicMsg: "payout processing halted"},
	}

	for _, tt := range tests {
		meta := tt.code.Metadata()
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestUnknownCodeDefaultsToInternal(t *testing.T) {
	code := Code("SOMETHING_UNKNOWN")
	if code.Metadata().HTTPStatus != http.StatusInternalServerError || !code.ServerSide() {
		t.Fatalf("expected internal metadata, got %+v", code.Metadata())
	}
	if CodeUnknownSession.ServerSide() || !CodeInconsistentInvariant.ServerSide() {
		t.Fatalf("unexpected server-side classification")
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if got := wrapped.Error(); got != "CONFLICT: ctx: boom" {
		t.Fatalf("wrapped message should carry the cause, got %q", got)
	}
	if got := Wrap(CodeConflict, nil, "ctx").Error(); got != "CONFLICT: ctx" {
		t.Fatalf("nil cause should read like New, got %q", got)
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeInsufficientClaimable, "no unclaimed invoices")
	outer := fmt.Errorf("schedule payout: %w", inner)
	if !IsCode(outer, CodeInsufficientClaimable) {
		t.Fatalf("expected IsCode to find wrapped code")
	}
	if IsCode(outer, CodeValidation) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil error should never match")
	}
}
