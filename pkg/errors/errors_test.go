package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeInvalidQuantity, status: http.StatusBadRequest, publicMsg: "quantity must be at least 1", detailsOK: true},
		{code: CodeStockExceeded, status: http.StatusUnprocessableEntity, publicMsg: "not enough stock", detailsOK: true},
		{code: CodeProductUnavailable, status: http.StatusUnprocessableEntity, publicMsg: "product unavailable", detailsOK: true},
		{code: CodeMissingSeller, status: http.StatusUnprocessableEntity, publicMsg: "product has no seller", detailsOK: true},
		{code: CodeSessionExpired, status: http.StatusUnauthorized, publicMsg: "session expired"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeSubmissionInFlight, status: http.StatusConflict, publicMsg: "order submission already in progress", retryable: true},
		{code: CodeNetwork, status: http.StatusServiceUnavailable, publicMsg: "backend unreachable", retryable: true},
		{code: CodeCartUnavailable, status: http.StatusServiceUnavailable, publicMsg: "cart unavailable", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
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

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeInvalidQuantity, "quantity must be positive")
	if base.Code() != CodeInvalidQuantity {
		t.Fatalf("expected invalid quantity code, got %s", base.Code())
	}
	if base.Message() != "quantity must be positive" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"product_id": "p-1"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeNetwork, cause, "get cart")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeNetwork {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestCodeHelpersWalkTheChain(t *testing.T) {
	inner := New(CodeSessionExpired, "token rejected")
	outer := fmt.Errorf("load cart: %w", inner)

	if got := CodeOf(outer); got != CodeSessionExpired {
		t.Fatalf("expected session expired, got %s", got)
	}
	if !Is(outer, CodeSessionExpired) {
		t.Fatalf("Is should match wrapped code")
	}
	if Is(nil, CodeSessionExpired) {
		t.Fatalf("nil error must not match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors default to internal")
	}
	if !IsRetryable(New(CodeNetwork, "timeout")) {
		t.Fatalf("network errors are retryable")
	}
	if IsRetryable(New(CodeStockExceeded, "stock")) {
		t.Fatalf("validation failures are not retryable")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeMissingSeller, "no seller")
	if got := As(err); got == nil || got.Code() != CodeMissingSeller {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
