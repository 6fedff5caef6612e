package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	meta := MetadataFor(CodeInsufficientFunds)
	if meta.HTTPStatus != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for insufficient balance, got %d", meta.HTTPStatus)
	}
	if !meta.DetailsAllowed {
		t.Fatal("insufficient balance responses must carry shortfall details")
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(CodeDependency, cause, "provider stream failed")
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if As(err).Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %v", As(err).Code())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	typed := New(CodeUnknownModel, "no rate for model")
	err := fmt.Errorf("costing: %w", typed)
	if As(err) == nil || As(err).Code() != CodeUnknownModel {
		t.Fatalf("expected typed error through fmt wrapping, got %v", err)
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeInternal, errors.New("disk full"), "persist artifact")
	dump := Dump(err)
	if dump.Code != CodeInternal {
		t.Fatalf("expected code in dump, got %v", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected full chain, got %v", dump.Chain)
	}
}
