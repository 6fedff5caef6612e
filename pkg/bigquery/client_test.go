package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/inkwell-labs/inkwell-backend/pkg/config"
)

func TestCredentialOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}

	opts := credentialOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestCredentialOptionsWithFile(t *testing.T) {
	gcp := config.GCPConfig{
		ApplicationCredentials: "/tmp/creds",
	}

	opts := credentialOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option when using credentials file, got %d", len(opts))
	}
}

func TestCredentialOptionsEmpty(t *testing.T) {
	if opts := credentialOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestInsertRowsRequiresClient(t *testing.T) {
	var c *Client
	if err := c.InsertRows(context.Background(), "usage_events", []any{struct{}{}}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected errClientNotInitialized, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := &googleapi.Error{Code: http.StatusNotFound}
	if !isNotFound(fmt.Errorf("check table: %w", notFound)) {
		t.Fatal("wrapped 404 should report not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 should not report not found")
	}
	if isNotFound(errors.New("plain error")) {
		t.Fatal("plain error should not report not found")
	}
}
