package controllers

import (
	"context"
	"net/http"

	"github.com/inkwell-labs/inkwell-backend/api/responses"
	"github.com/inkwell-labs/inkwell-backend/pkg/config"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Inkwell-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the status store is reachable.
func HealthReady(cfg *config.Config, store pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Inkwell-Env", cfg.App.Env)
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "status store unreachable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
