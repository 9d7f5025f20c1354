package controllers

import (
	"context"
	"net/http"
	"sort"

	"go.uber.org/multierr"

	"github.com/angelmondragon/gearledger-backend/api/responses"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

const envHeader = "X-GearLedger-Env"

// Pinger is any dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and fails when any is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks := make(map[string]string, len(names))
		var errs error
		for _, name := range names {
			pinger := deps[name]
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(r.Context()); err != nil {
				checks[name] = "down"
				errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				continue
			}
			checks[name] = "up"
		}
		if errs != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
