package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/internal/platform/metrics"
	"dossier/internal/platform/middleware"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/requestcontext"
	"dossier/pkg/testutil"
)

type fixedActor struct{ actor id.Actor }

func (f fixedActor) Resolve(_ context.Context, header string) (id.Actor, error) {
	if header != "" && header != f.actor.ID.String() {
		return id.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "unknown actor")
	}
	return f.actor, nil
}

type routes func(r chi.Router)

func (f routes) Register(r chi.Router) { f(r) }

func newTestRouter(checks map[string]HealthCheck) (http.Handler, id.Actor) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	actor := testutil.NewActor("Ana Ruiz", id.RoleSubject)

	whoami := routes(func(r chi.Router) {
		r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
			a, _ := requestcontext.Actor(r.Context())
			_, _ = w.Write([]byte(a.Name))
		})
	})
	session := routes(func(r chi.Router) {
		r.Get("/session/role", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return NewRouter(Deps{
		Logger:   logger,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Actors:   fixedActor{actor: actor},
		Session:  session,
		API:      []Registrar{whoami},
		Checks:   checks,
	}), actor
}

func TestRouterResolvesActorOnAPIRoutes(t *testing.T) {
	router, actor := newTestRouter(nil)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/whoami", actor.ID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Ana Ruiz", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/whoami", "someone-else", nil))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/session/role", "someone-else", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHealth(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		router, _ := newTestRouter(map[string]HealthCheck{
			"redis": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/health", "", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[healthResponse](t, rr)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "ok", resp.Checks["redis"])
	})

	t.Run("failing check degrades", func(t *testing.T) {
		router, _ := newTestRouter(map[string]HealthCheck{
			"postgres": func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/health", "", nil))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		resp := testutil.UnmarshalResponse[healthResponse](t, rr)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "connection refused", resp.Checks["postgres"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router, actor := newTestRouter(nil)
	testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/whoami", actor.ID.String(), nil))

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/metrics", "", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dossier_http_requests_total")
}
