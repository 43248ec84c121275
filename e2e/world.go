// Package e2e drives the HTTP API end to end with godog feature files.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/prometheus/client_golang/prometheus"

	"dossier/internal/appstate"
	sessionhandler "dossier/internal/appstate/handler"
	sessionstore "dossier/internal/appstate/store"
	httpapi "dossier/internal/http"
	"dossier/internal/platform/metrics"
	"dossier/internal/platform/middleware"
	profilehandler "dossier/internal/profile/handler"
	"dossier/internal/profile/service"
	profilestore "dossier/internal/profile/store"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/audit/publisher"
	auditmemory "dossier/pkg/platform/audit/store/memory"
	"dossier/pkg/testutil"
)

// World is the per-scenario state: a fresh in-memory server, the actors and
// whatever the previous step returned.
type World struct {
	server *httptest.Server
	client *http.Client

	actors map[id.Role]id.Actor

	profileID string
	sections  map[string]string
	items     map[string]string

	status int
	body   []byte
}

// NewWorld starts a server with in-memory storage.
func NewWorld(ctx context.Context) (*World, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	w := &World{
		client:   &http.Client{},
		actors:   map[id.Role]id.Actor{},
		sections: map[string]string{},
		items:    map[string]string{},
	}
	for _, role := range []id.Role{id.RoleSubject, id.RoleReviewer, id.RoleObserver} {
		w.actors[role] = testutil.NewActor("E2E "+role.String(), role)
	}

	activity := publisher.NewPublisher(auditmemory.NewInMemoryStore(), publisher.WithLogger(logger))
	profiles := service.New(profilestore.NewInMemory(),
		service.WithLogger(logger),
		service.WithAuditPublisher(activity),
	)
	session, err := appstate.New(ctx, sessionstore.NewInMemory(),
		appstate.NewDirectory(w.actors[id.RoleSubject], w.actors[id.RoleReviewer], w.actors[id.RoleObserver]),
		appstate.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	w.server = httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Logger:   logger,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Actors:   session,
		Session:  sessionhandler.New(session, logger),
		API:      []httpapi.Registrar{profilehandler.New(profiles, logger)},
	}))
	return w, nil
}

// Close stops the server.
func (w *World) Close() {
	if w.server != nil {
		w.server.Close()
	}
}

func (w *World) do(ctx context.Context, role id.Role, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.server.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorHeader, w.actors[role].ID.String())

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	w.status = resp.StatusCode
	w.body, err = io.ReadAll(resp.Body)
	return err
}

func (w *World) decode(v any) error {
	if err := json.Unmarshal(w.body, v); err != nil {
		return fmt.Errorf("decode response %q: %w", w.body, err)
	}
	return nil
}

func (w *World) expectStatus(want int) error {
	if w.status != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, w.status, w.body)
	}
	return nil
}
