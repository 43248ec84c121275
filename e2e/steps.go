package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"

	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
)

type worldKey struct{}

func world(ctx context.Context) *World {
	return ctx.Value(worldKey{}).(*World)
}

// RegisterSteps wires the step definitions and gives every scenario its own
// World.
func RegisterSteps(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w, err := NewWorld(ctx)
		if err != nil {
			return ctx, err
		}
		return context.WithValue(ctx, worldKey{}, w), nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if w, ok := ctx.Value(worldKey{}).(*World); ok {
			w.Close()
		}
		return ctx, err
	})

	// Subject steps
	sc.Step(`^the subject "([^"]*)" has a profile$`, subjectHasProfile)
	sc.Step(`^the subject added "([^"]*)" to "([^"]*)" with evidence "([^"]*)"$`, subjectAddedItem)
	sc.Step(`^the (subject|reviewer) submits the "([^"]*)" section$`, submitSection)
	sc.Step(`^the subject attaches "([^"]*)" of (\d+) bytes to "([^"]*)"$`, attachFile)

	// Reviewer steps
	sc.Step(`^the reviewer marks "([^"]*)" as "([^"]*)" with remark "([^"]*)"$`, markItem)
	sc.Step(`^the reviewer finalizes "([^"]*)" with remark "([^"]*)"$`, finalize)

	// Assertions
	sc.Step(`^the response status should be (\d+)$`, responseStatus)
	sc.Step(`^the error code should be "([^"]*)"$`, errorCode)
	sc.Step(`^the "([^"]*)" section should be "([^"]*)"$`, sectionState)
	sc.Step(`^the reviewer should see (\d+) profiles? in the review queue$`, queueLength)
	sc.Step(`^the observer should see a "([^"]*)" activity entry$`, activityEntry)
}

func subjectHasProfile(ctx context.Context, name string) error {
	w := world(ctx)
	if err := w.do(ctx, id.RoleSubject, http.MethodPost, "/profiles", map[string]string{"name": name}); err != nil {
		return err
	}
	if err := w.expectStatus(http.StatusCreated); err != nil {
		return err
	}
	var p models.Profile
	if err := w.decode(&p); err != nil {
		return err
	}
	w.profileID = p.ID.String()
	for _, s := range p.Sections {
		w.sections[string(s.CatalogID)] = s.ID.String()
	}
	return nil
}

func subjectAddedItem(ctx context.Context, title, section, filename string) error {
	w := world(ctx)
	sectionID, ok := w.sections[section]
	if !ok {
		return fmt.Errorf("unknown section %q", section)
	}
	path := fmt.Sprintf("/profiles/%s/sections/%s/items", w.profileID, sectionID)
	if err := w.do(ctx, id.RoleSubject, http.MethodPost, path, map[string]string{"title": title}); err != nil {
		return err
	}
	if err := w.expectStatus(http.StatusCreated); err != nil {
		return err
	}
	var created struct {
		ItemID string `json:"item_id"`
	}
	if err := w.decode(&created); err != nil {
		return err
	}
	w.items[title] = created.ItemID

	if err := attachFile(ctx, filename, 2048, title); err != nil {
		return err
	}
	return w.expectStatus(http.StatusOK)
}

func submitSection(ctx context.Context, role, section string) error {
	w := world(ctx)
	path := fmt.Sprintf("/profiles/%s/sections/%s/submit", w.profileID, w.sections[section])
	return w.do(ctx, id.Role(role), http.MethodPost, path, nil)
}

func attachFile(ctx context.Context, filename string, size int64, title string) error {
	w := world(ctx)
	path := fmt.Sprintf("/profiles/%s/items/%s/evidence", w.profileID, w.items[title])
	return w.do(ctx, id.RoleSubject, http.MethodPost, path, map[string]any{
		"files": []models.FileUpload{{
			Filename:   filename,
			MediaType:  models.MediaTypePDF,
			Size:       size,
			StorageRef: "blob://" + filename,
		}},
	})
}

func markItem(ctx context.Context, title, outcome, remark string) error {
	w := world(ctx)
	path := fmt.Sprintf("/profiles/%s/items/%s/decision", w.profileID, w.items[title])
	if err := w.do(ctx, id.RoleReviewer, http.MethodPost, path, map[string]string{"outcome": outcome, "remark": remark}); err != nil {
		return err
	}
	return w.expectStatus(http.StatusOK)
}

func finalize(ctx context.Context, section, remark string) error {
	w := world(ctx)
	path := fmt.Sprintf("/profiles/%s/sections/%s/finalize", w.profileID, w.sections[section])
	return w.do(ctx, id.RoleReviewer, http.MethodPost, path, map[string]string{"remark": remark})
}

func responseStatus(ctx context.Context, status int) error {
	return world(ctx).expectStatus(status)
}

func errorCode(ctx context.Context, code string) error {
	w := world(ctx)
	var resp struct {
		Error string `json:"error"`
	}
	if err := w.decode(&resp); err != nil {
		return err
	}
	if resp.Error != code {
		return fmt.Errorf("expected error %q, got %q", code, resp.Error)
	}
	return nil
}

func sectionState(ctx context.Context, section, state string) error {
	w := world(ctx)
	if err := w.do(ctx, id.RoleSubject, http.MethodGet, "/profiles/"+w.profileID, nil); err != nil {
		return err
	}
	var p models.Profile
	if err := w.decode(&p); err != nil {
		return err
	}
	s, _, ok := p.SectionByCatalog(models.CatalogID(section))
	if !ok {
		return fmt.Errorf("unknown section %q", section)
	}
	if string(s.State) != state {
		return fmt.Errorf("section %s is %s, expected %s", section, s.State, state)
	}
	return nil
}

func queueLength(ctx context.Context, n int) error {
	w := world(ctx)
	if err := w.do(ctx, id.RoleReviewer, http.MethodGet, "/review-queue", nil); err != nil {
		return err
	}
	var queue []json.RawMessage
	if err := w.decode(&queue); err != nil {
		return err
	}
	if len(queue) != n {
		return fmt.Errorf("expected %d queued profiles, got %d", n, len(queue))
	}
	return nil
}

func activityEntry(ctx context.Context, action string) error {
	w := world(ctx)
	if err := w.do(ctx, id.RoleObserver, http.MethodGet, "/audit?action="+action, nil); err != nil {
		return err
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := w.decode(&resp); err != nil {
		return err
	}
	if resp.Total == 0 {
		return fmt.Errorf("no %s entry in the activity log", action)
	}
	return nil
}
