package app

import (
	"net/http"
	"testing"

	"github.com/KarryViber/Neolish-sub001/internal/store"
)

func TestOutlineCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedMember(t, "team_a", "editor")

	created := env.do(t, http.MethodPost, "/api/outlines", token, map[string]any{
		"title":   "Launch plan",
		"content": "# Launch\n\n- teaser\n- announcement",
		"teamId":  "team_a",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create: %d, body %s", created.Code, created.Body.String())
	}
	outlineID, _ := decodeResponse(t, created)["id"].(string)
	if outlineID == "" {
		t.Fatal("missing outline id")
	}

	list := env.do(t, http.MethodGet, "/api/outlines?teamId=team_a", token, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list: %d", list.Code)
	}
	outlines, _ := decodeResponse(t, list)["outlines"].([]any)
	if len(outlines) != 1 {
		t.Fatalf("outlines = %d, want 1", len(outlines))
	}

	updated := env.do(t, http.MethodPut, "/api/outlines/"+outlineID, token, map[string]any{
		"title": "Launch plan v2",
	})
	if updated.Code != http.StatusOK {
		t.Fatalf("update: %d", updated.Code)
	}
	if got := decodeResponse(t, updated)["title"]; got != "Launch plan v2" {
		t.Errorf("title = %v", got)
	}
	// Fields omitted from the update keep their values.
	if env.store.outlines[outlineID].Content == "" {
		t.Error("content was cleared by partial update")
	}

	deleted := env.do(t, http.MethodDelete, "/api/outlines/"+outlineID, token, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("delete: %d", deleted.Code)
	}
	missing := env.do(t, http.MethodGet, "/api/outlines/"+outlineID, token, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d, want 404", missing.Code)
	}
}

func TestOutlineCreateRequiresTitleAndTeam(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedMember(t, "team_a", "editor")

	recorder := env.do(t, http.MethodPost, "/api/outlines", token, map[string]any{"teamId": "team_a"})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing title: %d, want 422", recorder.Code)
	}
	recorder = env.do(t, http.MethodPost, "/api/outlines", token, map[string]any{"title": "x"})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing teamId: %d, want 422", recorder.Code)
	}
}

func TestStyleProfileCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedMember(t, "team_a", "editor")

	created := env.do(t, http.MethodPost, "/api/style-profiles", token, map[string]any{
		"name":        "Corporate",
		"description": "Formal tone",
		"profile":     map[string]any{"tone": "formal", "person": "third"},
		"teamId":      "team_a",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create: %d, body %s", created.Code, created.Body.String())
	}
	payload := decodeResponse(t, created)
	profileID, _ := payload["id"].(string)
	profile, _ := payload["profile"].(map[string]any)
	if profile["tone"] != "formal" {
		t.Errorf("profile = %v", payload["profile"])
	}

	got := env.do(t, http.MethodGet, "/api/style-profiles/"+profileID, token, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get: %d", got.Code)
	}
}

func TestAudienceCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedMember(t, "team_a", "editor")

	created := env.do(t, http.MethodPost, "/api/audiences", token, map[string]any{
		"name":       "SMB founders",
		"attributes": map[string]any{"ageRange": "25-45", "interests": []string{"growth"}},
		"teamId":     "team_a",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create: %d, body %s", created.Code, created.Body.String())
	}
	audienceID, _ := decodeResponse(t, created)["id"].(string)

	updated := env.do(t, http.MethodPut, "/api/audiences/"+audienceID, token, map[string]any{
		"name": "SMB owners",
	})
	if updated.Code != http.StatusOK {
		t.Fatalf("update: %d", updated.Code)
	}
	if env.store.audiences[audienceID].Name != "SMB owners" {
		t.Errorf("name = %q", env.store.audiences[audienceID].Name)
	}
	if len(env.store.audiences[audienceID].Attributes) == 0 {
		t.Error("attributes were cleared by partial update")
	}
}

func TestMerchandiseListIsTeamScoped(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedMember(t, "team_a", "editor")
	env.store.merchandise["mch_a"] = store.Merchandise{ID: "mch_a", TeamID: "team_a", Name: "Widget"}
	env.store.merchandise["mch_b"] = store.Merchandise{ID: "mch_b", TeamID: "team_b", Name: "Gadget"}

	list := env.do(t, http.MethodGet, "/api/merchandise?teamId=team_a", token, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list: %d", list.Code)
	}
	items, _ := decodeResponse(t, list)["merchandise"].([]any)
	if len(items) != 1 {
		t.Fatalf("merchandise = %d, want 1", len(items))
	}

	other := env.do(t, http.MethodGet, "/api/merchandise?teamId=team_b", token, nil)
	if other.Code != http.StatusForbidden {
		t.Fatalf("foreign team list: %d, want 403", other.Code)
	}
}

func TestListWritingPurposes(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedMember(t, "team_a", "editor")
	env.store.purposes["wp_seo"] = store.WritingPurpose{ID: "wp_seo", Name: "SEO", PromptText: "Optimize for search"}

	recorder := env.do(t, http.MethodGet, "/api/purposes", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	purposes, _ := decodeResponse(t, recorder)["purposes"].([]any)
	if len(purposes) != 1 {
		t.Fatalf("purposes = %d, want 1", len(purposes))
	}
}
