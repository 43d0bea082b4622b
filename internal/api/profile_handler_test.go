package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"conectabio/internal/database"
	"conectabio/internal/layout"
)

func TestGetMyProfile_ReconcilesLayout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	placed := seedCard(t, db, database.Card{UserID: 1, Type: "note", Title: "placed"})
	unplaced := seedCard(t, db, database.Card{UserID: 1, Type: "title", Title: "new"})

	raw := fmt.Sprintf(`[{"i":"%d","x":2,"y":3,"w":1,"h":2},{"i":"999","x":0,"y":0,"w":1,"h":1}]`, placed.ID)
	profile := database.Profile{UserID: 1, Username: "ana", DisplayName: "Ana", Layout: datatypes.JSON(raw)}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	c, w := newJSONContext(t, http.MethodGet, "/v1/profiles/me", nil)
	c.Set("userID", uint(1))

	h.GetMyProfile(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp profileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Cards) != 2 {
		t.Fatalf("expected 2 cards got %d", len(resp.Cards))
	}
	if len(resp.Layout) != 2 {
		t.Fatalf("expected one placement per card got %d", len(resp.Layout))
	}

	byKey := map[string]layout.Placement{}
	for _, p := range resp.Layout {
		byKey[p.I] = p
	}
	if _, ok := byKey["999"]; ok {
		t.Fatal("orphan placement survived reconciliation")
	}
	got, ok := byKey[layout.CardKey(placed.ID)]
	if !ok {
		t.Fatal("saved placement missing")
	}
	if got.X != 2 || got.Y != 3 {
		t.Fatalf("saved position lost: %+v", got)
	}
	synth, ok := byKey[layout.CardKey(unplaced.ID)]
	if !ok {
		t.Fatal("synthesized placement missing")
	}
	if synth.W != layout.Columns || synth.H != 1 {
		t.Fatalf("title defaults not applied: %+v", synth)
	}
	if synth.Y != layout.AppendRow {
		t.Fatalf("synthesized row should append, got %d", synth.Y)
	}
}

func TestGetMyProfile_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	c, w := newJSONContext(t, http.MethodGet, "/v1/profiles/me", nil)
	c.Set("userID", uint(42))

	h.GetMyProfile(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestUpdateMyProfile_SavesFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	profile := database.Profile{UserID: 1, Username: "ana"}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	card := seedCard(t, db, database.Card{UserID: 1, Type: "note", Title: "n"})

	body := map[string]any{
		"display_name": "Ana Clara",
		"bio":          "plant person",
		"layout":       []map[string]any{{"i": layout.CardKey(card.ID), "x": 0, "y": 1, "w": 1, "h": 2}},
	}
	c, w := newJSONContext(t, http.MethodPut, "/v1/profiles/me", body)
	c.Set("userID", uint(1))

	h.UpdateMyProfile(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var reloaded database.Profile
	if err := db.First(&reloaded, profile.ID).Error; err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	if reloaded.DisplayName != "Ana Clara" || reloaded.Bio != "plant person" {
		t.Fatalf("fields not saved: %+v", reloaded)
	}
	saved, err := layout.ParseLayout(reloaded.Layout)
	if err != nil || len(saved) != 1 {
		t.Fatalf("layout not saved: %v %d", err, len(saved))
	}
}

func TestUpdateMyProfile_RejectsInvalidLayout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	profile := database.Profile{UserID: 1, Username: "ana", Bio: "before"}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	body := map[string]any{"bio": "after", "layout": "not an array"}
	c, w := newJSONContext(t, http.MethodPut, "/v1/profiles/me", body)
	c.Set("userID", uint(1))

	h.UpdateMyProfile(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}

	var reloaded database.Profile
	if err := db.First(&reloaded, profile.ID).Error; err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	if reloaded.Bio != "before" {
		t.Fatal("bad layout request must not persist anything")
	}
}

func TestUpdateMyProfile_RejectsForeignAvatarKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	profile := database.Profile{UserID: 1, Username: "ana"}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	body := map[string]any{"avatar_key": "user-assets/2/sneaky.png"}
	c, w := newJSONContext(t, http.MethodPut, "/v1/profiles/me", body)
	c.Set("userID", uint(1))

	h.UpdateMyProfile(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestGetPublicPage_CanonicalRedirect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	profile := database.Profile{UserID: 1, Username: "AnaClara"}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	c, w := newJSONContext(t, http.MethodGet, "/v1/pages/anaclara", nil)
	c.Params = gin.Params{{Key: "username", Value: "anaclara"}}

	h.GetPublicPage(c)

	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301 got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/v1/pages/AnaClara" {
		t.Fatalf("wrong canonical location: %q", loc)
	}
}

func TestGetPublicPage_CanonicalSpellingServesPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	profile := database.Profile{UserID: 1, Username: "AnaClara", DisplayName: "Ana"}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	seedCard(t, db, database.Card{UserID: 1, Type: "link", Title: "blog"})

	c, w := newJSONContext(t, http.MethodGet, "/v1/pages/AnaClara", nil)
	c.Params = gin.Params{{Key: "username", Value: "AnaClara"}}

	h.GetPublicPage(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp profileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Username != "AnaClara" || len(resp.Cards) != 1 || len(resp.Layout) != 1 {
		t.Fatalf("unexpected page payload: %+v", resp)
	}
}

func TestGetPublicPage_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewProfileHandler(db, nil, nil)

	c, w := newJSONContext(t, http.MethodGet, "/v1/pages/nobody", nil)
	c.Params = gin.Params{{Key: "username", Value: "nobody"}}

	h.GetPublicPage(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}
