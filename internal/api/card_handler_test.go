package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"conectabio/internal/database"
	"conectabio/internal/layout"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.User{}, &database.Profile{}, &database.Card{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newJSONContext(t *testing.T, method, target string, payload any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

func seedCard(t *testing.T, db *gorm.DB, card database.Card) database.Card {
	t.Helper()
	if err := db.Create(&card).Error; err != nil {
		t.Fatalf("seed card: %v", err)
	}
	return card
}

func TestCreateCard_TypeDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewCardHandler(db, nil, 0)

	c, w := newJSONContext(t, http.MethodPost, "/v1/cards", map[string]any{"type": "note"})
	c.Set("userID", uint(1))

	h.CreateCard(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	var resp cardResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Title != "New note" {
		t.Fatalf("expected seeded title got %q", resp.Title)
	}
	if resp.Type != "note" {
		t.Fatalf("expected note type got %q", resp.Type)
	}
}

func TestCreateCard_UnknownType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewCardHandler(db, nil, 0)

	c, w := newJSONContext(t, http.MethodPost, "/v1/cards", map[string]any{"type": "carousel"})
	c.Set("userID", uint(1))

	h.CreateCard(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestCreateCard_LimitReached(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewCardHandler(db, nil, 2)

	seedCard(t, db, database.Card{UserID: 1, Type: "note", Title: "a"})
	seedCard(t, db, database.Card{UserID: 1, Type: "link", Title: "b"})

	c, w := newJSONContext(t, http.MethodPost, "/v1/cards", map[string]any{"type": "note"})
	c.Set("userID", uint(1))

	h.CreateCard(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestUpdateCard_PartialUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewCardHandler(db, nil, 0)

	card := seedCard(t, db, database.Card{UserID: 1, Type: "note", Title: "old", Content: "keep me"})

	c, w := newJSONContext(t, http.MethodPatch, "/v1/cards/1", map[string]any{"title": "renamed"})
	c.Set("userID", uint(1))
	c.Params = gin.Params{{Key: "id", Value: fmt.Sprint(card.ID)}}

	h.UpdateCard(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var reloaded database.Card
	if err := db.First(&reloaded, card.ID).Error; err != nil {
		t.Fatalf("reload card: %v", err)
	}
	if reloaded.Title != "renamed" {
		t.Fatalf("title not updated: %q", reloaded.Title)
	}
	if reloaded.Content != "keep me" {
		t.Fatalf("untouched field changed: %q", reloaded.Content)
	}
}

func TestUpdateCard_OwnershipEnforced(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewCardHandler(db, nil, 0)

	card := seedCard(t, db, database.Card{UserID: 7, Type: "note", Title: "theirs"})

	c, w := newJSONContext(t, http.MethodPatch, "/v1/cards/1", map[string]any{"title": "mine now"})
	c.Set("userID", uint(1))
	c.Params = gin.Params{{Key: "id", Value: fmt.Sprint(card.ID)}}

	h.UpdateCard(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestDeleteCard_PrunesLayoutPlacement(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewCardHandler(db, nil, 0)

	first := seedCard(t, db, database.Card{UserID: 1, Type: "note", Title: "a"})
	second := seedCard(t, db, database.Card{UserID: 1, Type: "note", Title: "b"})

	raw := fmt.Sprintf(`[{"i":"%d","x":0,"y":0,"w":1,"h":2},{"i":"%d","x":1,"y":0,"w":1,"h":2}]`, first.ID, second.ID)
	profile := database.Profile{UserID: 1, Username: "ana", Layout: datatypes.JSON(raw)}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	c, w := newJSONContext(t, http.MethodDelete, "/v1/cards/1", nil)
	c.Set("userID", uint(1))
	c.Params = gin.Params{{Key: "id", Value: fmt.Sprint(first.ID)}}

	h.DeleteCard(c)
	c.Writer.WriteHeaderNow()

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d body=%s", w.Code, w.Body.String())
	}

	var gone database.Card
	if err := db.First(&gone, first.ID).Error; err == nil {
		t.Fatal("card row still present after delete")
	}

	var reloaded database.Profile
	if err := db.First(&reloaded, profile.ID).Error; err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	saved, err := layout.ParseLayout(reloaded.Layout)
	if err != nil {
		t.Fatalf("parse layout: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected one placement left got %d", len(saved))
	}
	if saved[0].I != layout.CardKey(second.ID) {
		t.Fatalf("wrong placement survived: %q", saved[0].I)
	}
}

func TestDeleteCard_NotOwned(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	h := NewCardHandler(db, nil, 0)

	card := seedCard(t, db, database.Card{UserID: 9, Type: "note", Title: "x"})

	c, w := newJSONContext(t, http.MethodDelete, "/v1/cards/1", nil)
	c.Set("userID", uint(1))
	c.Params = gin.Params{{Key: "id", Value: fmt.Sprint(card.ID)}}

	h.DeleteCard(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}
