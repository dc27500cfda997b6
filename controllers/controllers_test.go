package controllers

import (
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	config.Set(config.AppConfig{
		JWTSecret:   "controllers-secret",
		DBDriver:    "sqlite",
		DatabaseURI: "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		LogLevel:    "silent",
	})
	db, err := config.OpenDatabase(config.Get())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	if err := config.Migrate(db, models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fixture struct {
	user     models.User
	category models.Category
}

func newFixture(t *testing.T, db *gorm.DB, username, category string) fixture {
	t.Helper()
	f := fixture{user: models.User{Username: username}, category: models.Category{Title: category}}
	if err := db.Create(&f.user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := db.Create(&f.category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return f
}

func (f fixture) post(t *testing.T, db *gorm.DB, title string, tags ...string) models.Post {
	t.Helper()
	p := models.Post{UserID: f.user.ID, CategoryID: f.category.ID, Title: title, Body: "body of " + title}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		stored, err := reconcileTags(tx, tags)
		if err != nil || len(stored) == 0 {
			return err
		}
		return tx.Model(&p).Association("Tags").Append(stored)
	})
	if err != nil {
		t.Fatalf("create post %q: %v", title, err)
	}
	return p
}

func TestReconcileTagsDeduplicates(t *testing.T) {
	db := openTestDB(t)
	f := newFixture(t, db, "alice", "General")

	f.post(t, db, "First", "A", "a", "B")
	var tags []models.Tag
	db.Order("slug").Find(&tags)
	if len(tags) != 2 || tags[0].Title != "A" || tags[1].Title != "B" {
		t.Fatalf("expected tags A and B, got %+v", tags)
	}

	// later posts reuse tags by case-insensitive title or by slug
	second := f.post(t, db, "Second", "b", "A!", "new one", "???")
	var count int64
	db.Model(&models.Tag{}).Count(&count)
	if count != 3 {
		t.Fatalf("expected 3 tags in total, got %d", count)
	}
	var attached []models.Tag
	db.Model(&second).Association("Tags").Find(&attached)
	if len(attached) != 3 {
		t.Fatalf("expected 3 tags on second post, got %+v", attached)
	}
}

func TestToggleLikeTwiceRestoresState(t *testing.T) {
	db := openTestDB(t)
	f := newFixture(t, db, "alice", "General")
	p := f.post(t, db, "Likeable")
	other := models.User{Username: "bob"}
	db.Create(&other)

	if liked, n, err := toggleLike(db, p.ID, other.ID); err != nil || !liked || n != 1 {
		t.Fatalf("first toggle: liked=%v n=%d err=%v", liked, n, err)
	}
	if liked, n, err := toggleLike(db, p.ID, f.user.ID); err != nil || !liked || n != 2 {
		t.Fatalf("second liker: liked=%v n=%d err=%v", liked, n, err)
	}
	if liked, n, err := toggleLike(db, p.ID, other.ID); err != nil || liked || n != 1 {
		t.Fatalf("untoggle: liked=%v n=%d err=%v", liked, n, err)
	}
	if ok, _ := hasLiked(db, p.ID, other.ID); ok {
		t.Fatalf("like should be removed")
	}
}

func TestSearchPosts(t *testing.T) {
	db := openTestDB(t)
	alice := newFixture(t, db, "alice", "Travel")
	bob := newFixture(t, db, "bob_writer", "Cooking")

	alice.post(t, db, "Hiking in the Alps", "mountains")
	bob.post(t, db, "Perfect Pasta", "italian")
	bob.post(t, db, "100% Rye Bread")
	alice.post(t, db, "Under_score title")
	alice.post(t, db, "Éclair au chocolat", "Pâtisserie")

	cases := []struct {
		query string
		want  []string
	}{
		{"alps", []string{"Hiking in the Alps"}},
		{"TRAVEL", []string{"Hiking in the Alps", "Under_score title", "Éclair au chocolat"}},
		{"writer", []string{"Perfect Pasta", "100% Rye Bread"}},
		{"Italian", []string{"Perfect Pasta"}},
		{"100%", []string{"100% Rye Bread"}},
		{"%", []string{"100% Rye Bread"}},
		{"n_t", nil},
		{"_", []string{"Perfect Pasta", "100% Rye Bread", "Under_score title"}},
		{"Éclair", []string{"Éclair au chocolat"}},
		{"Pâtisserie", []string{"Éclair au chocolat"}},
		{"CHOCOLAT", []string{"Éclair au chocolat"}},
		{"nothing matches this", nil},
	}
	for i, c := range cases {
		posts, err := searchPosts(db, c.query)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		var got []string
		for _, p := range posts {
			got = append(got, p.Title)
		}
		if strings.Join(got, "|") != strings.Join(c.want, "|") {
			t.Fatalf("case %d (%q): got %q want %q", i, c.query, got, c.want)
		}
	}
}

func TestSummarizeCountsPageInOneQuery(t *testing.T) {
	db := openTestDB(t)
	f := newFixture(t, db, "alice", "General")
	quiet := f.post(t, db, "Quiet")
	busy := f.post(t, db, "Busy")
	bob := models.User{Username: "bob"}
	db.Create(&bob)
	toggleLike(db, busy.ID, f.user.ID)
	toggleLike(db, busy.ID, bob.ID)
	db.Create(&models.Comment{PostID: busy.ID, UserID: bob.ID, Text: "nice"})

	statements := 0
	count := func(*gorm.DB) { statements++ }
	db.Callback().Query().After("gorm:query").Register("test:count_query", count)
	db.Callback().Row().After("gorm:row").Register("test:count_row", count)

	items, err := (&APIController{db: db}).summarize([]models.Post{quiet, busy})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if statements != 1 {
		t.Fatalf("expected one count query for the page, got %d", statements)
	}
	if len(items) != 2 || items[0].LikeCount != 0 || items[0].CommentCount != 0 ||
		items[1].LikeCount != 2 || items[1].CommentCount != 1 {
		t.Fatalf("unexpected summaries %+v", items)
	}
}

func TestLikePattern(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Go", "%Go%"},
		{"Éclair", "%Éclair%"},
		{"50%", "%50!%%"},
		{"a_b", "%a!_b%"},
		{"wow!", "%wow!!%"},
	}
	for i, c := range cases {
		if got := likePattern(c.in); got != c.want {
			t.Fatalf("case %d: got %q want %q", i, got, c.want)
		}
	}
}

func TestSafeNext(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"/my-blogs", "/my-blogs"},
		{"/blog/x?page=2", "/blog/x?page=2"},
		{"https://evil.example", "/"},
		{"//evil.example", "/"},
		{"/\\evil.example", "/"},
	}
	for i, c := range cases {
		if got := safeNext(c.in); got != c.want {
			t.Fatalf("case %d (%q): got %q want %q", i, c.in, got, c.want)
		}
	}
}

func TestEnsureUniqueUsername(t *testing.T) {
	db := openTestDB(t)
	db.Create(&models.User{Username: "octo_cat"})
	a := NewAuthController(db)

	cases := []struct{ base, want string }{
		{"Octo-Cat", "octo_cat_1"},
		{"newbie", "newbie"},
		{"x", "github_99"},
	}
	for i, c := range cases {
		got, err := a.ensureUniqueUsername(c.base, "github", "99")
		if err != nil || got != c.want {
			t.Fatalf("case %d: got %q (%v) want %q", i, got, err, c.want)
		}
	}
}
