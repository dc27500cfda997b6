package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/utils"
)

type site struct {
	t        *testing.T
	db       *gorm.DB
	router   *gin.Engine
	category models.Category
}

func newSite(t *testing.T) *site {
	t.Helper()
	dir := t.TempDir()
	config.Set(config.AppConfig{
		JWTSecret:          "router-secret",
		GinMode:            "test",
		GinPath:            filepath.Join(dir, "gin.log"),
		DBDriver:           "sqlite",
		DatabaseURI:        "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		LogLevel:           "silent",
		RateLimitPerMinute: 100000,
		MediaRoot:          filepath.Join(dir, "media"),
		Categories:         []string{"General", "Travel"},
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
	if err := config.SeedCategories(db, config.Get().Categories); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := &site{t: t, db: db, router: SetupRouter(db)}
	db.Where("slug = ?", "general").First(&s.category)
	return s
}

func (s *site) user(name string) (models.User, string) {
	s.t.Helper()
	hash, _ := utils.HashPassword("password123")
	u := models.User{Username: name, PasswordHash: hash}
	if err := s.db.Create(&u).Error; err != nil {
		s.t.Fatalf("create user: %v", err)
	}
	token, err := utils.GenerateToken(u.ID, u.Username, time.Hour)
	if err != nil {
		s.t.Fatalf("token: %v", err)
	}
	return u, token
}

func (s *site) post(author models.User, title string) models.Post {
	s.t.Helper()
	p := models.Post{UserID: author.ID, CategoryID: s.category.ID, Title: title, Body: "<p>" + title + " body</p>"}
	if err := s.db.Create(&p).Error; err != nil {
		s.t.Fatalf("create post: %v", err)
	}
	return p
}

func (s *site) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.AddCookie(&http.Cookie{Name: utils.AuthCookieName, Value: token})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *site) get(target, token string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, target, nil), token)
}

func (s *site) postForm(target, token string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, token)
}

func TestPagesRender(t *testing.T) {
	s := newSite(t)
	alice, token := s.user("alice")
	s.post(alice, "Hello World")

	cases := []struct {
		target string
		token  string
		status int
		body   string
	}{
		{"/", "", http.StatusOK, "Hello World"},
		{"/blogs", "", http.StatusOK, "Hello World"},
		{"/category/general", "", http.StatusOK, "Hello World"},
		{"/blog/hello-world", "", http.StatusOK, "Hello World body"},
		{"/blog/hello-world", token, http.StatusOK, "Comment"},
		{"/my-blogs", token, http.StatusOK, "Hello World"},
		{"/add-blog", token, http.StatusOK, "Travel"},
		{"/login", "", http.StatusOK, "Log in"},
		{"/register", "", http.StatusOK, "Create account"},
		{"/blog/missing", "", http.StatusNotFound, "does not exist"},
		{"/category/missing", "", http.StatusNotFound, ""},
		{"/tag/missing", "", http.StatusNotFound, ""},
		{"/no/such/page", "", http.StatusNotFound, ""},
	}
	for _, c := range cases {
		w := s.get(c.target, c.token)
		if w.Code != c.status {
			t.Fatalf("GET %s: status %d want %d", c.target, w.Code, c.status)
		}
		if c.body != "" && !strings.Contains(w.Body.String(), c.body) {
			t.Fatalf("GET %s: body does not contain %q", c.target, c.body)
		}
	}
}

func TestPaginationFallsBackToFirstPage(t *testing.T) {
	s := newSite(t)
	alice, _ := s.user("alice")
	for i := 1; i <= 6; i++ {
		s.post(alice, fmt.Sprintf("Post number %d", i))
	}

	for _, page := range []string{"", "1", "abc", "0", "99", "-1"} {
		w := s.get("/blogs?page="+page, "")
		if w.Code != http.StatusOK {
			t.Fatalf("page %q: status %d", page, w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "Post number 6") || strings.Contains(body, "Post number 2") {
			t.Fatalf("page %q did not render the first page", page)
		}
	}
	if body := s.get("/blogs?page=2", "").Body.String(); !strings.Contains(body, "Post number 2") {
		t.Fatalf("second page missing older posts")
	}
}

func TestAccessRedirects(t *testing.T) {
	s := newSite(t)
	_, token := s.user("alice")

	cases := []struct {
		method   string
		target   string
		token    string
		location string
	}{
		{http.MethodGet, "/my-blogs", "", "/login?next=%2Fmy-blogs"},
		{http.MethodGet, "/add-blog", "", "/login?next=%2Fadd-blog"},
		{http.MethodPost, "/reply/1/1", "", "/login?next=%2Freply%2F1%2F1"},
		{http.MethodGet, "/login", token, "/"},
		{http.MethodGet, "/register", token, "/"},
		{http.MethodGet, "/search", "", "/"},
		{http.MethodGet, "/search?search=+++", "", "/"},
	}
	for _, c := range cases {
		w := s.do(httptest.NewRequest(c.method, c.target, nil), c.token)
		if w.Code != http.StatusFound || w.Header().Get("Location") != c.location {
			t.Fatalf("%s %s: status %d location %q, want 302 %q", c.method, c.target, w.Code, w.Header().Get("Location"), c.location)
		}
	}
}

func TestReplyLoginRoundTrip(t *testing.T) {
	s := newSite(t)
	alice, _ := s.user("alice")
	p := s.post(alice, "Round Trip")
	comment := models.Comment{PostID: p.ID, UserID: alice.ID, Text: "hello"}
	if err := s.db.Create(&comment).Error; err != nil {
		t.Fatalf("create comment: %v", err)
	}
	replyURL := fmt.Sprintf("/reply/%d/%d", p.ID, comment.ID)

	w := s.postForm(replyURL, "", url.Values{"text": {"hi"}})
	loginURL, err := url.Parse(w.Header().Get("Location"))
	if w.Code != http.StatusFound || err != nil || loginURL.Path != "/login" {
		t.Fatalf("anonymous reply: status %d location %q", w.Code, w.Header().Get("Location"))
	}
	next := loginURL.Query().Get("next")

	w = s.postForm("/login", "", url.Values{"username": {"alice"}, "password": {"password123"}, "next": {next}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != replyURL {
		t.Fatalf("login: status %d location %q", w.Code, w.Header().Get("Location"))
	}
	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == utils.AuthCookieName {
			token = c.Value
		}
	}

	w = s.get(replyURL, token)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/blog/round-trip" {
		t.Fatalf("following next: status %d location %q", w.Code, w.Header().Get("Location"))
	}
	if w := s.get("/reply/9999/1", token); w.Code != http.StatusNotFound {
		t.Fatalf("GET reply for a missing post: status %d", w.Code)
	}
	var replies int64
	s.db.Model(&models.Reply{}).Count(&replies)
	if replies != 0 {
		t.Fatalf("GET stored %d replies", replies)
	}
}

func TestSearch(t *testing.T) {
	s := newSite(t)
	alice, _ := s.user("alice")
	s.post(alice, "Gin Routing Tips")
	s.post(alice, "Éclair Recipes")

	if w := s.get("/search?search=routing", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Gin Routing Tips") {
		t.Fatalf("search by title failed: %d", w.Code)
	}
	w := s.get("/search?search="+url.QueryEscape("Éclair"), "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `<h2><a href="/blog/eclair-recipes">`) {
		t.Fatalf("search by non-ASCII title failed: %d", w.Code)
	}
	if strings.Contains(w.Body.String(), `<h2><a href="/blog/gin-routing-tips">`) {
		t.Fatalf("non-ASCII search matched an unrelated post")
	}
	w = s.get("/search?search=zzzz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "No posts matched") {
		t.Fatalf("empty search result not rendered: %d", w.Code)
	}
}

func likeResponse(t *testing.T, w *httptest.ResponseRecorder) (bool, int64) {
	t.Helper()
	var body struct {
		Liked bool  `json:"liked"`
		Like  int64 `json:"like"`
	}
	if w.Code != http.StatusOK {
		t.Fatalf("like status %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode like response: %v", err)
	}
	return body.Liked, body.Like
}

func TestLikeToggle(t *testing.T) {
	s := newSite(t)
	alice, token := s.user("alice")
	p := s.post(alice, "Like me")
	target := fmt.Sprintf("/like/%d", p.ID)

	if w := s.do(httptest.NewRequest(http.MethodPost, target, nil), ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous like: status %d", w.Code)
	}
	if liked, n := likeResponse(t, s.do(httptest.NewRequest(http.MethodPost, target, nil), token)); !liked || n != 1 {
		t.Fatalf("first toggle: %v %d", liked, n)
	}
	if liked, n := likeResponse(t, s.do(httptest.NewRequest(http.MethodPost, target, nil), token)); liked || n != 0 {
		t.Fatalf("second toggle: %v %d", liked, n)
	}
	if w := s.do(httptest.NewRequest(http.MethodPost, "/like/9999", nil), token); w.Code != http.StatusNotFound {
		t.Fatalf("missing post like: status %d", w.Code)
	}
}

func TestCommentsAndReplies(t *testing.T) {
	s := newSite(t)
	alice, token := s.user("alice")
	first := s.post(alice, "First")
	second := s.post(alice, "Second")

	// anonymous POST renders the page without storing anything
	if w := s.postForm("/blog/first", "", url.Values{"text": {"drive-by"}}); w.Code != http.StatusOK {
		t.Fatalf("anonymous comment: status %d", w.Code)
	}
	if w := s.postForm("/blog/first", token, url.Values{"text": {"  "}}); w.Code != http.StatusBadRequest {
		t.Fatalf("blank comment: status %d", w.Code)
	}
	w := s.postForm("/blog/first", token, url.Values{"text": {"Great <b>post</b>"}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/blog/first" {
		t.Fatalf("comment: status %d location %q", w.Code, w.Header().Get("Location"))
	}
	var comments []models.Comment
	s.db.Find(&comments)
	if len(comments) != 1 || comments[0].PostID != first.ID || strings.Contains(comments[0].Text, "<b>") {
		t.Fatalf("unexpected comments %+v", comments)
	}

	replyURL := fmt.Sprintf("/reply/%d/%d", first.ID, comments[0].ID)
	if w := s.postForm(replyURL, token, url.Values{"text": {"thanks"}}); w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/blog/first" {
		t.Fatalf("reply: status %d location %q", w.Code, w.Header().Get("Location"))
	}
	if w := s.postForm(replyURL, token, url.Values{"text": {""}}); w.Code != http.StatusSeeOther {
		t.Fatalf("invalid reply should still redirect, got %d", w.Code)
	}
	wrongPost := fmt.Sprintf("/reply/%d/%d", second.ID, comments[0].ID)
	if w := s.postForm(wrongPost, token, url.Values{"text": {"misplaced"}}); w.Code != http.StatusNotFound {
		t.Fatalf("reply to a comment of another post: status %d", w.Code)
	}
	if w := s.postForm("/reply/9999/1", token, url.Values{"text": {"x"}}); w.Code != http.StatusNotFound {
		t.Fatalf("reply to a missing post: status %d", w.Code)
	}

	var replies int64
	s.db.Model(&models.Reply{}).Count(&replies)
	if replies != 1 {
		t.Fatalf("expected one reply, got %d", replies)
	}
	if body := s.get("/blog/first", "").Body.String(); !strings.Contains(body, "thanks") {
		t.Fatalf("reply not shown on the detail page")
	}
}

func multipartPost(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if image != nil {
		fw, _ := mw.CreateFormFile("image", "cover.png")
		fw.Write(image)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/add-blog", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAddBlog(t *testing.T) {
	s := newSite(t)
	_, token := s.user("alice")
	category := fmt.Sprint(s.category.ID)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

	w := s.do(multipartPost(t, map[string]string{
		"title": "Tagged Post", "body": "Some <script>x</script>text", "category": category, "tags": "A, a, B",
	}, png), token)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/blog/tagged-post" {
		t.Fatalf("add blog: status %d location %q body %s", w.Code, w.Header().Get("Location"), w.Body.String())
	}

	var post models.Post
	if err := s.db.Preload("Tags").Where("slug = ?", "tagged-post").First(&post).Error; err != nil {
		t.Fatalf("load post: %v", err)
	}
	if len(post.Tags) != 2 || strings.Contains(post.Body, "<script>") || !strings.HasPrefix(post.Image, "/media/posts/") {
		t.Fatalf("unexpected post %+v", post)
	}
	var tags int64
	s.db.Model(&models.Tag{}).Count(&tags)
	if tags != 2 {
		t.Fatalf("expected 2 stored tags, got %d", tags)
	}

	flashed := false
	for _, c := range w.Result().Cookies() {
		if strings.Contains(c.Value, "Blog+Added+Successfully") || strings.Contains(c.Value, "Blog%20Added%20Successfully") {
			flashed = true
		}
	}
	if !flashed {
		t.Fatalf("success flash not set")
	}

	// without an image and with the same title the slug gets a suffix
	w = s.postForm("/add-blog", token, url.Values{"title": {"Tagged Post"}, "body": {"again"}, "category": {category}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/blog/tagged-post-2" {
		t.Fatalf("second post: status %d location %q", w.Code, w.Header().Get("Location"))
	}
}

func TestAddBlogRejects(t *testing.T) {
	s := newSite(t)
	_, token := s.user("alice")
	category := fmt.Sprint(s.category.ID)

	cases := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"missing title", multipartPost(t, map[string]string{"body": "b", "category": category}, nil), http.StatusBadRequest},
		{"missing category", multipartPost(t, map[string]string{"title": "t", "body": "b", "category": "9999"}, nil), http.StatusNotFound},
		{"not an image", multipartPost(t, map[string]string{"title": "t", "body": "b", "category": category}, []byte("plain text")), http.StatusBadRequest},
		{"overlong tag", multipartPost(t, map[string]string{"title": "t", "body": "b", "category": category, "tags": "ok, " + strings.Repeat("x", 129)}, nil), http.StatusBadRequest},
	}
	for _, c := range cases {
		w := s.do(c.req, token)
		if w.Code != c.status {
			t.Fatalf("%s: status %d want %d", c.name, w.Code, c.status)
		}
		if c.name == "overlong tag" && !strings.Contains(w.Body.String(), "Each tag must have at most 128 characters.") {
			t.Fatalf("overlong tag error not rendered on the form")
		}
	}
	var tags int64
	s.db.Model(&models.Tag{}).Count(&tags)
	if tags != 0 {
		t.Fatalf("rejected submissions stored %d tags", tags)
	}
	var posts int64
	s.db.Model(&models.Post{}).Count(&posts)
	if posts != 0 {
		t.Fatalf("rejected submissions stored %d posts", posts)
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	s := newSite(t)

	w := s.postForm("/register", "", url.Values{
		"username": {"newbie"}, "password": {"password123"}, "confirm": {"password123"},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("register: status %d", w.Code)
	}
	if w := s.postForm("/register", "", url.Values{
		"username": {"newbie"}, "password": {"password123"}, "confirm": {"password123"},
	}); w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate username: status %d", w.Code)
	}

	if w := s.postForm("/login", "", url.Values{"username": {"newbie"}, "password": {"wrong-pass"}}); w.Code != http.StatusBadRequest {
		t.Fatalf("wrong password: status %d", w.Code)
	}
	w = s.postForm("/login", "", url.Values{"username": {"newbie"}, "password": {"password123"}, "next": {"/my-blogs"}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/my-blogs" {
		t.Fatalf("login: status %d location %q", w.Code, w.Header().Get("Location"))
	}
	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == utils.AuthCookieName {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatalf("auth cookie not set")
	}
	if w := s.get("/my-blogs", token); w.Code != http.StatusOK {
		t.Fatalf("my blogs with fresh token: status %d", w.Code)
	}

	s.do(httptest.NewRequest(http.MethodPost, "/logout", nil), token)
	if w := s.get("/my-blogs", token); w.Code != http.StatusFound {
		t.Fatalf("revoked token still accepted: status %d", w.Code)
	}
}

func TestJSONAPI(t *testing.T) {
	s := newSite(t)
	alice, _ := s.user("alice")
	s.post(alice, "API Post")

	cases := []struct {
		target string
		status int
		code   int
	}{
		{"/api/v1/posts", http.StatusOK, 0},
		{"/api/v1/posts?page=7&page_size=1", http.StatusOK, 0},
		{"/api/v1/posts/api-post", http.StatusOK, 0},
		{"/api/v1/posts/missing", http.StatusNotFound, 40401},
		{"/api/v1/posts/api-post/stats", http.StatusOK, 0},
		{"/api/v1/tags", http.StatusOK, 0},
		{"/api/v1/stats", http.StatusOK, 0},
		{"/api/v1/config/site", http.StatusOK, 0},
		{"/api/v1/nothing", http.StatusNotFound, 40400},
		{"/health", http.StatusOK, 0},
	}
	for _, c := range cases {
		w := s.get(c.target, "")
		var env utils.JSONResponse
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("GET %s: invalid json: %v", c.target, err)
		}
		if w.Code != c.status || env.Code != c.code {
			t.Fatalf("GET %s: status %d code %d, want %d %d", c.target, w.Code, env.Code, c.status, c.code)
		}
	}

	var list struct {
		Data struct {
			Items []struct {
				Title string `json:"title"`
				Slug  string `json:"slug"`
			} `json:"items"`
		} `json:"data"`
	}
	json.Unmarshal(s.get("/api/v1/posts", "").Body.Bytes(), &list)
	if len(list.Data.Items) != 1 || list.Data.Items[0].Slug != "api-post" {
		t.Fatalf("unexpected list %+v", list)
	}
}
