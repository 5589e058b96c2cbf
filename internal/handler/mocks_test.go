package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blogman/internal/auth"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
	"github.com/hitoshi/blogman/internal/user"
)

// --- モック定義 ---

// sessionStore はログイン済みセッションを保持するテスト用のSessionFinder。
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]*model.Session{}}
}

func (s *sessionStore) FindByID(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id], nil
}

func (s *sessionStore) put(sess *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *sessionStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn    func(ctx context.Context, email, password string) (*model.Session, error)
	logoutFn   func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: "new-user"}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockPostService struct {
	createFn   func(ctx context.Context, sess *model.Session, in post.CreateInput) (*model.Post, error)
	viewFn     func(ctx context.Context, idOrSlug string) (*model.Post, error)
	editableFn func(ctx context.Context, sess *model.Session, id string) (*model.Post, error)
	editFn     func(ctx context.Context, sess *model.Session, id string, in post.EditInput) (*model.Post, error)
	deleteFn   func(ctx context.Context, sess *model.Session, id string) error
	listFn     func(ctx context.Context) ([]*model.Post, error)
}

func (m *mockPostService) Create(ctx context.Context, sess *model.Session, in post.CreateInput) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, sess, in)
	}
	return &model.Post{ID: "p1"}, nil
}

func (m *mockPostService) View(ctx context.Context, idOrSlug string) (*model.Post, error) {
	if m.viewFn != nil {
		return m.viewFn(ctx, idOrSlug)
	}
	return nil, model.NewPostNotFoundError(idOrSlug)
}

func (m *mockPostService) Editable(ctx context.Context, sess *model.Session, id string) (*model.Post, error) {
	if m.editableFn != nil {
		return m.editableFn(ctx, sess, id)
	}
	return &model.Post{ID: id}, nil
}

func (m *mockPostService) Edit(ctx context.Context, sess *model.Session, id string, in post.EditInput) (*model.Post, error) {
	if m.editFn != nil {
		return m.editFn(ctx, sess, id, in)
	}
	return &model.Post{ID: id}, nil
}

func (m *mockPostService) Delete(ctx context.Context, sess *model.Session, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, sess, id)
	}
	return nil
}

func (m *mockPostService) List(ctx context.Context) ([]*model.Post, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockUserService struct {
	profileFn       func(ctx context.Context, sess *model.Session) (*model.User, error)
	updateProfileFn func(ctx context.Context, sess *model.Session, in user.ProfileInput) (*model.User, error)
	listUsersFn     func(ctx context.Context, sess *model.Session) ([]*model.User, error)
	userFn          func(ctx context.Context, sess *model.Session, userID string) (*model.User, error)
	updateUserFn    func(ctx context.Context, sess *model.Session, userID string, in user.AdminUserInput) (*model.User, error)
}

func (m *mockUserService) Profile(ctx context.Context, sess *model.Session) (*model.User, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, sess)
	}
	return &model.User{}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, sess *model.Session, in user.ProfileInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, sess, in)
	}
	return &model.User{}, nil
}

func (m *mockUserService) ListUsers(ctx context.Context, sess *model.Session) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, sess)
	}
	return nil, nil
}

func (m *mockUserService) User(ctx context.Context, sess *model.Session, userID string) (*model.User, error) {
	if m.userFn != nil {
		return m.userFn(ctx, sess, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) UpdateUser(ctx context.Context, sess *model.Session, userID string, in user.AdminUserInput) (*model.User, error) {
	if m.updateUserFn != nil {
		return m.updateUserFn(ctx, sess, userID, in)
	}
	return &model.User{ID: userID}, nil
}

type mockUploadService struct {
	acceptFn func(ctx context.Context, file io.ReadSeeker, header *multipart.FileHeader) (string, error)
}

func (m *mockUploadService) Accept(ctx context.Context, file io.ReadSeeker, header *multipart.FileHeader) (string, error) {
	if m.acceptFn != nil {
		return m.acceptFn(ctx, file, header)
	}
	return "/uploads/x_" + header.Filename, nil
}

var (
	_ AuthServiceInterface   = (*mockAuthService)(nil)
	_ PostServiceInterface   = (*mockPostService)(nil)
	_ UserServiceInterface   = (*mockUserService)(nil)
	_ UploadServiceInterface = (*mockUploadService)(nil)
)

// --- テスト用サーバー ---

type testApp struct {
	t        *testing.T
	server   *httptest.Server
	client   *http.Client
	sessions *sessionStore
}

// newTestDeps はモックで埋めたRouterDepsを返す。
func newTestDeps(sessions *sessionStore) *RouterDeps {
	return &RouterDeps{
		SessionFinder: sessions,
		Flashes:       middleware.NewFlashStore([]byte("0123456789abcdef0123456789abcdef"), false, ""),
		RateLimiter:   middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, 1000)),
		Gatherer:      prometheus.NewRegistry(),
		AuthService:   &mockAuthService{},
		AuthConfig:    AuthHandlerConfig{SessionMaxAge: 3600},
		PostService:   &mockPostService{},
		UploadService: &mockUploadService{},
		UserService:   &mockUserService{},
	}
}

// startApp はRouterDepsからテストサーバーとCookie付きクライアントを起動する。
func startApp(t *testing.T, deps *RouterDeps, sessions *sessionStore) *testApp {
	t.Helper()
	router, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testApp{
		t:        t,
		server:   server,
		client:   &http.Client{Jar: jar},
		sessions: sessions,
	}
}

// loginAs はセッションを登録し、そのCookieをクライアントに持たせる。
func (a *testApp) loginAs(sess *model.Session) {
	a.sessions.put(sess)
	u, _ := url.Parse(a.server.URL)
	a.client.Jar.SetCookies(u, []*http.Cookie{{Name: middleware.SessionCookieName, Value: sess.ID, Path: "/"}})
}

// csrfToken はGETでCSRF Cookieを発行させ、その値を返す。
func (a *testApp) csrfToken() string {
	a.t.Helper()
	u, _ := url.Parse(a.server.URL)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == "csrf_token" {
			return c.Value
		}
	}
	a.get("/login")
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == "csrf_token" {
			return c.Value
		}
	}
	a.t.Fatal("csrf cookie was not issued")
	return ""
}

// get はリダイレクトを辿ったレスポンスのステータスと本文を返す。
func (a *testApp) get(path string) (int, string) {
	a.t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	if err != nil {
		a.t.Fatalf("GET %s: %v", path, err)
	}
	return readResponse(a.t, resp)
}

// postForm はCSRFトークンを付けてフォームを送信し、リダイレクトを辿った結果を返す。
func (a *testApp) postForm(path string, form url.Values) (int, string) {
	a.t.Helper()
	form.Set(middleware.CSRFFormField, a.csrfToken())
	resp, err := a.client.PostForm(a.server.URL+path, form)
	if err != nil {
		a.t.Fatalf("POST %s: %v", path, err)
	}
	return readResponse(a.t, resp)
}

// postMultipart は画像付きフォームを送信する。
func (a *testApp) postMultipart(path string, fields map[string]string, fileName string, file []byte) (int, string) {
	a.t.Helper()
	var body strings.Builder
	mw := multipart.NewWriter(&body)
	mw.WriteField(middleware.CSRFFormField, a.csrfToken())
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("image", fileName)
		if err != nil {
			a.t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(file)
	}
	mw.Close()

	resp, err := a.client.Post(a.server.URL+path, mw.FormDataContentType(), strings.NewReader(body.String()))
	if err != nil {
		a.t.Fatalf("POST %s: %v", path, err)
	}
	return readResponse(a.t, resp)
}

func readResponse(t *testing.T, resp *http.Response) (int, string) {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(b)
}

func adminSession() *model.Session {
	return &model.Session{ID: "sess-admin", UserID: "admin-1", Role: model.RoleAdmin}
}

func userSession() *model.Session {
	return &model.Session{ID: "sess-user", UserID: "user-1", Role: model.RoleUser}
}
