package post

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
	"github.com/hitoshi/blogman/internal/security"
)

// --- フェイク定義 ---

// memPostRepo は挿入順を保持するインメモリPostRepository。
type memPostRepo struct {
	mu      sync.Mutex
	posts   []*model.Post
	seq     map[string]int
	next    int
	findErr error
}

func newMemPostRepo() *memPostRepo {
	return &memPostRepo{seq: map[string]int{}}
}

func clonePost(p *model.Post) *model.Post {
	c := *p
	return &c
}

func (m *memPostRepo) FindByID(_ context.Context, id string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, p := range m.posts {
		if p.ID == id {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (m *memPostRepo) FindBySlug(_ context.Context, slug string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.Slug == slug {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (m *memPostRepo) Create(_ context.Context, post *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.seq[post.ID] = m.next
	m.posts = append(m.posts, clonePost(post))
	return nil
}

func (m *memPostRepo) Update(_ context.Context, post *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.posts {
		if p.ID == post.ID {
			updated := clonePost(p)
			updated.Title = post.Title
			updated.Content = post.Content
			updated.ImageURL = post.ImageURL
			updated.UpdatedAt = post.UpdatedAt
			m.posts[i] = updated
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memPostRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.posts {
		if p.ID == id {
			m.posts = append(m.posts[:i], m.posts[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memPostRepo) List(_ context.Context) ([]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, clonePost(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.seq[out[i].ID] < m.seq[out[j].ID]
	})
	return out, nil
}

type stubUserRepo struct {
	users map[string]*model.User
}

func (s *stubUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	return s.users[id], nil
}
func (s *stubUserRepo) Create(context.Context, *model.User) error                 { return nil }
func (s *stubUserRepo) Update(context.Context, *model.User) error                 { return nil }
func (s *stubUserRepo) UpdateRole(context.Context, string, model.Role) error      { return nil }
func (s *stubUserRepo) List(context.Context) ([]*model.User, error)               { return nil, nil }

type recordingMetrics struct {
	ops []string
}

func (r *recordingMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (r *recordingMetrics) RecordPostOperation(op, outcome string) {
	r.ops = append(r.ops, op+":"+outcome)
}
func (r *recordingMetrics) RecordUploadRejected(string) {}
func (r *recordingMetrics) RecordLogin(string)          {}

var (
	_ repository.PostRepository = (*memPostRepo)(nil)
	_ repository.UserRepository = (*stubUserRepo)(nil)
)

// --- ヘルパー ---

var (
	alice = &model.User{ID: "alice", FirstName: "Alice", LastName: "Smith", Role: model.RoleUser}
	bob   = &model.User{ID: "bob", FirstName: "Bob", LastName: "Jones", Role: model.RoleUser}
	admin = &model.User{ID: "admin", FirstName: "Ada", LastName: "Admin", Role: model.RoleAdmin}
)

func sessionOf(u *model.User) *model.Session {
	return &model.Session{ID: "sess-" + u.ID, UserID: u.ID, Role: u.Role}
}

type fixture struct {
	svc     *Service
	repo    *memPostRepo
	metrics *recordingMetrics
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemPostRepo(),
		metrics: &recordingMetrics{},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	users := &stubUserRepo{users: map[string]*model.User{"alice": alice, "bob": bob, "admin": admin}}
	f.svc = NewService(f.repo, users, security.NewContentSanitizer(), f.metrics)
	f.svc.now = func() time.Time { return f.clock }
	n := 0
	f.svc.newID = func() string {
		n++
		return "post-" + string(rune('0'+n))
	}
	return f
}

func (f *fixture) create(t *testing.T, u *model.User, title string) *model.Post {
	t.Helper()
	p, err := f.svc.Create(context.Background(), sessionOf(u), CreateInput{Title: title, Content: "body of " + title})
	require.NoError(t, err)
	return p
}

// --- Create ---

func TestCreate_SetsAuthorSlugAndTimestamps(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Create(context.Background(), sessionOf(alice), CreateInput{
		Title:   "  Hello World  ",
		Content: "<p>Hi</p><script>alert(1)</script>",
	})
	require.NoError(t, err)

	assert.Equal(t, "post-1", p.ID)
	assert.Equal(t, "  Hello World  ", p.Title)
	assert.Equal(t, "hello-world", p.Slug)
	assert.Equal(t, "alice", p.AuthorUserID)
	assert.Equal(t, "Alice Smith", p.AuthorDisplayName)
	assert.Equal(t, "<p>Hi</p><script>alert(1)</script>", p.Content, "content is stored as entered and sanitized on render")
	assert.Equal(t, f.clock, p.CreatedAt)
	assert.Equal(t, f.clock, p.UpdatedAt)
	assert.Nil(t, p.ImageURL)
	assert.Equal(t, []string{"create:success"}, f.metrics.ops)
}

func TestCreate_ViewReturnsContentAsEntered(t *testing.T) {
	f := newFixture(t)
	in := CreateInput{Title: "Cartoons & <Maths>", Content: "Tom & Jerry: 1 < 2"}

	created, err := f.svc.Create(context.Background(), sessionOf(alice), in)
	require.NoError(t, err)

	got, err := f.svc.View(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, created, got)
}

func TestCreate_WithImage(t *testing.T) {
	f := newFixture(t)
	url := "/uploads/abc_cat.png"

	p, err := f.svc.Create(context.Background(), sessionOf(bob), CreateInput{Title: "Cat", Content: "meow", ImageURL: &url})
	require.NoError(t, err)
	require.True(t, p.HasImage())
	assert.Equal(t, url, *p.ImageURL)
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sess    *model.Session
		in      CreateInput
		wantCat model.ErrorCategory
	}{
		{"未ログイン", nil, CreateInput{Title: "t", Content: "c"}, model.CategoryUnauthenticated},
		{"タイトル空白のみ", sessionOf(alice), CreateInput{Title: "   ", Content: "c"}, model.CategoryValidation},
		{"本文なし", sessionOf(alice), CreateInput{Title: "t", Content: ""}, model.CategoryValidation},
		{"本文がスクリプトのみ", sessionOf(alice), CreateInput{Title: "t", Content: "<script>x</script>"}, model.CategoryValidation},
		{"プロフィールなし", &model.Session{UserID: "ghost", Role: model.RoleUser}, CreateInput{Title: "t", Content: "c"}, model.CategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), tt.sess, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.wantCat, model.CategoryOf(err))
			assert.Empty(t, f.repo.posts, "nothing should be persisted")
			assert.Equal(t, []string{"create:failure"}, f.metrics.ops)
		})
	}
}

// --- View ---

func TestView_ByIDThenSlug(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, alice, "Same Title")
	second := f.create(t, bob, "Same Title")

	got, err := f.svc.View(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	// スラッグが重複する場合は最初に作成された投稿
	got, err = f.svc.View(context.Background(), "same-title")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestView_NotFound(t *testing.T) {
	f := newFixture(t)

	for _, key := range []string{"missing", ""} {
		_, err := f.svc.View(context.Background(), key)
		assert.True(t, model.IsCategory(err, model.CategoryNotFound), "View(%q) err = %v", key, err)
	}
}

func TestView_StoreFailureIsUpstream(t *testing.T) {
	f := newFixture(t)
	f.repo.findErr = errors.New("connection reset")

	_, err := f.svc.View(context.Background(), "x")
	assert.True(t, model.IsCategory(err, model.CategoryUpstream))
}

// --- Edit ---

func TestEdit_ByOwner_KeepsSlugAndImage(t *testing.T) {
	f := newFixture(t)
	url := "/uploads/old.png"
	p, err := f.svc.Create(context.Background(), sessionOf(alice), CreateInput{Title: "Original", Content: "c", ImageURL: &url})
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	edited, err := f.svc.Edit(context.Background(), sessionOf(alice), p.ID, EditInput{Title: "Renamed Title", Content: "new body"})
	require.NoError(t, err)

	assert.Equal(t, "Renamed Title", edited.Title)
	assert.Equal(t, "original", edited.Slug)
	require.NotNil(t, edited.ImageURL)
	assert.Equal(t, url, *edited.ImageURL)
	assert.Equal(t, p.CreatedAt, edited.CreatedAt)
	assert.Equal(t, f.clock, edited.UpdatedAt)

	stored, _ := f.repo.FindByID(context.Background(), p.ID)
	assert.Equal(t, "Renamed Title", stored.Title)
	assert.Equal(t, "original", stored.Slug)
}

func TestEdit_ReplacesImageWhenProvided(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, alice, "Pic")
	url := "/uploads/new.png"

	edited, err := f.svc.Edit(context.Background(), sessionOf(alice), p.ID, EditInput{Title: "Pic", Content: "c", ImageURL: &url})
	require.NoError(t, err)
	require.True(t, edited.HasImage())
	assert.Equal(t, url, *edited.ImageURL)
}

func TestEdit_AdminCanEditAnyPost(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, alice, "Alice Post")

	edited, err := f.svc.Edit(context.Background(), sessionOf(admin), p.ID, EditInput{Title: "Moderated", Content: "c"})
	require.NoError(t, err)
	assert.Equal(t, "alice", edited.AuthorUserID)
	assert.Equal(t, "Alice Smith", edited.AuthorDisplayName)
}

func TestEdit_Errors(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, alice, "Alice Post")

	tests := []struct {
		name    string
		sess    *model.Session
		id      string
		in      EditInput
		wantCat model.ErrorCategory
	}{
		{"未ログイン", nil, p.ID, EditInput{Title: "x", Content: "y"}, model.CategoryUnauthenticated},
		{"未ログインかつ存在しない投稿", nil, "missing", EditInput{}, model.CategoryUnauthenticated},
		{"存在しない投稿", sessionOf(bob), "missing", EditInput{Title: "x", Content: "y"}, model.CategoryNotFound},
		{"他人の投稿", sessionOf(bob), p.ID, EditInput{Title: "x", Content: "y"}, model.CategoryForbidden},
		{"他人の投稿は入力不備より権限エラーを優先", sessionOf(bob), p.ID, EditInput{}, model.CategoryForbidden},
		{"所有者の入力不備", sessionOf(alice), p.ID, EditInput{Title: "", Content: "y"}, model.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Edit(context.Background(), tt.sess, tt.id, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.wantCat, model.CategoryOf(err))
		})
	}

	stored, _ := f.repo.FindByID(context.Background(), p.ID)
	assert.Equal(t, "Alice Post", stored.Title, "failed edits must not modify the post")
}

func TestEditable(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, alice, "Draft")

	got, err := f.svc.Editable(context.Background(), sessionOf(alice), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.Editable(context.Background(), sessionOf(bob), p.ID)
	assert.True(t, model.IsCategory(err, model.CategoryForbidden))
}

// --- Delete ---

func TestDelete(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, alice, "Doomed")

	err := f.svc.Delete(context.Background(), sessionOf(bob), p.ID)
	assert.True(t, model.IsCategory(err, model.CategoryForbidden))
	assert.Len(t, f.repo.posts, 1)

	require.NoError(t, f.svc.Delete(context.Background(), sessionOf(alice), p.ID))
	assert.Empty(t, f.repo.posts)

	err = f.svc.Delete(context.Background(), sessionOf(alice), p.ID)
	assert.True(t, model.IsCategory(err, model.CategoryNotFound))
}

func TestDelete_AdminCanDeleteAnyPost(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, bob, "Spam")

	require.NoError(t, f.svc.Delete(context.Background(), sessionOf(admin), p.ID))
	assert.Empty(t, f.repo.posts)
}

// --- List ---

func TestList_NewestFirstWithStableTies(t *testing.T) {
	f := newFixture(t)
	old := f.create(t, alice, "Old")
	f.clock = f.clock.Add(time.Minute)
	tieA := f.create(t, alice, "Tie A")
	tieB := f.create(t, bob, "Tie B")

	posts, err := f.svc.List(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{tieA.ID, tieB.ID, old.ID}, ids)
}

func TestList_Empty(t *testing.T) {
	f := newFixture(t)

	posts, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
}
