// Package blogs is the fixture application the browser suite runs against:
// a per-user list of blog posts with a two-step create form.
package blogs

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/db"
	"github.com/kuitang/blogs-e2e/internal/errs"
)

const (
	MaxTitleLength   = 200
	MaxContentLength = 20000
)

// CreateInput is the body of POST /api/blogs.
type CreateInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Blog is the API representation of a post.
type Blog struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	ContentHTML template.HTML `json:"contentHtml"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Service implements blog operations on top of the store.
type Service struct {
	store *db.Store
}

// NewService creates a new blog service.
func NewService(store *db.Store) *Service {
	return &Service{store: store}
}

// UpsertUser records a logged-in identity. It satisfies auth.UserStore.
func (s *Service) UpsertUser(ctx context.Context, id auth.Identity) error {
	return s.store.UpsertUser(ctx, db.User{ID: id.UserID, Email: id.Email, Name: id.Name})
}

// Validate checks a create request.
func (in CreateInput) Validate() error {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	switch {
	case title == "" || content == "":
		return errs.New(errs.InvalidArgument, "You must provide a value")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return errs.New(errs.InvalidArgument, "Title is too long")
	case utf8.RuneCountInString(content) > MaxContentLength:
		return errs.New(errs.InvalidArgument, "Content is too long")
	}
	return nil
}

// Create stores a post for user. Sessions minted outside the login flow may
// belong to users the store has not seen, so the user row is ensured first.
func (s *Service) Create(ctx context.Context, user auth.Identity, in CreateInput) (*Blog, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.UpsertUser(ctx, user); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to record user", err)
	}

	row := &db.Blog{
		UserID:  user.UserID,
		Title:   strings.TrimSpace(in.Title),
		Content: strings.TrimSpace(in.Content),
	}
	if err := s.store.CreateBlog(ctx, row); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to save blog", err)
	}
	return toBlog(row), nil
}

// List returns the user's posts oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]Blog, error) {
	rows, err := s.store.ListBlogs(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list blogs", err)
	}
	out := make([]Blog, 0, len(rows))
	for i := range rows {
		out = append(out, *toBlog(&rows[i]))
	}
	return out, nil
}

// Get returns one of the user's posts.
func (s *Service) Get(ctx context.Context, userID, id string) (*Blog, error) {
	row, err := s.store.GetBlog(ctx, userID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, errs.New(errs.NotFound, "Blog not found")
		}
		return nil, errs.Wrap(errs.Internal, "failed to load blog", err)
	}
	return toBlog(row), nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func toBlog(row *db.Blog) *Blog {
	return &Blog{
		ID:          row.ID,
		Title:       row.Title,
		Content:     row.Content,
		ContentHTML: RenderContent(row.Content),
		CreatedAt:   row.CreatedAt,
	}
}
