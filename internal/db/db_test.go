package db

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestStore(t testing.TB) *Store {
	t.Helper()
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertUser_KeepsExistingFieldsWhenEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertUser(ctx, User{ID: "u1", Email: "u1@example.com", Name: "One"}))
	require.NoError(t, store.UpsertUser(ctx, User{ID: "u1", Name: "Renamed"}))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1@example.com", u.Email)
	require.Equal(t, "Renamed", u.Name)

	_, err = store.GetUser(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBlog_RequiresExistingUser(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	err := store.CreateBlog(context.Background(), &Blog{UserID: "ghost", Title: "t", Content: "c"})
	require.Error(t, err)
}

func testListBlogs_PreservesInsertionOrder(t *rapid.T, store *Store) {
	ctx := context.Background()
	userID := rapid.StringMatching(`user-[a-z0-9]{8}`).Draw(t, "user")
	titles := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z ]{1,20}`), 1, 12).Draw(t, "titles")

	if err := store.UpsertUser(ctx, User{ID: userID}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	before, err := store.ListBlogs(ctx, userID)
	if err != nil {
		t.Fatalf("ListBlogs: %v", err)
	}
	for _, title := range titles {
		if err := store.CreateBlog(ctx, &Blog{UserID: userID, Title: title, Content: strings.ToLower(title)}); err != nil {
			t.Fatalf("CreateBlog: %v", err)
		}
	}

	blogs, err := store.ListBlogs(ctx, userID)
	if err != nil {
		t.Fatalf("ListBlogs: %v", err)
	}
	blogs = blogs[len(before):]
	if len(blogs) != len(titles) {
		t.Fatalf("got %d blogs, want %d", len(blogs), len(titles))
	}
	for i, b := range blogs {
		if b.Title != titles[i] {
			t.Fatalf("blog %d title = %q, want %q", i, b.Title, titles[i])
		}
		if b.UserID != userID || b.ID == "" {
			t.Fatalf("blog %d has bad ownership/id: %+v", i, b)
		}
	}
}

func TestListBlogs_PreservesInsertionOrder(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	rapid.Check(t, func(t *rapid.T) {
		testListBlogs_PreservesInsertionOrder(t, store)
	})
}

func TestListBlogs_ScopedToUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.UpsertUser(ctx, User{ID: "a"}))
	require.NoError(t, store.UpsertUser(ctx, User{ID: "b"}))
	blog := &Blog{UserID: "a", Title: "mine", Content: "x"}
	require.NoError(t, store.CreateBlog(ctx, blog))

	other, err := store.ListBlogs(ctx, "b")
	require.NoError(t, err)
	require.Empty(t, other)

	_, err = store.GetBlog(ctx, "b", blog.ID)
	require.True(t, errors.Is(err, ErrNotFound))

	got, err := store.GetBlog(ctx, "a", blog.ID)
	require.NoError(t, err)
	require.Equal(t, "mine", got.Title)
}

func TestOpen_EncryptedFileRequiresKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "blogs.db")
	key := strings.Repeat("ab", 32)

	store, err := Open(path, key)
	require.NoError(t, err)
	require.NoError(t, store.UpsertUser(context.Background(), User{ID: "u1"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path, key)
	require.NoError(t, err)
	_, err = reopened.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, reopened.Close())

	_, err = Open(path, "")
	require.Error(t, err, "opening an encrypted database without the key must fail")
}
