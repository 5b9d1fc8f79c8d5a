package blogs

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/errs"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

// Handler serves the blogs UI and JSON API.
type Handler struct {
	svc      *Service
	renderer *Renderer
	mw       *auth.Middleware
	limiter  *ratelimit.RateLimiter
}

// NewHandler creates the blogs handler. limiter may be nil.
func NewHandler(svc *Service, renderer *Renderer, mw *auth.Middleware, limiter *ratelimit.RateLimiter) *Handler {
	return &Handler{svc: svc, renderer: renderer, mw: mw, limiter: limiter}
}

type pageData struct {
	Title string
	User  *auth.Identity
	Blog  *Blog
}

// RegisterRoutes registers the UI and API routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /static/", StaticHandler())
	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.Handle("GET /{$}", h.mw.OptionalAuth(http.HandlerFunc(h.HandleLanding)))
	mux.Handle("GET /blogs", h.mw.OptionalAuth(http.HandlerFunc(h.HandleListPage)))
	mux.Handle("GET /blogs/new", h.mw.OptionalAuth(http.HandlerFunc(h.HandleNewPage)))
	mux.Handle("GET /blogs/{id}", h.mw.OptionalAuth(http.HandlerFunc(h.HandleShowPage)))

	mux.Handle("GET /api/blogs", h.api(h.HandleListBlogs))
	mux.Handle("POST /api/blogs", h.api(h.HandleCreateBlog))
	mux.Handle("GET /api/blogs/{id}", h.api(h.HandleGetBlog))
}

// api wraps fn with login enforcement and, when configured, per-user rate
// limiting. The limiter runs after authentication so it can key on the user.
func (h *Handler) api(fn http.HandlerFunc) http.Handler {
	var next http.Handler = fn
	if h.limiter != nil {
		next = ratelimit.Middleware(h.limiter, auth.UserIDFromRequest)(next)
	}
	return h.mw.RequireLogin(next)
}

// HandleLanding renders the landing page.
func (h *Handler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "landing.html", pageData{User: currentUser(r)})
}

// HandleListPage renders the list shell; cards are loaded from /api/blogs.
func (h *Handler) HandleListPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "list.html", pageData{Title: "My Blogs", User: currentUser(r)})
}

// HandleNewPage renders the create form.
func (h *Handler) HandleNewPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, "new.html", pageData{Title: "New Blog", User: user})
}

// HandleShowPage renders one post.
func (h *Handler) HandleShowPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	blog, err := h.svc.Get(r.Context(), user.UserID, r.PathValue("id"))
	if err != nil {
		http.Error(w, errs.MessageOf(err), errs.HTTPStatus(errs.CodeOf(err)))
		return
	}
	h.render(w, r, "show.html", pageData{Title: blog.Title, User: user, Blog: blog})
}

// HandleListBlogs returns the caller's posts oldest first.
func (h *Handler) HandleListBlogs(w http.ResponseWriter, r *http.Request) {
	blogs, err := h.svc.List(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blogs)
}

// HandleCreateBlog creates a post from {"title","content"}.
func (h *Handler) HandleCreateBlog(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var in CreateInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, errs.Wrap(errs.InvalidArgument, "Invalid request body", err))
		return
	}

	blog, err := h.svc.Create(r.Context(), user, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	obs.From(r.Context()).Info("blog_created", "user_id", user.UserID, "blog_id", blog.ID)
	writeJSON(w, http.StatusCreated, blog)
}

// HandleGetBlog returns one post.
func (h *Handler) HandleGetBlog(w http.ResponseWriter, r *http.Request) {
	blog, err := h.svc.Get(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blog)
}

// HandleHealth reports store reachability.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	if err := h.renderer.Render(w, name, data); err != nil {
		obs.From(r.Context()).Error("render_failed", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func currentUser(r *http.Request) *auth.Identity {
	id, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil
	}
	return &id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).Error("api_error", "code", code, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": errs.MessageOf(err)})
}
