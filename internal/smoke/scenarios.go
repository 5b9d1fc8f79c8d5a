package smoke

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"reflect"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/pagedriver"
)

//go:embed scenarios/*.yaml
var scenarioFiles embed.FS

// Selectors used against the blogs UI.
const (
	CreateButtonIcon = `a[href="/blogs/new"] i.material-icons`
	CreateButton     = `a[href="/blogs/new"]`
	TitleInput       = "form .title input"
	ContentInput     = "form .content input"
	TitleLabel       = "form .title label"
	TitleError       = ".title .red-text"
	ContentError     = ".content .red-text"
	SubmitButton     = `form button[type="submit"]`
	ReviewHeading    = "form h5"
	SaveButton       = "button.green"
	Card             = ".card"
	LastCardTitle    = ".card:last-child .card-content .card-title"
	LastCardBody     = ".card:last-child .card-content p"
)

const (
	requiredMessage = "You must provide a value"
	reviewMessage   = "Please confirm your entries"
	testTitle       = "Test title"
	testContent     = "Test content"
)

// Scenario is one independent check. Each scenario gets a fresh session that
// has already loaded the base URL.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, r *Runner, s *pagedriver.Session) error
}

// Suite returns the blogs scenarios in the order they are reported.
func Suite() []Scenario {
	return []Scenario{
		{Name: "unauthenticated/api-rejected", Run: unauthenticatedRequests},
		{Name: "logged-in/create-button", Run: createButton},
		{Name: "logged-in/form-label", Run: formLabel},
		{Name: "logged-in/empty-submit", Run: emptySubmit},
		{Name: "logged-in/review", Run: review},
		{Name: "logged-in/save", Run: save},
	}
}

// UnauthenticatedActions returns the embedded anonymous API requests.
func UnauthenticatedActions() ([]pagedriver.ActionRequest, error) {
	data, err := scenarioFiles.ReadFile("scenarios/unauthenticated.yaml")
	if err != nil {
		return nil, err
	}
	return pagedriver.ParseActions(data)
}

func expectText(ctx context.Context, s *pagedriver.Session, selector, want string) error {
	got, err := s.GetText(ctx, selector)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%s: got %q, want %q", selector, got, want)
	}
	return nil
}

func unauthenticatedRequests(ctx context.Context, _ *Runner, s *pagedriver.Session) error {
	reqs, err := UnauthenticatedActions()
	if err != nil {
		return err
	}
	results, err := s.ExecRequests(ctx, reqs)
	if err != nil {
		return err
	}
	want := map[string]any{"error": auth.LoginRequiredMessage}
	for _, res := range results {
		if res.Status != http.StatusUnauthorized || !reflect.DeepEqual(res.Body, want) {
			return fmt.Errorf("%s: got %d %v, want 401 %v", res.Label, res.Status, res.Body, want)
		}
	}
	return nil
}

func createButton(ctx context.Context, r *Runner, s *pagedriver.Session) error {
	if err := r.Login(ctx, s, "blogs"); err != nil {
		return err
	}
	return expectText(ctx, s, CreateButtonIcon, "add")
}

func formLabel(ctx context.Context, r *Runner, s *pagedriver.Session) error {
	if err := r.Login(ctx, s, "blogs"); err != nil {
		return err
	}
	if err := s.Click(ctx, CreateButton); err != nil {
		return err
	}
	return expectText(ctx, s, TitleLabel, "Blog Title")
}

func emptySubmit(ctx context.Context, r *Runner, s *pagedriver.Session) error {
	if err := r.Login(ctx, s, "blogs/new"); err != nil {
		return err
	}
	if err := s.Click(ctx, SubmitButton); err != nil {
		return err
	}
	if err := expectText(ctx, s, TitleError, requiredMessage); err != nil {
		return err
	}
	return expectText(ctx, s, ContentError, requiredMessage)
}

// fillForm logs in, fills the new-blog form and submits it to the review step.
func fillForm(ctx context.Context, r *Runner, s *pagedriver.Session, title, content string) error {
	if err := r.Login(ctx, s, "blogs/new"); err != nil {
		return err
	}
	if err := s.TypeText(ctx, TitleInput, title); err != nil {
		return err
	}
	if err := s.TypeText(ctx, ContentInput, content); err != nil {
		return err
	}
	return s.Click(ctx, SubmitButton)
}

func review(ctx context.Context, r *Runner, s *pagedriver.Session) error {
	if err := fillForm(ctx, r, s, testTitle, testContent); err != nil {
		return err
	}
	return expectText(ctx, s, ReviewHeading, reviewMessage)
}

func save(ctx context.Context, r *Runner, s *pagedriver.Session) error {
	if err := fillForm(ctx, r, s, testTitle, testContent); err != nil {
		return err
	}
	if err := s.Click(ctx, SaveButton); err != nil {
		return err
	}
	if err := s.WaitForSelector(ctx, Card); err != nil {
		return err
	}
	if err := expectText(ctx, s, LastCardTitle, testTitle); err != nil {
		return err
	}
	return expectText(ctx, s, LastCardBody, testContent)
}
