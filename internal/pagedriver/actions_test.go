package pagedriver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/blogs-e2e/internal/errs"
)

func TestParseActions_SpecIsLabelAlias(t *testing.T) {
	reqs, err := ParseActions([]byte(`
- method: POST
  path: /api/blogs
  spec: anonymous create
  data: {title: T, content: C}
- method: get
  path: /api/blogs
  label: list
  spec: ignored
`))
	require.NoError(t, err)
	require.Equal(t, []ActionRequest{
		{Method: "POST", Path: "/api/blogs", Label: "anonymous create", Data: map[string]any{"title": "T", "content": "C"}},
		{Method: "get", Path: "/api/blogs", Label: "list"},
	}, reqs)
}

func TestParseActions_RejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"method": "- {method: delete, path: /api/blogs}",
		"path":   "- {method: get}",
		"yaml":   "- method: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseActions([]byte(doc))
			require.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)
		})
	}
}

func TestLoadActions_MissingFile(t *testing.T) {
	_, err := LoadActions("testdata/does-not-exist.yaml")
	require.True(t, errs.Is(err, errs.InvalidArgument))
}
