package pagedriver

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/blogs-e2e/internal/errs"
)

// UnmarshalYAML accepts "spec" as an alias for "label", which is how older
// action files describe each request.
func (r *ActionRequest) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Method string         `yaml:"method"`
		Path   string         `yaml:"path"`
		Data   map[string]any `yaml:"data"`
		Label  string         `yaml:"label"`
		Spec   string         `yaml:"spec"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*r = ActionRequest{Method: raw.Method, Path: raw.Path, Data: raw.Data, Label: raw.Label}
	if r.Label == "" {
		r.Label = raw.Spec
	}
	return nil
}

// ParseActions decodes a YAML list of action requests. Every entry needs a
// method of get or post and a path.
func ParseActions(data []byte) ([]ActionRequest, error) {
	var reqs []ActionRequest
	if err := yaml.Unmarshal(data, &reqs); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "parse actions", err)
	}
	for i, r := range reqs {
		switch strings.ToLower(strings.TrimSpace(r.Method)) {
		case "get", "post":
		default:
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("action %d: unsupported method %q", i, r.Method))
		}
		if strings.TrimSpace(r.Path) == "" {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("action %d: path is required", i))
		}
	}
	return reqs, nil
}

// LoadActions reads and parses an action file.
func LoadActions(path string) ([]ActionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "read actions", err)
	}
	return ParseActions(data)
}
