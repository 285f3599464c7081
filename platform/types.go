package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Query selects data objects. Exactly one of Name and NameGlob is used.
type Query struct {
	Class    string
	Name     string
	NameGlob string
	Project  string
	Folder   string
	Recurse  bool
}

func (q Query) request() map[string]any {
	req := map[string]any{"describe": map[string]any{"fields": map[string]bool{"name": true, "folder": true}}}
	if q.Class != "" {
		req["class"] = q.Class
	}
	switch {
	case q.NameGlob != "":
		req["name"] = map[string]string{"glob": q.NameGlob}
	case q.Name != "":
		req["name"] = q.Name
	}
	if q.Project != "" {
		scope := map[string]any{"project": q.Project, "recurse": q.Recurse}
		if q.Folder != "" {
			scope["folder"] = q.Folder
		}
		req["scope"] = scope
	}
	return req
}

func (q Query) String() string {
	name := q.Name
	if q.NameGlob != "" {
		name = q.NameGlob
	}
	return fmt.Sprintf("%s %q in %s:%s", q.Class, name, q.Project, q.Folder)
}

type DataObject struct {
	ID      string
	Project string
	Name    string
	Folder  string
}

// FindOne returns the single object matching q.
func FindOne(ctx context.Context, c Client, q Query) (DataObject, error) {
	objs, err := c.FindDataObjects(ctx, q)
	if err != nil {
		return DataObject{}, err
	}
	switch len(objs) {
	case 0:
		return DataObject{}, errors.Wrap(ErrNotFound, q.String())
	case 1:
		return objs[0], nil
	default:
		return DataObject{}, errors.Wrapf(ErrNotUnique, "%s (%d found)", q.String(), len(objs))
	}
}

type InputParam struct {
	Name     string `json:"name"`
	Class    string `json:"class"`
	Optional bool   `json:"optional"`
	Default  any    `json:"default,omitempty"`
}

type Applet struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Project    string            `json:"project"`
	Folder     string            `json:"folder"`
	Properties map[string]string `json:"properties"`
	InputSpec  []InputParam      `json:"inputSpec"`
}

// InputDefault returns the default value declared for the named input.
func (a Applet) InputDefault(name string) (any, error) {
	for _, p := range a.InputSpec {
		if p.Name == name {
			if p.Default == nil {
				return nil, errors.Errorf("input %q of %s has no default", name, a.Name)
			}
			return p.Default, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "input %q of %s", name, a.Name)
}

type WorkflowOptions struct {
	Project     string            `json:"project"`
	Folder      string            `json:"folder,omitempty"`
	Name        string            `json:"name"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

type StageOptions struct {
	Name         string
	Executable   string
	Folder       string
	InstanceType string
	Input        map[string]any
}

type WorkflowStage struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Executable string         `json:"executable"`
	Folder     string         `json:"folder"`
	Input      map[string]any `json:"input"`
}

type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	EditVersion int             `json:"editVersion"`
	Stages      []WorkflowStage `json:"stages"`
}

// Stage returns the stage with the given name.
func (w Workflow) Stage(name string) (WorkflowStage, error) {
	for _, s := range w.Stages {
		if s.Name == name {
			return s, nil
		}
	}
	return WorkflowStage{}, errors.Wrapf(ErrNotFound, "stage %q in %s", name, w.ID)
}

type RunOptions struct {
	Project      string
	Folder       string
	Name         string
	Input        map[string]any
	InstanceType string
	Priority     string
}

// Execution is the description of a job or an analysis.
type Execution struct {
	ID             string         `json:"id"`
	Class          string         `json:"class"`
	Project        string         `json:"project"`
	Name           string         `json:"name"`
	ExecutableName string         `json:"executableName"`
	Folder         string         `json:"folder"`
	State          string         `json:"state"`
	LaunchedBy     string         `json:"launchedBy"`
	ParentAnalysis *string        `json:"parentAnalysis"`
	Created        int64          `json:"created"`
	TotalPrice     float64        `json:"totalPrice"`
	Output         map[string]any `json:"output"`
}

// OutputWithSuffix returns the first output whose key ends with suffix.
func (e Execution) OutputWithSuffix(suffix string) (any, bool) {
	for k, v := range e.Output {
		if strings.HasSuffix(k, suffix) {
			return v, true
		}
	}
	return nil, false
}

// Int converts a decoded JSON number to int64.
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if strings.ContainsAny(n.String(), ".eE") {
			return 0, false
		}
		i, err := n.Int64()
		return i, err == nil
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
