package workflow

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/platform"
)

// Resolver finds applets by name.
type Resolver interface {
	AppletID(ctx context.Context, name string) (string, error)
	Applet(ctx context.Context, name string) (platform.Applet, error)
}

// Target is where a workflow is created.
type Target struct {
	Project    string
	Folder     string
	Properties map[string]string
}

// Built is a workflow that exists remotely.
type Built struct {
	ID     string
	Spec   Spec
	Stages map[string]string
}

// Build validates spec, creates the workflow and adds its stages so that
// every stage is added after the stages it refers to.
func Build(ctx context.Context, c platform.Client, r Resolver, spec Spec, t Target) (*Built, error) {
	order, err := spec.Validate()
	if err != nil {
		return nil, err
	}

	id, err := c.NewWorkflow(ctx, platform.WorkflowOptions{
		Project:     t.Project,
		Folder:      t.Folder,
		Name:        spec.Name,
		Title:       spec.Title,
		Description: spec.Description,
		Properties:  t.Properties,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating workflow %s", spec.Name)
	}

	b := &Built{ID: id, Spec: spec, Stages: make(map[string]string, len(order))}
	for _, name := range order {
		st, _ := spec.Stage(name)
		exec, err := b.executable(ctx, r, st.Executable)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s of %s", name, spec.Name)
		}
		input := make(map[string]any, len(st.Input))
		for key, v := range st.Input {
			resolved, err := b.resolve(ctx, r, v)
			if err != nil {
				return nil, errors.Wrapf(err, "stage %s input %s", name, key)
			}
			input[key] = resolved
		}
		stageID, err := c.AddStage(ctx, id, platform.StageOptions{
			Name:         st.Name,
			Executable:   exec,
			Folder:       st.Folder,
			InstanceType: st.InstanceType,
			Input:        input,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "adding stage %s to %s", name, spec.Name)
		}
		b.Stages[name] = stageID
	}
	return b, nil
}

func (b *Built) executable(ctx context.Context, r Resolver, e Executable) (string, error) {
	if e.ID != "" {
		return e.ID, nil
	}
	return r.AppletID(ctx, e.Name)
}

func (b *Built) resolve(ctx context.Context, r Resolver, v any) (any, error) {
	switch val := v.(type) {
	case File:
		return platform.Link(string(val)), nil
	case StageRef:
		stageID, err := b.StageID(val.Stage)
		if err != nil {
			return nil, err
		}
		if val.Output {
			return platform.StageOutputLink(stageID, val.Field), nil
		}
		return platform.StageInputLink(stageID, val.Field), nil
	case AppletRef:
		id, err := r.AppletID(ctx, string(val))
		if err != nil {
			return nil, err
		}
		return platform.Link(id), nil
	case AppletDefault:
		a, err := r.Applet(ctx, val.Applet)
		if err != nil {
			return nil, err
		}
		return a.InputDefault(val.Field)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := b.resolve(ctx, r, item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// StageID returns the remote id of a stage.
func (b *Built) StageID(name string) (string, error) {
	id, ok := b.Stages[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownStage, "%q in %s", name, b.Spec.Name)
	}
	return id, nil
}

// Input translates run input keyed "stage.field" into the stage id keyed
// form the platform expects. File values become links.
func (b *Built) Input(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for key, v := range in {
		stage, field, ok := strings.Cut(key, ".")
		if !ok {
			return nil, errors.Errorf("run input %q is not of the form stage.field", key)
		}
		stageID, err := b.StageID(stage)
		if err != nil {
			return nil, err
		}
		out[stageID+"."+field] = runValue(v)
	}
	return out, nil
}

func runValue(v any) any {
	switch val := v.(type) {
	case File:
		return platform.Link(string(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = runValue(item)
		}
		return out
	}
	return v
}

// OutputKey is the key of a stage output in an analysis description.
func (b *Built) OutputKey(stage, field string) (string, error) {
	stageID, err := b.StageID(stage)
	if err != nil {
		return "", err
	}
	return stageID + "." + field, nil
}

// OutputRef refers to a stage output of a launched analysis.
func (b *Built) OutputRef(analysisID, stage, field string) (map[string]any, error) {
	stageID, err := b.StageID(stage)
	if err != nil {
		return nil, err
	}
	return platform.OutputRef(analysisID, stageID, field), nil
}

// Run launches the workflow.
func (b *Built) Run(ctx context.Context, c platform.Client, in map[string]any, opts platform.RunOptions) (string, error) {
	input, err := b.Input(in)
	if err != nil {
		return "", err
	}
	opts.Input = input
	id, err := c.RunWorkflow(ctx, b.ID, opts)
	if err != nil {
		return "", errors.Wrapf(err, "running %s", b.Spec.Name)
	}
	return id, nil
}

// Attach describes an existing workflow and maps its stage names to ids.
func Attach(ctx context.Context, c platform.Client, id string) (*Built, error) {
	wf, err := c.DescribeWorkflow(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "describing %s", id)
	}
	b := &Built{ID: id, Spec: Spec{Name: wf.Name}, Stages: make(map[string]string, len(wf.Stages))}
	for _, st := range wf.Stages {
		b.Stages[st.Name] = st.ID
		b.Spec.Stages = append(b.Spec.Stages, Stage{Name: st.Name, Executable: ExecutableID(st.Executable), Folder: st.Folder})
	}
	return b, nil
}
