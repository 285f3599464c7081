// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/platform"
)

type object struct {
	platform.DataObject
	Class string
}

type Record struct {
	Project string
	Folder  string
	Name    string
	Details json.RawMessage
	Closed  bool
}

type Run struct {
	Executable string
	ID         string
	Options    platform.RunOptions
}

// Fake keeps projects, folders, objects, workflows and executions in memory.
type Fake struct {
	mu sync.Mutex
	n  int

	Projects   map[string]platform.Project
	Folders    map[string][]string
	Applets    map[string]platform.Applet
	Properties map[string]map[string]string
	Workflows  map[string]*platform.Workflow
	Executions map[string]platform.Execution
	Records    map[string]*Record
	Files      map[string][]byte
	Runs       []Run

	// States queues the states reported by successive describes of an
	// execution; once drained the stored state is reported.
	States map[string][]string

	// OnRun, when set, fills in the execution created by a run call.
	OnRun func(executable string, opts platform.RunOptions, e *platform.Execution)

	objects   []object
	Describes int
}

func New() *Fake {
	return &Fake{
		Projects:   map[string]platform.Project{},
		Folders:    map[string][]string{},
		Applets:    map[string]platform.Applet{},
		Properties: map[string]map[string]string{},
		Workflows:  map[string]*platform.Workflow{},
		Executions: map[string]platform.Execution{},
		Records:    map[string]*Record{},
		Files:      map[string][]byte{},
		States:     map[string][]string{},
	}
}

func (f *Fake) nextID(class string) string {
	f.n++
	return fmt.Sprintf("%s-%06d", class, f.n)
}

func (f *Fake) AddProject(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Projects[id] = platform.Project{ID: id, Name: name}
}

// AddApplet registers an applet and returns its id.
func (f *Fake) AddApplet(project, folder, name string, inputSpec ...platform.InputParam) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("applet")
	f.Applets[id] = platform.Applet{ID: id, Name: name, Project: project, Folder: folder, InputSpec: inputSpec}
	f.objects = append(f.objects, object{
		DataObject: platform.DataObject{ID: id, Project: project, Name: name, Folder: folder},
		Class:      "applet",
	})
	return id
}

// AddFile registers a file with content and returns its id.
func (f *Fake) AddFile(project, folder, name string, content []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("file")
	f.Files[id] = content
	f.objects = append(f.objects, object{
		DataObject: platform.DataObject{ID: id, Project: project, Name: name, Folder: folder},
		Class:      "file",
	})
	return id
}

// AddExecution stores a description as is.
func (f *Fake) AddExecution(e platform.Execution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Executions[e.ID] = e
}

func (f *Fake) DescribeProject(_ context.Context, id string) (platform.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Projects[id]
	if !ok {
		return platform.Project{}, errors.Wrap(platform.ErrNotFound, id)
	}
	return p, nil
}

func (f *Fake) NewFolder(_ context.Context, project, folder string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Folders[project] = append(f.Folders[project], folder)
	return nil
}

func inFolder(objFolder, folder string, recurse bool) bool {
	if folder == "" {
		return true
	}
	if objFolder == folder {
		return true
	}
	return recurse && strings.HasPrefix(objFolder, strings.TrimSuffix(folder, "/")+"/")
}

func (f *Fake) FindDataObjects(_ context.Context, q platform.Query) ([]platform.DataObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platform.DataObject
	for _, o := range f.objects {
		if q.Class != "" && o.Class != q.Class {
			continue
		}
		if q.Project != "" && o.Project != q.Project {
			continue
		}
		if !inFolder(o.Folder, q.Folder, q.Recurse) {
			continue
		}
		if q.NameGlob != "" {
			if ok, _ := path.Match(q.NameGlob, o.Name); !ok {
				continue
			}
		} else if q.Name != "" && o.Name != q.Name {
			continue
		}
		out = append(out, o.DataObject)
	}
	return out, nil
}

func (f *Fake) DescribeApplet(_ context.Context, id string) (platform.Applet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.Applets[id]
	if !ok {
		return platform.Applet{}, errors.Wrap(platform.ErrNotFound, id)
	}
	a.Properties = f.Properties[id]
	return a, nil
}

func (f *Fake) SetProperties(_ context.Context, id, _ string, props map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Properties[id] == nil {
		f.Properties[id] = map[string]string{}
	}
	for k, v := range props {
		f.Properties[id][k] = v
	}
	return nil
}

func (f *Fake) NewWorkflow(_ context.Context, opts platform.WorkflowOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("workflow")
	f.Workflows[id] = &platform.Workflow{ID: id, Name: opts.Name}
	f.objects = append(f.objects, object{
		DataObject: platform.DataObject{ID: id, Project: opts.Project, Name: opts.Name, Folder: opts.Folder},
		Class:      "workflow",
	})
	if len(opts.Properties) > 0 {
		f.Properties[id] = opts.Properties
	}
	return id, nil
}

func (f *Fake) AddStage(_ context.Context, workflowID string, opts platform.StageOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.Workflows[workflowID]
	if !ok {
		return "", errors.Wrap(platform.ErrNotFound, workflowID)
	}
	id := f.nextID("stage")
	wf.Stages = append(wf.Stages, platform.WorkflowStage{
		ID:         id,
		Name:       opts.Name,
		Executable: opts.Executable,
		Folder:     opts.Folder,
		Input:      opts.Input,
	})
	wf.EditVersion++
	return id, nil
}

func (f *Fake) DescribeWorkflow(_ context.Context, id string) (platform.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.Workflows[id]
	if !ok {
		return platform.Workflow{}, errors.Wrap(platform.ErrNotFound, id)
	}
	return *wf, nil
}

func (f *Fake) run(class, executable string, opts platform.RunOptions) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID(class)
	e := platform.Execution{
		ID:      id,
		Class:   class,
		Project: opts.Project,
		Name:    opts.Name,
		Folder:  opts.Folder,
		State:   platform.StateDone,
		Output:  map[string]any{},
	}
	if f.OnRun != nil {
		f.OnRun(executable, opts, &e)
	}
	f.Executions[id] = e
	f.Runs = append(f.Runs, Run{Executable: executable, ID: id, Options: opts})
	return id
}

func (f *Fake) RunWorkflow(_ context.Context, id string, opts platform.RunOptions) (string, error) {
	return f.run("analysis", id, opts), nil
}

func (f *Fake) RunApplet(_ context.Context, id string, opts platform.RunOptions) (string, error) {
	return f.run("job", id, opts), nil
}

func (f *Fake) DescribeExecution(_ context.Context, id string) (platform.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Describes++
	e, ok := f.Executions[id]
	if !ok {
		return platform.Execution{}, errors.Wrap(platform.ErrNotFound, id)
	}
	if queued := f.States[id]; len(queued) > 0 {
		e.State = queued[0]
		f.States[id] = queued[1:]
	}
	return e, nil
}

func (f *Fake) FindExecutions(_ context.Context, project, state string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, e := range f.Executions {
		if project != "" && e.Project != project {
			continue
		}
		if state != "" && e.State != state {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *Fake) NewRecord(_ context.Context, project, folder, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("record")
	f.Records[id] = &Record{Project: project, Folder: folder, Name: name}
	return id, nil
}

func (f *Fake) SetDetails(_ context.Context, id string, details any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Records[id]
	if !ok {
		return errors.Wrap(platform.ErrNotFound, id)
	}
	data, err := json.Marshal(details)
	if err != nil {
		return err
	}
	r.Details = data
	return nil
}

func (f *Fake) CloseRecord(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Records[id]
	if !ok {
		return errors.Wrap(platform.ErrNotFound, id)
	}
	r.Closed = true
	return nil
}

func (f *Fake) GetDetails(_ context.Context, id string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Records[id]
	if !ok {
		return errors.Wrap(platform.ErrNotFound, id)
	}
	return json.Unmarshal(r.Details, out)
}

func (f *Fake) Download(_ context.Context, fileID string, w io.Writer) error {
	f.mu.Lock()
	data, ok := f.Files[fileID]
	f.mu.Unlock()
	if !ok {
		return errors.Wrap(platform.ErrNotFound, fileID)
	}
	_, err := w.Write(data)
	return err
}

var _ platform.Client = (*Fake)(nil)
