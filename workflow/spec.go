// Package workflow declares multi-stage workflows as graphs of named stages
// and creates them on the platform.
//
// A stage input is a literal value or one of the reference types below.
// References name stages and applets, never remote ids: ids are only known
// once the applets are built and the stages are added, and Build translates
// names to ids in dependency order.
package workflow

import (
	"github.com/pkg/errors"
)

var (
	ErrUnknownStage   = errors.New("unknown stage")
	ErrDuplicateStage = errors.New("duplicate stage name")
	ErrCycle          = errors.New("stage references form a cycle")
)

// File links a data object by id.
type File string

// StageRef binds an input to a field of another stage of the same workflow.
type StageRef struct {
	Stage  string
	Field  string
	Output bool
}

// Output refers to an output field of stage.
func Output(stage, field string) StageRef {
	return StageRef{Stage: stage, Field: field, Output: true}
}

// InputOf refers to the value bound to an input field of stage.
func InputOf(stage, field string) StageRef {
	return StageRef{Stage: stage, Field: field}
}

// AppletRef links an applet found by name in the applets folder.
type AppletRef string

// AppletDefault takes the default value an applet declares for one of its
// inputs.
type AppletDefault struct {
	Applet string
	Field  string
}

// Executable is either an applet looked up by name or a fixed id.
type Executable struct {
	Name string
	ID   string
}

func AppletNamed(name string) Executable { return Executable{Name: name} }

func ExecutableID(id string) Executable { return Executable{ID: id} }

func (e Executable) String() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

type Stage struct {
	Name         string
	Executable   Executable
	Folder       string
	InstanceType string
	Input        map[string]any
}

// Spec describes a workflow before it exists remotely.
type Spec struct {
	Name        string
	Title       string
	Description string
	Stages      []Stage
}

// Stage returns the declared stage with the given name.
func (s Spec) Stage(name string) (Stage, bool) {
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return Stage{}, false
}

// refs lists every stage reference in v, descending into lists.
func refs(v any) []StageRef {
	switch val := v.(type) {
	case StageRef:
		return []StageRef{val}
	case []any:
		var out []StageRef
		for _, item := range val {
			out = append(out, refs(item)...)
		}
		return out
	}
	return nil
}

func copyInput(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
