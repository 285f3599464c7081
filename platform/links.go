package platform

import "github.com/pkg/errors"

const linkKey = "$dnanexus_link"

// Link references a data object or executable by id.
func Link(id string) map[string]any {
	return map[string]any{linkKey: id}
}

// StageOutputLink binds an input to an output field of another stage.
func StageOutputLink(stageID, field string) map[string]any {
	return map[string]any{linkKey: map[string]any{"stage": stageID, "outputField": field}}
}

// StageInputLink binds an input to the value of another stage's input.
func StageInputLink(stageID, field string) map[string]any {
	return map[string]any{linkKey: map[string]any{"stage": stageID, "inputField": field}}
}

// OutputRef refers to a stage output of an analysis that may still be
// running; the platform resolves it when the output becomes available.
func OutputRef(analysisID, stageID, field string) map[string]any {
	return map[string]any{linkKey: map[string]any{"analysis": analysisID, "stage": stageID, "field": field}}
}

// LinkID extracts the object id from a link or returns a plain id string.
func LinkID(v any) (string, error) {
	switch l := v.(type) {
	case string:
		return l, nil
	case map[string]any:
		inner, ok := l[linkKey]
		if !ok {
			return "", errors.Errorf("not a link: %v", v)
		}
		switch in := inner.(type) {
		case string:
			return in, nil
		case map[string]any:
			if id, ok := in["id"].(string); ok {
				return id, nil
			}
		}
	}
	return "", errors.Errorf("not a link: %v", v)
}
