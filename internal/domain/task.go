package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// TaskIDKey is the reserved key carrying a task's id in its flattened form.
const TaskIDKey = "id"

const documentIDKey = "_id"

// TaskFields holds the free-form attributes of a task.
type TaskFields map[string]any

// Task is addressed by (owner, project id, task id). Its JSON form places the id next
// to the free-form fields.
type Task struct {
	ID     int64
	Fields TaskFields
}

func (t Task) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(t.Fields)+1)
	maps.Copy(flat, t.Fields)
	flat[TaskIDKey] = t.ID
	return json.Marshal(flat)
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	t.Fields = make(TaskFields, len(flat))
	for k, raw := range flat {
		if k == TaskIDKey {
			if err := json.Unmarshal(raw, &t.ID); err != nil {
				return fmt.Errorf("task id: %w", err)
			}
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("task field %q: %w", k, err)
		}
		t.Fields[k] = v
	}
	return nil
}

func (t Task) clone() Task {
	return Task{ID: t.ID, Fields: maps.Clone(t.Fields)}
}

// NormalizeTaskFields prepares client-supplied fields for a write. The id key is
// dropped, null and empty-string values are skipped, and keys that would address
// nested paths or the primary key of a document store are rejected with
// ErrInvalidField.
func NormalizeTaskFields(raw map[string]any) (TaskFields, error) {
	fields := make(TaskFields, len(raw))
	for k, v := range raw {
		if k == TaskIDKey {
			continue
		}
		if err := validateFieldKey(k); err != nil {
			return nil, err
		}
		if isBlank(v) {
			continue
		}
		fields[k] = v
	}
	return fields, nil
}

func validateFieldKey(k string) error {
	switch {
	case k == "":
		return fmt.Errorf("%w: empty field name", ErrInvalidField)
	case strings.HasPrefix(k, "$"):
		return fmt.Errorf("%w: %q must not start with '$'", ErrInvalidField, k)
	case strings.Contains(k, "."):
		return fmt.Errorf("%w: %q must not contain '.'", ErrInvalidField, k)
	case k == documentIDKey:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidField, k)
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
