package domain

import (
	"context"
	"maps"
	"slices"
	"time"
)

const (
	DefaultProjectName   = "Untitled Project"
	DefaultProjectStatus = "In Progress"
)

// Container is the single document holding all of one owner's projects.
// ProjectSeq is the last allocated project id; ids start at 1 and are never reused.
type Container struct {
	Owner      string    `json:"owner"`
	ProjectSeq int64     `json:"-"`
	Projects   []Project `json:"projects"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Project holds its own task id counter in TaskSeq.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	TaskSeq   int64     `json:"-"`
	Tasks     []Task    `json:"tasks"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProject carries the optional attributes of a project being created.
type NewProject struct {
	Name   string
	Status string
}

// ProjectPatch is a field merge: nil or empty values leave the project untouched.
type ProjectPatch struct {
	Name   *string
	Status *string
}

type ContainerRepository interface {
	Create(ctx context.Context, owner string) (*Container, error)
	Get(ctx context.Context, owner string) (*Container, error)
	AddProject(ctx context.Context, owner string, project NewProject) (*Project, error)
	UpdateProject(ctx context.Context, owner string, projectID int64, patch ProjectPatch) (*Project, error)
	DeleteProject(ctx context.Context, owner string, projectID int64) error
	AddTask(ctx context.Context, owner string, projectID int64, fields TaskFields) (*Task, error)
	UpdateTask(ctx context.Context, owner string, projectID, taskID int64, fields TaskFields) (*Task, error)
	DeleteTask(ctx context.Context, owner string, projectID, taskID int64) error
}

func NewContainer(owner string, now time.Time) *Container {
	return &Container{
		Owner:     owner,
		Projects:  []Project{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Build applies the defaults for omitted attributes.
func (np NewProject) Build(id int64, now time.Time) Project {
	p := Project{
		ID:        id,
		Name:      np.Name,
		Status:    np.Status,
		Tasks:     []Task{},
		CreatedAt: now,
	}
	if p.Name == "" {
		p.Name = DefaultProjectName
	}
	if p.Status == "" {
		p.Status = DefaultProjectStatus
	}
	return p
}

func (pp ProjectPatch) IsEmpty() bool {
	return isUnset(pp.Name) && isUnset(pp.Status)
}

// Apply merges the set fields into p.
func (pp ProjectPatch) Apply(p *Project) {
	if !isUnset(pp.Name) {
		p.Name = *pp.Name
	}
	if !isUnset(pp.Status) {
		p.Status = *pp.Status
	}
}

func isUnset(s *string) bool {
	return s == nil || *s == ""
}

// Project returns the project with the given id. The pointer aliases c.Projects.
func (c *Container) Project(projectID int64) (*Project, error) {
	i := c.projectIndex(projectID)
	if i < 0 {
		return nil, ErrProjectNotFound
	}
	return &c.Projects[i], nil
}

// Task resolves the composite key, reporting which level failed to match.
func (c *Container) Task(projectID, taskID int64) (*Task, error) {
	p, err := c.Project(projectID)
	if err != nil {
		return nil, err
	}
	i := p.taskIndex(taskID)
	if i < 0 {
		return nil, ErrTaskNotFound
	}
	return &p.Tasks[i], nil
}

func (c *Container) AddProject(np NewProject, now time.Time) Project {
	c.ProjectSeq++
	p := np.Build(c.ProjectSeq, now)
	c.Projects = append(c.Projects, p)
	c.UpdatedAt = now
	return p.clone()
}

func (c *Container) UpdateProject(projectID int64, patch ProjectPatch, now time.Time) (Project, error) {
	p, err := c.Project(projectID)
	if err != nil {
		return Project{}, err
	}
	patch.Apply(p)
	c.UpdatedAt = now
	return p.clone(), nil
}

func (c *Container) RemoveProject(projectID int64, now time.Time) error {
	i := c.projectIndex(projectID)
	if i < 0 {
		return ErrProjectNotFound
	}
	c.Projects = slices.Delete(c.Projects, i, i+1)
	c.UpdatedAt = now
	return nil
}

func (c *Container) AddTask(projectID int64, fields TaskFields, now time.Time) (Task, error) {
	p, err := c.Project(projectID)
	if err != nil {
		return Task{}, err
	}
	p.TaskSeq++
	t := Task{ID: p.TaskSeq, Fields: maps.Clone(fields)}
	if t.Fields == nil {
		t.Fields = TaskFields{}
	}
	p.Tasks = append(p.Tasks, t)
	c.UpdatedAt = now
	return t.clone(), nil
}

func (c *Container) UpdateTask(projectID, taskID int64, fields TaskFields, now time.Time) (Task, error) {
	t, err := c.Task(projectID, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Fields == nil {
		t.Fields = TaskFields{}
	}
	maps.Copy(t.Fields, fields)
	c.UpdatedAt = now
	return t.clone(), nil
}

func (c *Container) RemoveTask(projectID, taskID int64, now time.Time) error {
	p, err := c.Project(projectID)
	if err != nil {
		return err
	}
	i := p.taskIndex(taskID)
	if i < 0 {
		return ErrTaskNotFound
	}
	p.Tasks = slices.Delete(p.Tasks, i, i+1)
	c.UpdatedAt = now
	return nil
}

// Clone returns a deep copy. Task field values are copied one level deep.
func (c *Container) Clone() *Container {
	out := *c
	out.Projects = make([]Project, len(c.Projects))
	for i, p := range c.Projects {
		out.Projects[i] = p.clone()
	}
	return &out
}

func (c *Container) projectIndex(projectID int64) int {
	return slices.IndexFunc(c.Projects, func(p Project) bool { return p.ID == projectID })
}

func (p *Project) taskIndex(taskID int64) int {
	return slices.IndexFunc(p.Tasks, func(t Task) bool { return t.ID == taskID })
}

func (p Project) clone() Project {
	out := p
	out.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		out.Tasks[i] = t.clone()
	}
	return out
}
