package mongo

import (
	"github.com/pscheid92/taskboard/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
)

func toContainerDoc(c *domain.Container) containerDoc {
	doc := containerDoc{
		Owner:      c.Owner,
		ProjectSeq: c.ProjectSeq,
		Projects:   make([]projectDoc, len(c.Projects)),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	for i, p := range c.Projects {
		doc.Projects[i] = toProjectDoc(p)
	}
	return doc
}

func toProjectDoc(p domain.Project) projectDoc {
	doc := projectDoc{
		ID:        p.ID,
		Name:      p.Name,
		Status:    p.Status,
		TaskSeq:   p.TaskSeq,
		Tasks:     make([]bson.M, len(p.Tasks)),
		CreatedAt: p.CreatedAt,
	}
	for i, t := range p.Tasks {
		doc.Tasks[i] = toTaskDoc(t)
	}
	return doc
}

func toTaskDoc(t domain.Task) bson.M {
	doc := make(bson.M, len(t.Fields)+1)
	for k, v := range t.Fields {
		doc[k] = v
	}
	doc[domain.TaskIDKey] = t.ID
	return doc
}

func toDomainContainer(doc containerDoc) *domain.Container {
	c := &domain.Container{
		Owner:      doc.Owner,
		ProjectSeq: doc.ProjectSeq,
		Projects:   make([]domain.Project, len(doc.Projects)),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	for i, p := range doc.Projects {
		c.Projects[i] = toDomainProject(p)
	}
	return c
}

func toDomainProject(doc projectDoc) domain.Project {
	p := domain.Project{
		ID:        doc.ID,
		Name:      doc.Name,
		Status:    doc.Status,
		TaskSeq:   doc.TaskSeq,
		Tasks:     make([]domain.Task, len(doc.Tasks)),
		CreatedAt: doc.CreatedAt,
	}
	for i, t := range doc.Tasks {
		p.Tasks[i] = toDomainTask(t)
	}
	return p
}

func toDomainTask(doc bson.M) domain.Task {
	t := domain.Task{Fields: make(domain.TaskFields, len(doc))}
	for k, v := range doc {
		switch k {
		case domain.TaskIDKey:
			t.ID = toInt64(v)
		case "_id":
		default:
			t.Fields[k] = v
		}
	}
	return t
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
