package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/taskboard/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type containerDoc struct {
	Owner      string       `bson:"owner"`
	ProjectSeq int64        `bson:"project_seq"`
	Projects   []projectDoc `bson:"projects"`
	CreatedAt  time.Time    `bson:"created_at"`
	UpdatedAt  time.Time    `bson:"updated_at"`
}

type projectDoc struct {
	ID        int64     `bson:"id"`
	Name      string    `bson:"name"`
	Status    string    `bson:"status"`
	TaskSeq   int64     `bson:"task_seq"`
	Tasks     []bson.M  `bson:"tasks"`
	CreatedAt time.Time `bson:"created_at"`
}

type ContainerRepo struct {
	coll  *mongo.Collection
	clock clockwork.Clock
}

func NewContainerRepo(db *mongo.Database, clock clockwork.Clock) *ContainerRepo {
	return &ContainerRepo{
		coll:  db.Collection(containersCollection),
		clock: clock,
	}
}

func (r *ContainerRepo) now() time.Time {
	return r.clock.Now().UTC().Truncate(time.Millisecond)
}

func (r *ContainerRepo) Create(ctx context.Context, owner string) (*domain.Container, error) {
	c := domain.NewContainer(owner, r.now())
	if _, err := r.coll.InsertOne(ctx, toContainerDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrContainerExists
		}
		return nil, fmt.Errorf("failed to insert container: %w", err)
	}
	return c, nil
}

func (r *ContainerRepo) Get(ctx context.Context, owner string) (*domain.Container, error) {
	var doc containerDoc
	err := r.coll.FindOne(ctx, bson.M{"owner": owner}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get container: %w", err)
	}
	return toDomainContainer(doc), nil
}

// AddProject reserves an id with $inc and then appends the project with $push.
// A reserved id whose push fails is skipped, never handed out again.
func (r *ContainerRepo) AddProject(ctx context.Context, owner string, np domain.NewProject) (*domain.Project, error) {
	var seq struct {
		ProjectSeq int64 `bson:"project_seq"`
	}
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"owner": owner},
		bson.M{"$inc": bson.M{"project_seq": 1}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"project_seq": 1}),
	).Decode(&seq)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to allocate project id: %w", err)
	}

	now := r.now()
	p := np.Build(seq.ProjectSeq, now)
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"owner": owner},
		bson.M{
			"$push": bson.M{"projects": toProjectDoc(p)},
			"$set":  bson.M{"updated_at": now},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append project: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrOwnerNotFound
	}
	return &p, nil
}

func (r *ContainerRepo) UpdateProject(ctx context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error) {
	now := r.now()
	set := bson.M{"updated_at": now}
	if patch.Name != nil && *patch.Name != "" {
		set["projects.$.name"] = *patch.Name
	}
	if patch.Status != nil && *patch.Status != "" {
		set["projects.$.status"] = *patch.Status
	}

	c, err := r.findOneAndUpdate(ctx,
		bson.M{"owner": owner, "projects.id": projectID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missing(ctx, owner, projectID, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return c.Project(projectID)
}

func (r *ContainerRepo) DeleteProject(ctx context.Context, owner string, projectID int64) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"owner": owner, "projects.id": projectID},
		bson.M{
			"$pull": bson.M{"projects": bson.M{"id": projectID}},
			"$set":  bson.M{"updated_at": r.now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missing(ctx, owner, projectID, 0)
	}
	return nil
}

// AddTask bumps the project's task counter and then appends the task. Both steps
// address the project through the positional operator.
func (r *ContainerRepo) AddTask(ctx context.Context, owner string, projectID int64, fields domain.TaskFields) (*domain.Task, error) {
	filter := bson.M{"owner": owner, "projects.id": projectID}

	c, err := r.findOneAndUpdate(ctx,
		filter,
		bson.M{"$inc": bson.M{"projects.$.task_seq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missing(ctx, owner, projectID, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to allocate task id: %w", err)
	}
	p, err := c.Project(projectID)
	if err != nil {
		return nil, err
	}

	task := domain.Task{ID: p.TaskSeq, Fields: fields}
	if task.Fields == nil {
		task.Fields = domain.TaskFields{}
	}
	res, err := r.coll.UpdateOne(ctx,
		filter,
		bson.M{
			"$push": bson.M{"projects.$.tasks": toTaskDoc(task)},
			"$set":  bson.M{"updated_at": r.now()},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append task: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrProjectNotFound
	}
	return &task, nil
}

func (r *ContainerRepo) UpdateTask(ctx context.Context, owner string, projectID, taskID int64, fields domain.TaskFields) (*domain.Task, error) {
	if len(fields) == 0 {
		c, err := r.Get(ctx, owner)
		if err != nil {
			return nil, err
		}
		return c.Task(projectID, taskID)
	}

	set := bson.M{"updated_at": r.now()}
	for k, v := range fields {
		set["projects.$[p].tasks.$[t]."+k] = v
	}

	c, err := r.findOneAndUpdate(ctx,
		taskFilter(owner, projectID, taskID),
		bson.M{"$set": set},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetArrayFilters(options.ArrayFilters{Filters: []any{
				bson.M{"p.id": projectID},
				bson.M{"t.id": taskID},
			}}),
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missing(ctx, owner, projectID, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return c.Task(projectID, taskID)
}

func (r *ContainerRepo) DeleteTask(ctx context.Context, owner string, projectID, taskID int64) error {
	res, err := r.coll.UpdateOne(ctx,
		taskFilter(owner, projectID, taskID),
		bson.M{
			"$pull": bson.M{"projects.$.tasks": bson.M{"id": taskID}},
			"$set":  bson.M{"updated_at": r.now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missing(ctx, owner, projectID, taskID)
	}
	return nil
}

func (r *ContainerRepo) findOneAndUpdate(ctx context.Context, filter, update any, opts *options.FindOneAndUpdateOptions) (*domain.Container, error) {
	var doc containerDoc
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return toDomainContainer(doc), nil
}

// missing works out which level of the path failed to match after an update
// touched no document. A taskID of zero means the write targeted the project.
func (r *ContainerRepo) missing(ctx context.Context, owner string, projectID, taskID int64) error {
	c, err := r.Get(ctx, owner)
	if err != nil {
		return err
	}
	if taskID == 0 {
		_, err = c.Project(projectID)
	} else {
		_, err = c.Task(projectID, taskID)
	}
	if err == nil {
		return fmt.Errorf("container %q changed concurrently: %w", owner, domain.ErrProjectNotFound)
	}
	return err
}

func taskFilter(owner string, projectID, taskID int64) bson.M {
	return bson.M{
		"owner": owner,
		"projects": bson.M{"$elemMatch": bson.M{
			"id":       projectID,
			"tasks.id": taskID,
		}},
	}
}
