package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/taskboard/internal/domain"
)

// StoreMetrics counts container store operations by outcome.
type StoreMetrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of container store operations, by operation and result.",
		}, []string{"operation", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of container store operations in seconds.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Operations, m.Duration)
	return m
}

func (m *StoreMetrics) observe(op string, start time.Time, err error) {
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.Operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOwnerNotFound),
		errors.Is(err, domain.ErrProjectNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrContainerExists):
		return "conflict"
	default:
		return "error"
	}
}

// InstrumentedContainerRepo decorates a ContainerRepository with StoreMetrics.
type InstrumentedContainerRepo struct {
	next    domain.ContainerRepository
	metrics *StoreMetrics
}

var _ domain.ContainerRepository = (*InstrumentedContainerRepo)(nil)

func InstrumentContainers(next domain.ContainerRepository, m *StoreMetrics) *InstrumentedContainerRepo {
	return &InstrumentedContainerRepo{next: next, metrics: m}
}

func (r *InstrumentedContainerRepo) Create(ctx context.Context, owner string) (*domain.Container, error) {
	start := time.Now()
	c, err := r.next.Create(ctx, owner)
	r.metrics.observe("create", start, err)
	return c, err
}

func (r *InstrumentedContainerRepo) Get(ctx context.Context, owner string) (*domain.Container, error) {
	start := time.Now()
	c, err := r.next.Get(ctx, owner)
	r.metrics.observe("get", start, err)
	return c, err
}

func (r *InstrumentedContainerRepo) AddProject(ctx context.Context, owner string, np domain.NewProject) (*domain.Project, error) {
	start := time.Now()
	p, err := r.next.AddProject(ctx, owner, np)
	r.metrics.observe("add_project", start, err)
	return p, err
}

func (r *InstrumentedContainerRepo) UpdateProject(ctx context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error) {
	start := time.Now()
	p, err := r.next.UpdateProject(ctx, owner, projectID, patch)
	r.metrics.observe("update_project", start, err)
	return p, err
}

func (r *InstrumentedContainerRepo) DeleteProject(ctx context.Context, owner string, projectID int64) error {
	start := time.Now()
	err := r.next.DeleteProject(ctx, owner, projectID)
	r.metrics.observe("delete_project", start, err)
	return err
}

func (r *InstrumentedContainerRepo) AddTask(ctx context.Context, owner string, projectID int64, fields domain.TaskFields) (*domain.Task, error) {
	start := time.Now()
	t, err := r.next.AddTask(ctx, owner, projectID, fields)
	r.metrics.observe("add_task", start, err)
	return t, err
}

func (r *InstrumentedContainerRepo) UpdateTask(ctx context.Context, owner string, projectID, taskID int64, fields domain.TaskFields) (*domain.Task, error) {
	start := time.Now()
	t, err := r.next.UpdateTask(ctx, owner, projectID, taskID, fields)
	r.metrics.observe("update_task", start, err)
	return t, err
}

func (r *InstrumentedContainerRepo) DeleteTask(ctx context.Context, owner string, projectID, taskID int64) error {
	start := time.Now()
	err := r.next.DeleteTask(ctx, owner, projectID, taskID)
	r.metrics.observe("delete_task", start, err)
	return err
}
