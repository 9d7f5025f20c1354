package cron

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Job is one unit of scheduled work. Name must be unique per registry; it
// labels logs and metrics and is what operators use to disable the job.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order, which is also run order.
type Registry struct {
	jobs []Job
}

// NewRegistry registers jobs, skipping nils. It panics on a duplicate name.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("cron job is nil")
	}
	name := job.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("cron job %T has no name", job)
	}
	if r.index(name) >= 0 {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Disable drops the named jobs. Unknown names are an error so a typo in
// configuration does not silently leave a job running.
func (r *Registry) Disable(names ...string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		i := r.index(name)
		if i < 0 {
			return fmt.Errorf("cannot disable unknown cron job %q (known: %s)", name, strings.Join(r.Names(), ", "))
		}
		r.jobs = slices.Delete(r.jobs, i, i+1)
	}
	return nil
}

func (r *Registry) index(name string) int {
	return slices.IndexFunc(r.jobs, func(j Job) bool { return j.Name() == name })
}

func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
