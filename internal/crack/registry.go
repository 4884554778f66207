package crack

import (
	"slices"
	"sync"
)

// registry holds the active jobs. Insert and remove are atomic, callers never
// lock around it.
type registry struct {
	m sync.Map // JobID -> *job
}

// add inserts j unless its id is taken by another active job.
func (r *registry) add(j *job) bool {
	_, loaded := r.m.LoadOrStore(j.id, j)
	return !loaded
}

func (r *registry) get(id JobID) (*job, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*job), true
}

// remove deletes j only if it is still the job registered under its id.
func (r *registry) remove(j *job) bool {
	return r.m.CompareAndDelete(j.id, j)
}

func (r *registry) all() []*job {
	var jobs []*job
	r.m.Range(func(_, v any) bool {
		jobs = append(jobs, v.(*job))
		return true
	})
	return jobs
}

func (r *registry) ids() []JobID {
	var ids []JobID
	for _, j := range r.all() {
		ids = append(ids, j.id)
	}
	slices.Sort(ids)
	return ids
}
