package taskengine

import (
	"context"

	"github.com/srchowdhury/taskengine/internal/telemetry"
)

// vertex is the per-task metadata TaskDAG tracks for each id: the owning
// Task plus its current indegree (spec.md §3 "Task DAG state").
type vertex struct {
	task     *Task
	indegree int
}

// TaskDAG is a directed acyclic graph of Tasks with dependency edges
// gating readiness for a Pool (spec.md §4.3, C7). It is a builder-style
// object around one designated "current" task, grounded directly on
// original_source/src/TaskDAG.cpp's addTask/addDependency/removeDependency.
type TaskDAG struct {
	current   *Task
	ids       map[uint32]*vertex
	adjacency map[uint32][]uint32
}

// NewTaskDAG returns an empty graph.
func NewTaskDAG() *TaskDAG {
	return &TaskDAG{
		ids:       make(map[uint32]*vertex),
		adjacency: make(map[uint32][]uint32),
	}
}

// AddTask inserts t and makes it the graph's current task. If t's id is
// already present, the graph's vertices and edges are left unchanged,
// an info message is logged (not returned as an error, since it is
// non-fatal), and t still becomes the current task.
func (d *TaskDAG) AddTask(t *Task) *TaskDAG {
	if _, exists := d.ids[t.ID()]; exists {
		telemetry.FromContext(context.Background()).Info("task already present in graph",
			telemetry.Uint32("task_id", t.ID()))
		d.current = t
		return d
	}
	d.ids[t.ID()] = &vertex{task: t}
	d.adjacency[t.ID()] = nil
	d.current = t
	return d
}

// AddDependency adds an edge from pred (the new task, a predecessor)
// into the current task (the successor). If pred's id is already among
// current's predecessors the call is a no-op. The edge is rejected with
// ErrGraphCycle if pred is already reachable from current (a path
// current -> ... -> pred exists), since the new edge would close a
// cycle — a check design notes §9 recommends adding; the original has
// none.
func (d *TaskDAG) AddDependency(pred *Task) (*TaskDAG, error) {
	if d.current == nil {
		return d, ErrTaskNotFound
	}
	currID := d.current.ID()
	deps := d.adjacency[currID]
	for _, id := range deps {
		if id == pred.ID() {
			telemetry.FromContext(context.Background()).Info("dependency already present",
				telemetry.Uint32("task_id", pred.ID()))
			return d, nil
		}
	}
	if _, exists := d.ids[pred.ID()]; !exists {
		d.ids[pred.ID()] = &vertex{task: pred}
		d.adjacency[pred.ID()] = nil
	}
	// Adding edge pred -> curr ("pred must finish before curr runs")
	// would close a cycle iff pred is already an ancestor-in-waiting of
	// curr, i.e. there is already a must-run-before path curr -> ... ->
	// pred. d.adjacency is keyed by successor and holds predecessor
	// lists (see the type doc below), so walking "successors of curr"
	// means scanning for vertices that list curr as a predecessor.
	if d.reachable(currID, pred.ID()) {
		return d, ErrGraphCycle
	}
	d.adjacency[currID] = append(d.adjacency[currID], pred.ID())
	d.ids[currID].indegree++
	return d, nil
}

// reachable reports whether to is reachable from from by following
// must-run-before edges forward (i.e. from's successors, transitively).
//
// d.adjacency is keyed by successor id and holds that vertex's direct
// predecessors (d.adjacency[A] = [B, C] means A depends on B and C —
// see the worked example in spec.md §8 scenario 5), so "successors of
// n" means every vertex y with n present in d.adjacency[y].
func (d *TaskDAG) reachable(from, to uint32) bool {
	if from == to {
		return true
	}
	visited := map[uint32]bool{from: true}
	queue := []uint32{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for y, preds := range d.adjacency {
			for _, p := range preds {
				if p != n {
					continue
				}
				if y == to {
					return true
				}
				if !visited[y] {
					visited[y] = true
					queue = append(queue, y)
				}
				break
			}
		}
	}
	return false
}

// RemoveDependency removes pred from current's predecessor list. If
// pred is not found, the call is reported and left unchanged. Otherwise
// it recursively unlinks pred per removeDependencyRecurs.
func (d *TaskDAG) RemoveDependency(pred *Task) (*TaskDAG, error) {
	if d.current == nil {
		return d, ErrTaskNotFound
	}
	currID := d.current.ID()
	deps := d.adjacency[currID]
	idx := -1
	for i, id := range deps {
		if id == pred.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		telemetry.FromContext(context.Background()).Warn("dependency not found, nothing removed",
			telemetry.Uint32("task_id", pred.ID()))
		return d, nil
	}
	if err := d.unlinkEdge(pred.ID(), currID); err != nil {
		return d, err
	}
	return d, nil
}

// unlinkEdge removes the single edge parent -> child, decrementing
// child's indegree, then hands parent to removeIfOrphaned to cascade the
// recursive removal spec.md §4.3 describes.
func (d *TaskDAG) unlinkEdge(parent, child uint32) error {
	deps := d.adjacency[child]
	for i, id := range deps {
		if id == parent {
			d.adjacency[child] = append(deps[:i], deps[i+1:]...)
			break
		}
	}
	if v, ok := d.ids[child]; ok {
		v.indegree--
	}
	return d.removeIfOrphaned(parent)
}

// removeIfOrphaned implements the recursive cascade spec.md §4.3
// "Recursive removal" describes, grounded on
// original_source/src/TaskDAG.cpp's removeDependencyRecurs: id's own
// predecessor chain is swept away with it. id is deleted first, which
// drops its references to its predecessors, and then each of its former
// predecessors is visited the same way, bottoming out at leaves.
//
// The one departure from the original is stillReferenced (SPEC_FULL.md
// §7's REDESIGN FLAGS fix): the original deletes a vertex from the id
// map as soon as the edge that triggered the call is gone, even if
// another live parent's adjacency list still references it — a bug for
// any vertex with multiple parents. Checking stillReferenced first
// means a shared dependency surviving through another path stops the
// cascade at that vertex instead of deleting it out from under its
// other parent.
func (d *TaskDAG) removeIfOrphaned(id uint32) error {
	if d.stillReferenced(id) {
		return nil
	}
	if _, ok := d.ids[id]; !ok {
		return ErrRemovalInconsistent
	}
	preds := d.adjacency[id]
	delete(d.ids, id)
	delete(d.adjacency, id)
	for _, p := range preds {
		if err := d.removeIfOrphaned(p); err != nil {
			return err
		}
	}
	return nil
}

func (d *TaskDAG) stillReferenced(id uint32) bool {
	for _, succs := range d.adjacency {
		for _, s := range succs {
			if s == id {
				return true
			}
		}
	}
	return false
}

// ReadyIDs returns the ids of every vertex with indegree zero — the
// "next ready" poll design notes §9 calls for, not present in the
// original.
func (d *TaskDAG) ReadyIDs() []uint32 {
	var ready []uint32
	for id, v := range d.ids {
		if v.indegree == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// OnComplete decrements the indegree of every successor of id and
// returns the ids that newly became ready — the bulk completion hook
// design notes §9 calls for, meant to be paired with Pool.Submit by a
// caller driving tasks through the graph into a pool.
func (d *TaskDAG) OnComplete(id uint32) []uint32 {
	var newlyReady []uint32
	for _, succ := range d.Successors(id) {
		v, ok := d.ids[succ]
		if !ok {
			continue
		}
		v.indegree--
		if v.indegree == 0 {
			newlyReady = append(newlyReady, succ)
		}
	}
	return newlyReady
}

// Task returns the Task stored for id, if present.
func (d *TaskDAG) Task(id uint32) (*Task, bool) {
	v, ok := d.ids[id]
	if !ok {
		return nil, false
	}
	return v.task, true
}

// Indegree returns id's current indegree, and whether id is present.
func (d *TaskDAG) Indegree(id uint32) (int, bool) {
	v, ok := d.ids[id]
	if !ok {
		return 0, false
	}
	return v.indegree, true
}

// Successors returns the ids that depend directly on id, i.e. the
// vertices that list id in their own predecessor list.
func (d *TaskDAG) Successors(id uint32) []uint32 {
	var succs []uint32
	for y, preds := range d.adjacency {
		for _, p := range preds {
			if p == id {
				succs = append(succs, y)
				break
			}
		}
	}
	return succs
}

// Predecessors returns id's direct predecessor list (spec.md §3's
// adjacency mapping, id -> its dependency ids).
func (d *TaskDAG) Predecessors(id uint32) []uint32 {
	return append([]uint32(nil), d.adjacency[id]...)
}
