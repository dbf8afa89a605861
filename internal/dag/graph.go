// Package dag assembles the pipeline's fixed task graph. Building a graph is
// purely descriptive: nothing here touches the warehouse, so a scheduler may
// build the same graph repeatedly for introspection.
package dag

import (
	"sort"
	"strings"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
)

type Kind string

const (
	KindExtract       Kind = "Extract"
	KindLoadFact      Kind = "LoadFact"
	KindLoadDimension Kind = "LoadDimension"
	KindQualityCheck  Kind = "QualityCheck"
	KindBarrier       Kind = "Barrier"
)

func (k Kind) isLoad() bool { return k == KindLoadFact || k == KindLoadDimension }

// Task is one node of the graph. Table is the table an Extract or Load task
// writes; Checks lists the tables a QualityCheck task inspects.
type Task struct {
	Name     string
	Kind     Kind
	Upstream []string
	Table    string
	Checks   []string
	Operator etl.Operator
}

// Graph is an immutable, validated task graph for one logical run.
type Graph struct {
	run   etl.Run
	order []string
	tasks map[string]Task
}

// NewGraph copies and validates tasks. Any violation is a ConfigurationError.
func NewGraph(run etl.Run, tasks ...Task) (*Graph, error) {
	g := &Graph{run: run, tasks: make(map[string]Task, len(tasks))}
	for _, t := range tasks {
		if strings.TrimSpace(t.Name) == "" {
			return nil, perrors.NewConfigurationError("graph", "task with empty name")
		}
		if _, dup := g.tasks[t.Name]; dup {
			return nil, perrors.NewConfigurationError(t.Name, "duplicate task name")
		}
		t.Upstream = append([]string(nil), t.Upstream...)
		t.Checks = append([]string(nil), t.Checks...)
		g.tasks[t.Name] = t
		g.order = append(g.order, t.Name)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) Run() etl.Run { return g.run }

func (g *Graph) Len() int { return len(g.order) }

func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Tasks returns the tasks in declaration order.
func (g *Graph) Tasks() []Task {
	out := make([]Task, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.tasks[name])
	}
	return out
}

func (g *Graph) Upstream(name string) []string {
	return append([]string(nil), g.tasks[name].Upstream...)
}

func (g *Graph) Downstream(name string) []string {
	var out []string
	for _, other := range g.order {
		for _, up := range g.tasks[other].Upstream {
			if up == name {
				out = append(out, other)
				break
			}
		}
	}
	return out
}

// Ancestors returns every task name name transitively depends on.
func (g *Graph) Ancestors(name string) map[string]bool {
	seen := map[string]bool{}
	stack := append([]string(nil), g.tasks[name].Upstream...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.tasks[n].Upstream...)
	}
	return seen
}

// TopologicalOrder lists tasks so that every task follows its upstream tasks.
// Ties are broken by declaration order, so the result is deterministic.
func (g *Graph) TopologicalOrder() []string {
	position := make(map[string]int, len(g.order))
	for i, name := range g.order {
		position[name] = i
	}
	indegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		indegree[name] = len(g.tasks[name].Upstream)
	}

	var ready []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	out := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, down := range g.Downstream(n) {
			indegree[down]--
			if indegree[down] == 0 {
				ready = append(ready, down)
			}
		}
	}
	return out
}

// Validate re-checks the graph invariants. NewGraph already calls it.
func (g *Graph) Validate() error { return g.validate() }

func (g *Graph) validate() error {
	for _, name := range g.order {
		t := g.tasks[name]
		if t.Operator == nil && t.Kind != KindBarrier {
			return perrors.NewConfigurationError(name, "%s task has no operator", t.Kind)
		}
		seen := map[string]bool{}
		for _, up := range t.Upstream {
			if up == name {
				return perrors.NewConfigurationError(name, "task depends on itself")
			}
			if _, ok := g.tasks[up]; !ok {
				return perrors.NewConfigurationError(name, "unknown upstream task %q", up)
			}
			if seen[up] {
				return perrors.NewConfigurationError(name, "upstream task %q listed twice", up)
			}
			seen[up] = true
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return perrors.NewConfigurationError("graph", "dependency cycle: %s", strings.Join(cycle, " -> "))
	}

	var extracts []string
	loads := map[string]string{}
	for _, name := range g.order {
		t := g.tasks[name]
		switch {
		case t.Kind == KindExtract:
			extracts = append(extracts, name)
		case t.Kind.isLoad():
			loads[t.Table] = name
		}
	}

	for _, name := range g.order {
		t := g.tasks[name]
		switch {
		case t.Kind.isLoad():
			ancestors := g.Ancestors(name)
			for _, ex := range extracts {
				if !ancestors[ex] {
					return perrors.NewConfigurationError(name, "load task does not depend on extract task %q", ex)
				}
			}
		case t.Kind == KindQualityCheck:
			ancestors := g.Ancestors(name)
			for _, table := range t.Checks {
				loader, ok := loads[table]
				if ok && !ancestors[loader] {
					return perrors.NewConfigurationError(name, "quality check on %q does not depend on its load task %q", table, loader)
				}
			}
		}
	}
	return nil
}

// findCycle returns one cycle as a closed path of task names, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.order))
	var path []string
	var cycle []string

	var visit func(string) bool
	visit = func(n string) bool {
		color[n] = grey
		path = append(path, n)
		for _, up := range g.tasks[n].Upstream {
			switch color[up] {
			case grey:
				for i, p := range path {
					if p == up {
						cycle = append(append([]string(nil), path[i:]...), up)
						break
					}
				}
				return true
			case white:
				if visit(up) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for _, name := range g.order {
		if color[name] == white && visit(name) {
			return cycle
		}
	}
	return nil
}
