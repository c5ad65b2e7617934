// Package graph synthesizes the object-relationship document for a
// batch: container nodes for projects, datasets and screens, annotation
// sets from the non-structural metadata, and the links that place
// imported files into their containers. Every stage is a pure function
// over the document so any single stage can be retried without
// corrupting the ones before it.
package graph

import (
	"fmt"
	"strings"

	"github.com/imagingrc/omero-intake/internal/batch"
	"github.com/imagingrc/omero-intake/internal/errors"
)

// State tracks how far document construction has progressed.
type State string

const (
	StateEmpty                 State = "EMPTY"
	StateProjectsDatasetsAdded State = "PROJECTS_DATASETS_ADDED"
	StateScreensAdded          State = "SCREENS_ADDED"
	StateAnnotationsAdded      State = "ANNOTATIONS_ADDED"
	StateObjectsLinked         State = "OBJECTS_LINKED"
)

var stateOrder = map[State]int{
	StateEmpty:                 0,
	StateProjectsDatasetsAdded: 1,
	StateScreensAdded:          2,
	StateAnnotationsAdded:      3,
	StateObjectsLinked:         4,
}

// Node is a synthesized container object with a local synthetic id.
// Dataset nodes reference exactly one parent project node, plate nodes
// exactly one parent screen node.
type Node struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// FileNode is an imported file object carried in a pre-existing
// transfer document: an image or plate with the client-side path it was
// imported from.
type FileNode struct {
	ID         string `json:"id"`
	ClientPath string `json:"client_path"`
}

// Annotation is an ordered, namespaced key/value set bound to the file
// it was submitted for.
type Annotation struct {
	ID         int64      `json:"id"`
	Namespace  string     `json:"namespace"`
	TargetFile string     `json:"target_file"`
	Pairs      []batch.KV `json:"pairs"`
}

// Link places a child object into a parent container.
type Link struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// Document is the object-relationship document for one batch.
type Document struct {
	State State `json:"state"`

	Projects []Node `json:"projects,omitempty"`
	Datasets []Node `json:"datasets,omitempty"`
	Screens  []Node `json:"screens,omitempty"`

	Images []FileNode `json:"images,omitempty"`
	Plates []FileNode `json:"plates,omitempty"`

	Annotations []Annotation `json:"annotations,omitempty"`
	Links       []Link       `json:"links,omitempty"`
}

// NewDocument returns an empty document.
func NewDocument() Document {
	return Document{State: StateEmpty}
}

// clone copies the document so stage functions never mutate their
// input.
func (d Document) clone() Document {
	out := d
	out.Projects = append([]Node(nil), d.Projects...)
	out.Datasets = append([]Node(nil), d.Datasets...)
	out.Screens = append([]Node(nil), d.Screens...)
	out.Images = append([]FileNode(nil), d.Images...)
	out.Plates = append([]FileNode(nil), d.Plates...)
	out.Annotations = append([]Annotation(nil), d.Annotations...)
	out.Links = append([]Link(nil), d.Links...)
	return out
}

// requireState checks the stage prerequisite. A stage may be re-run
// from its own resulting state or later, re-running is how a failed
// run is retried.
func (d Document) requireState(min State) error {
	if stateOrder[d.State] < stateOrder[min] {
		return errors.Newf("document in state %s, need at least %s", d.State, min).
			Component("graph").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

// advance moves the state forward, never backward.
func (d *Document) advance(s State) {
	if stateOrder[d.State] < stateOrder[s] {
		d.State = s
	}
}

// IDAllocator hands out synthetic container ids, one counter per kind,
// never reusing a value within a run. It is threaded explicitly through
// the stage functions instead of living in package state.
type IDAllocator struct {
	next map[string]int
}

// NewIDAllocator starts all counters at 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: make(map[string]int)}
}

// NewIDAllocatorFrom seeds counters one past the ids already present in
// doc so repeated runs never collide with prior ones.
func NewIDAllocatorFrom(doc Document) *IDAllocator {
	a := NewIDAllocator()
	for _, nodes := range [][]Node{doc.Projects, doc.Datasets, doc.Screens} {
		for _, n := range nodes {
			kind, num, ok := splitSyntheticID(n.ID)
			if ok && num >= a.peek(kind) {
				a.next[kind] = num + 1
			}
		}
	}
	return a
}

// Next returns the next synthetic id for a kind, e.g. "Project:3".
func (a *IDAllocator) Next(kind string) string {
	n := a.peek(kind)
	a.next[kind] = n + 1
	return fmt.Sprintf("%s:%d", kind, n)
}

func (a *IDAllocator) peek(kind string) int {
	if n, ok := a.next[kind]; ok {
		return n
	}
	return 1
}

func splitSyntheticID(id string) (kind string, num int, ok bool) {
	kind, numText, found := strings.Cut(id, ":")
	if !found {
		return "", 0, false
	}
	if _, err := fmt.Sscanf(numText, "%d", &num); err != nil {
		return "", 0, false
	}
	return kind, num, true
}
