package graph

import (
	"path"
	"strings"

	"github.com/imagingrc/omero-intake/internal/batch"
	"github.com/imagingrc/omero-intake/internal/omero"
)

// AddProjectsDatasets synthesizes project and dataset nodes from the
// manifest targets. Distinct project names become one node each,
// distinct (project, dataset) pairs one dataset node under that
// project. Nodes already present in the document are matched by name
// and reused, repeated runs must not duplicate containers.
func AddProjectsDatasets(doc Document, targets []batch.ManifestTarget, alloc *IDAllocator) (Document, error) {
	if err := doc.requireState(StateEmpty); err != nil {
		return doc, err
	}
	out := doc.clone()

	projectByName := make(map[string]string, len(out.Projects))
	for _, n := range out.Projects {
		projectByName[n.Name] = n.ID
	}
	datasetByKey := make(map[string]bool, len(out.Datasets))
	for _, n := range out.Datasets {
		datasetByKey[n.Parent+"\x00"+n.Name] = true
	}

	for i := range targets {
		t := &targets[i]
		if t.Project == "" || t.Dataset == "" {
			continue
		}
		projectID, seen := projectByName[t.Project]
		if !seen {
			projectID = alloc.Next(omero.KindProject)
			projectByName[t.Project] = projectID
			out.Projects = append(out.Projects, Node{ID: projectID, Name: t.Project})
		}
		key := projectID + "\x00" + t.Dataset
		if !datasetByKey[key] {
			datasetByKey[key] = true
			out.Datasets = append(out.Datasets, Node{
				ID:     alloc.Next(omero.KindDataset),
				Name:   t.Dataset,
				Parent: projectID,
			})
		}
	}

	out.advance(StateProjectsDatasetsAdded)
	return out, nil
}

// AddScreens synthesizes screen nodes from the manifest targets,
// deduplicated by name set membership and reusing pre-existing nodes.
func AddScreens(doc Document, targets []batch.ManifestTarget, alloc *IDAllocator) (Document, error) {
	if err := doc.requireState(StateProjectsDatasetsAdded); err != nil {
		return doc, err
	}
	out := doc.clone()

	screenNames := make(map[string]bool, len(out.Screens))
	for _, n := range out.Screens {
		screenNames[n.Name] = true
	}

	for i := range targets {
		name := targets[i].Screen
		if name == "" || screenNames[name] {
			continue
		}
		screenNames[name] = true
		out.Screens = append(out.Screens, Node{ID: alloc.Next(omero.KindScreen), Name: name})
	}

	out.advance(StateScreensAdded)
	return out, nil
}

// AddAnnotations builds one annotation per target from its
// non-structural pairs. Ids start one past the maximum already present
// in the document. Targets with no remaining pairs produce nothing.
func AddAnnotations(doc Document, targets []batch.ManifestTarget, namespace string) (Document, error) {
	if err := doc.requireState(StateScreensAdded); err != nil {
		return doc, err
	}
	out := doc.clone()

	var maxID int64
	annotated := make(map[string]bool, len(out.Annotations))
	for _, a := range out.Annotations {
		if a.ID > maxID {
			maxID = a.ID
		}
		if a.Namespace == namespace {
			annotated[a.TargetFile] = true
		}
	}

	for i := range targets {
		t := &targets[i]
		if len(t.Annotations) == 0 || annotated[t.Filename] {
			continue
		}
		maxID++
		out.Annotations = append(out.Annotations, Annotation{
			ID:         maxID,
			Namespace:  namespace,
			TargetFile: t.Filename,
			Pairs:      append([]batch.KV(nil), t.Annotations...),
		})
	}

	out.advance(StateAnnotationsAdded)
	return out, nil
}

// LinkObjects places the document's imported file objects into their
// containers: images into the dataset named on their row, plates into
// their screen. File objects are matched to rows by client path
// suffix. Rows without a matching file object are simply not linked
// here, the reconciliation stage reports them.
func LinkObjects(doc Document, targets []batch.ManifestTarget) (Document, error) {
	if err := doc.requireState(StateAnnotationsAdded); err != nil {
		return doc, err
	}
	out := doc.clone()

	projectByName := make(map[string]string, len(out.Projects))
	for _, n := range out.Projects {
		projectByName[n.Name] = n.ID
	}
	datasetID := func(project, dataset string) string {
		parent := projectByName[project]
		for _, n := range out.Datasets {
			if n.Parent == parent && n.Name == dataset {
				return n.ID
			}
		}
		return ""
	}
	screenID := func(name string) string {
		for _, n := range out.Screens {
			if n.Name == name {
				return n.ID
			}
		}
		return ""
	}

	linked := make(map[Link]bool, len(out.Links))
	for _, l := range out.Links {
		linked[l] = true
	}
	addLink := func(parent, child string) {
		if parent == "" || child == "" {
			return
		}
		l := Link{Parent: parent, Child: child}
		if !linked[l] {
			linked[l] = true
			out.Links = append(out.Links, l)
		}
	}

	for i := range targets {
		t := &targets[i]
		switch {
		case t.Screen != "":
			for _, plate := range out.Plates {
				if matchesClientPath(plate.ClientPath, t.Filename) {
					addLink(screenID(t.Screen), plate.ID)
				}
			}
		default:
			for _, img := range out.Images {
				if matchesClientPath(img.ClientPath, t.Filename) {
					addLink(datasetID(t.Project, t.Dataset), img.ID)
				}
			}
		}
	}

	out.advance(StateObjectsLinked)
	return out, nil
}

// matchesClientPath reports whether a server-recorded client path refers
// to the given batch-relative filename.
func matchesClientPath(clientPath, filename string) bool {
	clientPath = strings.TrimSuffix(path.Clean("/"+clientPath), "/")
	return strings.HasSuffix(clientPath, "/"+filename)
}
