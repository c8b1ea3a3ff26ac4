// Package debug renders a live traversal.Traversal's wrapper tree for
// terminal inspection, the way a debugger front end would draw an
// expandable entity tree.
package debug

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"
	"github.com/pathgraph/entitygraph/pkg/traversal"
)

// PrintTraversal writes a horizontal tree of every wrapper currently
// emitted by t to w, labeled by labelFn(wrapper). Roots are wrappers
// whose filtered parent is "" or is not itself among the emitted wrappers.
func PrintTraversal(w io.Writer, t *traversal.Traversal, labelFn func(*traversal.Wrapper) string) error {
	wrappers := t.Iter()
	if len(wrappers) == 0 {
		_, err := fmt.Fprintln(w, "(empty traversal)")
		return err
	}

	byVirtual := make(map[string]*traversal.Wrapper, len(wrappers))
	children := make(map[string][]*traversal.Wrapper)
	var roots []*traversal.Wrapper
	for _, wr := range wrappers {
		byVirtual[wr.Virtual.VirtualURI] = wr
	}
	for _, wr := range wrappers {
		parent := wr.Virtual.Parent
		if parent == "" || byVirtual[parent] == nil {
			roots = append(roots, wr)
			continue
		}
		children[parent] = append(children[parent], wr)
	}

	sortByLabel := func(list []*traversal.Wrapper) {
		sort.Slice(list, func(i, j int) bool { return labelFn(list[i]) < labelFn(list[j]) })
	}
	sortByLabel(roots)
	for k := range children {
		sortByLabel(children[k])
	}

	if len(roots) == 1 {
		root := buildNode(roots[0], children, labelFn)
		_, err := fmt.Fprintln(w, root.String())
		return err
	}

	virtualRoot := tree.NewTree(tree.NodeString("(traversal)"))
	for _, r := range roots {
		attachChild(virtualRoot, buildNode(r, children, labelFn))
	}
	_, err := fmt.Fprintln(w, virtualRoot.String())
	return err
}

func buildNode(wr *traversal.Wrapper, children map[string][]*traversal.Wrapper, labelFn func(*traversal.Wrapper) string) *tree.Tree {
	label := labelFn(wr)
	if wr.Virtual.Pruned {
		label += " (collapsed)"
	}
	node := tree.NewTree(tree.NodeString(label))
	for _, child := range children[wr.Virtual.VirtualURI] {
		attachChild(node, buildNode(child, children, labelFn))
	}
	return node
}

// attachChild copies child's subtree onto parent — tree.Tree nodes are
// owned by their constructing call, so grafting requires rebuilding
// rather than reparenting in place.
func attachChild(parent, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		attachChild(newChild, grandchild)
	}
}

// DefaultLabel labels a wrapper by its virtual URI's final path segment,
// falling back to the full virtual URI at the root.
func DefaultLabel(wr *traversal.Wrapper) string {
	uri := wr.Virtual.VirtualURI
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
