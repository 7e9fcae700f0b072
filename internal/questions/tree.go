package questions

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned when a path does not resolve in the tree.
var ErrInvalidPath = errors.New("questions: invalid path")

// maxLabelBytes is the Telegram callback_data limit. Labels travel as callback data.
const maxLabelBytes = 64

// DefaultEvidenceTemplate is used for leaves that carry no prompt of their own.
const DefaultEvidenceTemplate = "Lutfen '{label}' bildirimi icin konum isaretleyip gonderin ve bir resim ekleyin."

// Node is a labeled question. A node without options is a leaf.
type Node struct {
	prompt  string
	options []Option
}

// Option is one labeled child of a node.
type Option struct {
	Label string
	Node  *Node
}

// NewNode builds a node. Options keep the order they are given in.
func NewNode(prompt string, options ...Option) *Node {
	return &Node{prompt: prompt, options: append([]Option(nil), options...)}
}

// Opt is shorthand for an Option.
func Opt(label string, n *Node) Option {
	return Option{Label: label, Node: n}
}

func (n *Node) Prompt() string { return n.prompt }

func (n *Node) IsLeaf() bool { return len(n.options) == 0 }

func (n *Node) child(label string) (*Node, bool) {
	for _, o := range n.options {
		if o.Label == label {
			return o.Node, true
		}
	}
	return nil, false
}

// Tree is the immutable category → subtype → leaf questionnaire. It is built
// once at startup and shared by every session; a session's position is only
// its path of labels.
type Tree struct {
	root             *Node
	evidenceTemplate string
}

// New validates root and returns a tree. An empty template falls back to
// DefaultEvidenceTemplate.
func New(root *Node, evidenceTemplate string) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("questions: nil root")
	}
	if root.IsLeaf() {
		return nil, fmt.Errorf("questions: root has no options")
	}
	if err := validate(root, nil); err != nil {
		return nil, err
	}
	if evidenceTemplate == "" {
		evidenceTemplate = DefaultEvidenceTemplate
	}
	return &Tree{root: root, evidenceTemplate: evidenceTemplate}, nil
}

func validate(n *Node, path []string) error {
	seen := make(map[string]struct{}, len(n.options))
	for _, o := range n.options {
		where := strings.Join(append(path, o.Label), " > ")
		if strings.TrimSpace(o.Label) == "" {
			return fmt.Errorf("questions: empty label under %q", strings.Join(path, " > "))
		}
		if len(o.Label) > maxLabelBytes {
			return fmt.Errorf("questions: label %q longer than %d bytes", where, maxLabelBytes)
		}
		if _, dup := seen[o.Label]; dup {
			return fmt.Errorf("questions: duplicate label %q", where)
		}
		seen[o.Label] = struct{}{}
		if o.Node == nil {
			return fmt.Errorf("questions: nil node at %q", where)
		}
		if !o.Node.IsLeaf() && o.Node.prompt == "" {
			return fmt.Errorf("questions: branch %q has no prompt", where)
		}
		if err := validate(o.Node, append(path, o.Label)); err != nil {
			return err
		}
	}
	return nil
}

// Resolve walks path from the root.
func (t *Tree) Resolve(path []string) (*Node, error) {
	n := t.root
	for i, label := range path {
		next, ok := n.child(label)
		if !ok {
			return nil, fmt.Errorf("%w: %q at depth %d", ErrInvalidPath, label, i)
		}
		n = next
	}
	return n, nil
}

// PromptFor returns the question asked at path. For a leaf this is the
// evidence request: the leaf's own prompt, or the tree template filled with
// the last label.
func (t *Tree) PromptFor(path []string) (string, error) {
	n, err := t.Resolve(path)
	if err != nil {
		return "", err
	}
	if n.IsLeaf() && len(path) > 0 {
		if n.prompt != "" {
			return n.prompt, nil
		}
		return strings.ReplaceAll(t.evidenceTemplate, "{label}", path[len(path)-1]), nil
	}
	return n.prompt, nil
}

// ChildrenOf returns the ordered options below path. An empty result means a
// leaf was reached.
func (t *Tree) ChildrenOf(path []string) ([]Option, error) {
	n, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	return append([]Option(nil), n.options...), nil
}

// Labels returns the option labels below path.
func (t *Tree) Labels(path []string) ([]string, error) {
	opts, err := t.ChildrenOf(path)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.Label
	}
	return labels, nil
}

// IsLeaf reports whether path resolves to a leaf. Invalid paths are not leaves.
func (t *Tree) IsLeaf(path []string) bool {
	n, err := t.Resolve(path)
	return err == nil && n.IsLeaf()
}

// Leaves lists every root-to-leaf path in tree order.
func (t *Tree) Leaves() [][]string {
	var out [][]string
	var walk func(n *Node, path []string)
	walk = func(n *Node, path []string) {
		if n.IsLeaf() {
			out = append(out, append([]string(nil), path...))
			return
		}
		for _, o := range n.options {
			walk(o.Node, append(path, o.Label))
		}
	}
	walk(t.root, nil)
	return out
}
