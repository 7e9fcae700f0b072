package questions

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTree []byte

// Default returns the built-in tree.
func Default() *Tree {
	t, err := Parse(defaultTree)
	if err != nil {
		panic(fmt.Sprintf("questions: built-in tree: %v", err))
	}
	return t
}

// Load reads a tree from a YAML file.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question tree: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML tree document:
//
//	prompt: "Ne bildirmek istiyorsunuz?"
//	evidence_template: "Lutfen {label} icin konum ve resim gonderin."
//	options:
//	  Yangin:
//	    prompt: "Ne gordunuz?"
//	    options:
//	      Duman: {}
//
// Mapping order in the file is the order buttons are shown in, so the
// document is walked as yaml.Node rather than decoded into maps.
func Parse(data []byte) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question tree: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("parse question tree: empty document")
	}
	root := doc.Content[0]

	var template string
	if v := mappingValue(root, "evidence_template"); v != nil {
		if err := v.Decode(&template); err != nil {
			return nil, fmt.Errorf("parse question tree: evidence_template: %w", err)
		}
	}

	n, err := decodeNode(root, "root")
	if err != nil {
		return nil, err
	}
	return New(n, template)
}

func decodeNode(y *yaml.Node, where string) (*Node, error) {
	// "Duman:" with no value decodes as a null scalar: a leaf.
	if y.Kind == yaml.ScalarNode && y.Tag == "!!null" {
		return NewNode(""), nil
	}
	if y.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse question tree: %s: expected mapping, line %d", where, y.Line)
	}

	n := &Node{}
	for i := 0; i+1 < len(y.Content); i += 2 {
		key, val := y.Content[i], y.Content[i+1]
		switch key.Value {
		case "prompt":
			if err := val.Decode(&n.prompt); err != nil {
				return nil, fmt.Errorf("parse question tree: %s.prompt: %w", where, err)
			}
		case "options":
			if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
				continue
			}
			if val.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("parse question tree: %s.options: expected mapping, line %d", where, val.Line)
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				label := val.Content[j].Value
				child, err := decodeNode(val.Content[j+1], where+" > "+label)
				if err != nil {
					return nil, err
				}
				n.options = append(n.options, Option{Label: label, Node: child})
			}
		case "evidence_template":
			// root-level setting, handled by Parse
		default:
			return nil, fmt.Errorf("parse question tree: %s: unknown key %q, line %d", where, key.Value, key.Line)
		}
	}
	return n, nil
}

func mappingValue(y *yaml.Node, key string) *yaml.Node {
	if y.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(y.Content); i += 2 {
		if y.Content[i].Value == key {
			return y.Content[i+1]
		}
	}
	return nil
}
