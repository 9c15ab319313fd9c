package scene

import (
	"bytes"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

// Document is a YAML document kept as a node tree so that fields, ordering
// and comments the editor does not model survive a load/save cycle.
type Document struct {
	root yaml.Node
}

func NewDocument() *Document {
	d := &Document{}
	d.root.Kind = yaml.DocumentNode
	d.root.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	return d
}

func ParseDocument(data []byte) (*Document, error) {
	d := &Document{}
	if err := yaml.Unmarshal(data, &d.root); err != nil {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "yaml: %s", err)
	}
	if d.root.Kind != yaml.DocumentNode || len(d.root.Content) == 0 || d.root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.Wrap(core.ErrDecodeFailure, "yaml: document root is not a mapping")
	}
	return d, nil
}

func (d *Document) Root() *yaml.Node {
	return d.root.Content[0]
}

func (d *Document) Get(key string) *yaml.Node {
	return mapValue(d.Root(), key)
}

func (d *Document) Set(key string, v interface{}) error {
	return setMapValue(d.Root(), key, v)
}

func (d *Document) SetNode(key string, n *yaml.Node) {
	setMapNode(d.Root(), key, n)
}

func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mapValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func setMapNode(n *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			n.Content[i+1] = value
			return
		}
	}
	n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

// setMapValue encodes v under key, keeping the flow or block style of the
// value it replaces.
func setMapValue(n *yaml.Node, key string, v interface{}) error {
	var vn yaml.Node
	if err := vn.Encode(v); err != nil {
		return err
	}
	if old := mapValue(n, key); old != nil {
		vn.Style = old.Style
		vn.LineComment = old.LineComment
	}
	setMapNode(n, key, &vn)
	return nil
}

func decodeVec3(n *yaml.Node, key string, def [3]float32) ([3]float32, error) {
	v := mapValue(n, key)
	if v == nil {
		return def, nil
	}
	var out [3]float32
	if err := v.Decode(&out); err != nil {
		return def, errors.Wrapf(core.ErrDecodeFailure, "%s: %s", key, err)
	}
	return out, nil
}

func finite(v ...float32) bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}
