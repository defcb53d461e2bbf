package io

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/deepsave/pkg/entity"
	deerrors "github.com/matzehuels/deepsave/pkg/errors"
)

// Special keys recognized in field values.
const (
	keyRef     = "$ref"
	keyPointer = "$pointer"
	keyDate    = "$date"
	keyBytes   = "$bytes"
)

// Document is the serialized form of an object graph.
type Document struct {
	Root    string            `json:"root" yaml:"root"`
	Objects map[string]Object `json:"objects" yaml:"objects"`
}

// Object is one entry of a Document.
type Object struct {
	Class    string         `json:"class" yaml:"class"`
	ObjectID string         `json:"objectId,omitempty" yaml:"objectId,omitempty"`
	Fields   map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	ReadOnly []string       `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
}

// Graph is a decoded Document.
type Graph struct {
	Root     *entity.Entity
	RootKey  string
	Entities map[string]*entity.Entity

	keys map[*entity.Entity]string
}

// Key returns the document key of e.
func (g *Graph) Key(e *entity.Entity) (string, bool) {
	k, ok := g.keys[e]
	return k, ok
}

// Keys returns the document keys in sorted order.
func (g *Graph) Keys() []string {
	keys := make([]string, 0, len(g.Entities))
	for k := range g.Entities {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ReadJSON decodes a JSON document from r and builds its graph.
func ReadJSON(r io.Reader) (*Graph, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, deerrors.Wrap(deerrors.ErrCodeInvalidJSON, err, "decode document")
	}
	return doc.Build()
}

// ReadYAML decodes a YAML document from r and builds its graph.
func ReadYAML(r io.Reader) (*Graph, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, deerrors.Wrap(deerrors.ErrCodeInvalidInput, err, "decode document")
	}
	return doc.Build()
}

// Import reads the document at path. Files ending in .yaml or .yml are
// read as YAML, everything else as JSON.
func Import(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if IsYAML(path) {
		return ReadYAML(f)
	}
	return ReadJSON(f)
}

// IsYAML reports whether path has a YAML extension.
func IsYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Build creates one entity per object and links their fields.
func (d Document) Build() (*Graph, error) {
	if len(d.Objects) == 0 {
		return nil, deerrors.New(deerrors.ErrCodeInvalidInput, "document has no objects")
	}
	if _, ok := d.Objects[d.Root]; !ok {
		return nil, deerrors.New(deerrors.ErrCodeInvalidInput, "root %q is not an object in the document", d.Root)
	}

	g := &Graph{
		RootKey:  d.Root,
		Entities: make(map[string]*entity.Entity, len(d.Objects)),
		keys:     make(map[*entity.Entity]string, len(d.Objects)),
	}
	for key, obj := range d.Objects {
		if err := deerrors.ValidateClassName(obj.Class); err != nil {
			return nil, fmt.Errorf("object %q: %w", key, err)
		}
		e := entity.New(obj.Class)
		e.ID = obj.ObjectID
		g.Entities[key] = e
		g.keys[e] = key
	}

	for key, obj := range d.Objects {
		e := g.Entities[key]
		for name, raw := range obj.Fields {
			if err := deerrors.ValidateFieldName(name); err != nil {
				return nil, fmt.Errorf("object %q: %w", key, err)
			}
			v, err := g.value(raw)
			if err != nil {
				return nil, fmt.Errorf("object %q field %q: %w", key, name, err)
			}
			e.Set(name, v)
		}
		for _, name := range obj.ReadOnly {
			e.SetReadOnly(name)
		}
	}

	g.Root = g.Entities[d.Root]
	return g, nil
}

func (g *Graph) value(raw any) (any, error) {
	switch x := raw.(type) {
	case map[string]any:
		if len(x) == 1 {
			for k, inner := range x {
				if v, ok, err := g.special(k, inner); ok || err != nil {
					return v, err
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, el := range x {
			v, err := g.value(el)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case []any:
		return g.array(x)
	default:
		return raw, nil
	}
}

// array turns a list of $ref objects into []*entity.Entity and any other
// list into []any. Mixing references with other values is an error.
func (g *Graph) array(xs []any) (any, error) {
	out := make([]any, len(xs))
	refs := 0
	for i, el := range xs {
		v, err := g.value(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if _, ok := v.(*entity.Entity); ok {
			refs++
		}
		out[i] = v
	}
	switch refs {
	case 0:
		return out, nil
	case len(out):
		es := make([]*entity.Entity, len(out))
		for i, v := range out {
			es[i] = v.(*entity.Entity)
		}
		return es, nil
	default:
		return nil, deerrors.New(deerrors.ErrCodeInvalidInput, "array mixes $ref with other values")
	}
}

func (g *Graph) special(key string, inner any) (any, bool, error) {
	switch key {
	case keyRef:
		name, _ := inner.(string)
		e, ok := g.Entities[name]
		if !ok {
			return nil, true, deerrors.New(deerrors.ErrCodeInvalidInput, "$ref to unknown object %q", name)
		}
		return e, true, nil
	case keyPointer:
		m, _ := inner.(map[string]any)
		class, _ := m["class"].(string)
		id, _ := m["objectId"].(string)
		if class == "" || id == "" {
			return nil, true, deerrors.New(deerrors.ErrCodeInvalidInput, "$pointer needs class and objectId")
		}
		return entity.Reference{Class: class, ID: id}, true, nil
	case keyDate:
		switch v := inner.(type) {
		case time.Time: // YAML timestamps
			return v, true, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, true, deerrors.Wrap(deerrors.ErrCodeInvalidInput, err, "$date")
			}
			return t, true, nil
		}
		return nil, true, deerrors.New(deerrors.ErrCodeInvalidInput, "$date must be a string")
	case keyBytes:
		s, _ := inner.(string)
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, true, deerrors.Wrap(deerrors.ErrCodeInvalidInput, err, "$bytes")
		}
		return b, true, nil
	}
	return nil, false, nil
}
