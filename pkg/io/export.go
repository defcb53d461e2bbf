package io

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/deepsave/pkg/deepsave"
	"github.com/matzehuels/deepsave/pkg/entity"
)

// Document converts the graph back into a Document, picking up any IDs
// assigned since it was built.
func (g *Graph) Document() Document {
	d := Document{Root: g.RootKey, Objects: make(map[string]Object, len(g.Entities))}
	for key, e := range g.Entities {
		obj := Object{Class: e.Class, ObjectID: e.ID}
		if e.Len() > 0 {
			obj.Fields = make(map[string]any, e.Len())
		}
		for _, name := range e.Keys() {
			v, _ := e.Get(name)
			obj.Fields[name] = g.export(v)
			if e.IsReadOnly(name) {
				obj.ReadOnly = append(obj.ReadOnly, name)
			}
		}
		d.Objects[key] = obj
	}
	return d
}

func (g *Graph) export(v any) any {
	switch x := v.(type) {
	case *entity.Entity:
		if k, ok := g.keys[x]; ok {
			return map[string]any{keyRef: k}
		}
		return map[string]any{keyPointer: map[string]any{"class": x.Class, "objectId": x.ID}}
	case []*entity.Entity:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = g.export(e)
		}
		return out
	case entity.Reference:
		return map[string]any{keyPointer: map[string]any{"class": x.Class, "objectId": x.ID}}
	case time.Time:
		return map[string]any{keyDate: x.UTC().Format(time.RFC3339Nano)}
	case []byte:
		return map[string]any{keyBytes: base64.StdEncoding.EncodeToString(x)}
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = g.export(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = g.export(el)
		}
		return out
	default:
		return v
	}
}

// WriteJSON writes d as indented JSON.
func (d Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteYAML writes d as YAML.
func (d Document) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return enc.Close()
}

// Export writes d to path, as YAML when the extension says so.
func (d Document) Export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if IsYAML(path) {
		return d.WriteYAML(f)
	}
	return d.WriteJSON(f)
}

// Report summarizes a save per document key.
type Report struct {
	Root     entity.Reference `json:"root"`
	Rounds   int              `json:"rounds"`
	Requests int              `json:"requests"`
	Objects  []ReportObject   `json:"objects"`
}

// ReportObject is one saved object. Round is 0 for the root.
type ReportObject struct {
	Key      string `json:"key"`
	Class    string `json:"class"`
	ObjectID string `json:"objectId"`
	Round    int    `json:"round"`
}

// NewReport lists the saved objects in commit order.
func NewReport(g *Graph, res deepsave.Result) Report {
	rep := Report{Root: res.Root, Rounds: res.Rounds, Requests: res.Requests}
	byLocal := make(map[entity.LocalID]string, len(g.Entities))
	for k, e := range g.Entities {
		byLocal[e.LocalID()] = k
	}
	for _, o := range res.Outcomes {
		rep.Objects = append(rep.Objects, ReportObject{
			Key:      byLocal[o.LocalID],
			Class:    o.Class,
			ObjectID: o.Ref.ID,
			Round:    o.Round,
		})
	}
	return rep
}

// WriteJSON writes r as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
