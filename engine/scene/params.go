package scene

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/mapstudio/engine/core"
)

// ParamRow is one row of a parameter table. Fields live in the retained
// YAML record; only id and name are modelled.
type ParamRow struct {
	ID   int64
	Name string
	node *yaml.Node
}

func NewParamRow(id int64, name string) *ParamRow {
	return &ParamRow{ID: id, Name: name, node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

func (r *ParamRow) Has(field string) bool {
	return mapValue(r.node, field) != nil
}

func (r *ParamRow) Float(field string) (float32, bool) {
	v := mapValue(r.node, field)
	if v == nil {
		return 0, false
	}
	var f float32
	if err := v.Decode(&f); err != nil {
		return 0, false
	}
	return f, true
}

func (r *ParamRow) SetFloat(field string, v float32) error {
	return setMapValue(r.node, field, v)
}

func (r *ParamRow) String(field string) (string, bool) {
	v := mapValue(r.node, field)
	if v == nil || v.Kind != yaml.ScalarNode {
		return "", false
	}
	return v.Value, true
}

func (r *ParamRow) writeNode() (*yaml.Node, error) {
	if err := setMapValue(r.node, "id", r.ID); err != nil {
		return nil, err
	}
	if err := setMapValue(r.node, "name", r.Name); err != nil {
		return nil, err
	}
	return r.node, nil
}

// ParamTable is a parameter file: a type tag plus rows with unique IDs.
type ParamTable struct {
	Type string

	doc  *Document
	rows []*ParamRow
	byID map[int64]*ParamRow
}

func NewParamTable(paramType string) *ParamTable {
	return &ParamTable{Type: paramType, doc: NewDocument(), byID: map[int64]*ParamRow{}}
}

func ParseParamTable(data []byte) (*ParamTable, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	t := &ParamTable{doc: doc, byID: map[int64]*ParamRow{}}
	if n := doc.Get("param_type"); n != nil {
		t.Type = n.Value
	}
	seq := doc.Get("rows")
	if seq == nil {
		return t, nil
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, errors.Wrap(core.ErrDecodeFailure, "param: rows is not a list")
	}
	for _, n := range seq.Content {
		var rec struct {
			ID   int64  `yaml:"id"`
			Name string `yaml:"name"`
		}
		if err := n.Decode(&rec); err != nil {
			return nil, errors.Wrapf(core.ErrDecodeFailure, "param %s: %s", t.Type, err)
		}
		if err := t.AddRow(&ParamRow{ID: rec.ID, Name: rec.Name, node: n}); err != nil {
			return nil, errors.Wrapf(core.ErrDecodeFailure, "param %s: %s", t.Type, err)
		}
	}
	return t, nil
}

func (t *ParamTable) Rows() []*ParamRow {
	return t.rows
}

func (t *ParamTable) Row(id int64) (*ParamRow, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// AddRow appends r. IDs are unique within a table.
func (t *ParamTable) AddRow(r *ParamRow) error {
	if _, ok := t.byID[r.ID]; ok {
		return fmt.Errorf("duplicate row id %d", r.ID)
	}
	t.rows = append(t.rows, r)
	t.byID[r.ID] = r
	return nil
}

func (t *ParamTable) ClearRows() {
	t.rows = nil
	t.byID = map[int64]*ParamRow{}
}

// Encode writes the rows sorted by ID back into the retained document.
func (t *ParamTable) Encode() ([]byte, error) {
	rows := append([]*ParamRow(nil), t.rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, r := range rows {
		n, err := r.writeNode()
		if err != nil {
			return nil, err
		}
		seq.Content = append(seq.Content, n)
	}
	if t.Type != "" {
		if err := t.doc.Set("param_type", t.Type); err != nil {
			return nil, err
		}
	}
	t.doc.SetNode("rows", seq)
	return t.doc.Encode()
}

// MergedParamRow joins rows with the same ID from several tables, keyed by
// table name.
type MergedParamRow struct {
	ID     int64
	Name   string
	rows   map[string]*ParamRow
	tables []string
}

func NewMergedParamRow() *MergedParamRow {
	return &MergedParamRow{rows: map[string]*ParamRow{}}
}

// AddRow attaches row under table. The first row fixes the ID and name.
func (m *MergedParamRow) AddRow(table string, row *ParamRow) error {
	if len(m.rows) == 0 {
		m.ID = row.ID
		m.Name = row.Name
	} else if row.ID != m.ID {
		return fmt.Errorf("row %d cannot merge into %d", row.ID, m.ID)
	}
	if _, ok := m.rows[table]; ok {
		return fmt.Errorf("row %d already has a %s row", m.ID, table)
	}
	m.rows[table] = row
	m.tables = append(m.tables, table)
	return nil
}

func (m *MergedParamRow) Row(table string) (*ParamRow, bool) {
	r, ok := m.rows[table]
	return r, ok
}

// Tables lists the backing tables in the order rows were added.
func (m *MergedParamRow) Tables() []string {
	return append([]string(nil), m.tables...)
}

// Float reads field from the first backing row that has it.
func (m *MergedParamRow) Float(field string) (float32, bool) {
	for _, t := range m.tables {
		if v, ok := m.rows[t].Float(field); ok {
			return v, true
		}
	}
	return 0, false
}

// SetFloat writes field on every backing row that has it.
func (m *MergedParamRow) SetFloat(field string, v float32) error {
	set := false
	for _, t := range m.tables {
		r := m.rows[t]
		if !r.Has(field) {
			continue
		}
		if err := r.SetFloat(field, v); err != nil {
			return err
		}
		set = true
	}
	if !set {
		return fmt.Errorf("row %d has no field %s", m.ID, field)
	}
	return nil
}

// SyncName pushes the merged name and ID down to every backing row.
func (m *MergedParamRow) SyncName() {
	for _, r := range m.rows {
		r.ID = m.ID
		r.Name = m.Name
	}
}
