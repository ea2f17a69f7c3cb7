package criteria

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Attribute describes one logical attribute of a model.
type Attribute struct {
	// Name is the logical attribute name.
	Name string `yaml:"name"`
	// Column is the physical field name. Defaults to Name.
	Column string `yaml:"columnName"`
	// ForeignKey marks attributes holding references to other records' identifiers.
	ForeignKey bool `yaml:"foreignKey"`
	// Binary marks attributes stored as binary wrappers.
	Binary bool `yaml:"binary"`
}

// Model is immutable metadata for one logical entity.
type Model struct {
	identity   string
	primaryKey string
	attrs      []Attribute
	byName     map[string]int
	byColumn   map[string]int
}

// NewModel validates and builds model metadata. The primary key must name one of attrs.
func NewModel(identity, primaryKey string, attrs ...Attribute) (*Model, error) {
	m := &Model{
		identity:   strings.TrimSpace(identity),
		primaryKey: strings.TrimSpace(primaryKey),
		attrs:      make([]Attribute, 0, len(attrs)),
		byName:     make(map[string]int, len(attrs)),
		byColumn:   make(map[string]int, len(attrs)),
	}
	if m.identity == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidModel)
	}
	for _, a := range attrs {
		a.Name = strings.TrimSpace(a.Name)
		a.Column = strings.TrimSpace(a.Column)
		if a.Name == "" {
			return nil, fmt.Errorf("%w: model %q has an attribute without a name", ErrInvalidModel, m.identity)
		}
		if a.Column == "" {
			a.Column = a.Name
		}
		if _, dup := m.byName[a.Name]; dup {
			return nil, fmt.Errorf("%w: model %q declares attribute %q twice", ErrInvalidModel, m.identity, a.Name)
		}
		if _, dup := m.byColumn[a.Column]; dup {
			return nil, fmt.Errorf("%w: model %q maps column %q twice", ErrInvalidModel, m.identity, a.Column)
		}
		m.byName[a.Name] = len(m.attrs)
		m.byColumn[a.Column] = len(m.attrs)
		m.attrs = append(m.attrs, a)
	}
	if _, ok := m.byName[m.primaryKey]; !ok {
		return nil, fmt.Errorf("%w: model %q primary key %q is not a declared attribute", ErrInvalidModel, m.identity, m.primaryKey)
	}
	return m, nil
}

// MustModel is like NewModel but panics on error.
func MustModel(identity, primaryKey string, attrs ...Attribute) *Model {
	m, err := NewModel(identity, primaryKey, attrs...)
	if err != nil {
		panic(err)
	}
	return m
}

// Identity returns the model identity.
func (m *Model) Identity() string { return m.identity }

// PrimaryKey returns the primary key attribute.
func (m *Model) PrimaryKey() Attribute { return m.attrs[m.byName[m.primaryKey]] }

// PrimaryKeyColumn returns the physical field of the primary key.
func (m *Model) PrimaryKeyColumn() string { return m.PrimaryKey().Column }

// Attributes returns the attributes in declaration order.
func (m *Model) Attributes() []Attribute {
	out := make([]Attribute, len(m.attrs))
	copy(out, m.attrs)
	return out
}

// Attribute looks up an attribute by logical name.
func (m *Model) Attribute(name string) (Attribute, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Attribute{}, false
	}
	return m.attrs[i], true
}

// AttributeByColumn looks up an attribute by physical field name.
func (m *Model) AttributeByColumn(column string) (Attribute, bool) {
	i, ok := m.byColumn[column]
	if !ok {
		return Attribute{}, false
	}
	return m.attrs[i], true
}

// ColumnFor maps a logical attribute name to its physical field.
// Unknown names are returned unchanged.
func (m *Model) ColumnFor(name string) string {
	if a, ok := m.Attribute(name); ok {
		return a.Column
	}
	return name
}

// IsPrimaryKeyColumn reports whether column is the primary key field.
func (m *Model) IsPrimaryKeyColumn(column string) bool {
	return column == m.PrimaryKeyColumn()
}

// IsForeignKeyColumn reports whether column holds a foreign key.
func (m *Model) IsForeignKeyColumn(column string) bool {
	a, ok := m.AttributeByColumn(column)
	return ok && a.ForeignKey
}

// IsIdentifierColumn reports whether column holds a primary or foreign key.
func (m *Model) IsIdentifierColumn(column string) bool {
	return m.IsPrimaryKeyColumn(column) || m.IsForeignKeyColumn(column)
}

// IsBinaryColumn reports whether column is stored as a binary wrapper.
func (m *Model) IsBinaryColumn(column string) bool {
	a, ok := m.AttributeByColumn(column)
	return ok && a.Binary
}

type modelFile struct {
	Identity   string      `yaml:"identity"`
	PrimaryKey string      `yaml:"primaryKey"`
	Attributes []Attribute `yaml:"attributes"`
}

// LoadModel decodes a YAML (or JSON) model description:
//
//	identity: user
//	primaryKey: id
//	attributes:
//	  - {name: id, columnName: _id}
//	  - {name: team, foreignKey: true}
func LoadModel(r io.Reader) (*Model, error) {
	var f modelFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	return NewModel(f.Identity, f.PrimaryKey, f.Attributes...)
}
