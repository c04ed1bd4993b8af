package datamodel

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"querycore/internal/naming"
)

// File is the on-disk description of a data model.
type File struct {
	Models    []ModelSpec    `json:"models"`
	Relations []RelationSpec `json:"relations"`
}

// ModelSpec describes one model.
type ModelSpec struct {
	Name   string      `json:"name"`
	Table  string      `json:"table,omitempty"`
	Fields []FieldSpec `json:"fields"`
}

// FieldSpec describes a scalar field, or a relation field when Relation is set.
type FieldSpec struct {
	Name          string   `json:"name"`
	Type          string   `json:"type,omitempty"`
	Column        string   `json:"column,omitempty"`
	Required      bool     `json:"required,omitempty"`
	List          bool     `json:"list,omitempty"`
	Unique        bool     `json:"unique,omitempty"`
	Hidden        bool     `json:"hidden,omitempty"`
	ID            bool     `json:"id,omitempty"`
	AutoGenerated bool     `json:"autoGenerated,omitempty"`
	Behaviour     string   `json:"behaviour,omitempty"`
	Default       any      `json:"default,omitempty"`
	Values        []string `json:"values,omitempty"`

	Relation string `json:"relation,omitempty"`
	Side     string `json:"side,omitempty"`
}

// RelationSpec describes one relation.
type RelationSpec struct {
	Name      string `json:"name"`
	Table     string `json:"table,omitempty"`
	ModelA    string `json:"modelA"`
	FieldA    string `json:"fieldA"`
	ModelB    string `json:"modelB"`
	FieldB    string `json:"fieldB"`
	OnDeleteA string `json:"onDeleteA,omitempty"`
	OnDeleteB string `json:"onDeleteB,omitempty"`
}

// LoadFile reads a YAML (or JSON) data model description and builds the Schema.
func LoadFile(path string, namer *naming.Namer) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data model: %w", err)
	}
	return Load(raw, namer)
}

// Load parses a YAML (or JSON) data model description and builds the Schema.
func Load(raw []byte, namer *naming.Namer) (*Schema, error) {
	var file File
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return nil, fmt.Errorf("parse data model: %w", err)
	}
	return file.Build(namer)
}

// Build converts the description into a validated Schema.
func (f File) Build(namer *naming.Namer) (*Schema, error) {
	models := make([]*Model, 0, len(f.Models))
	for _, ms := range f.Models {
		fields := make([]Field, 0, len(ms.Fields))
		for _, fs := range ms.Fields {
			field, err := fs.build(ms.Name)
			if err != nil {
				return nil, err
			}
			fields = append(fields, field)
		}
		m := NewModel(ms.Name, fields...)
		m.DBNameOverride = ms.Table
		models = append(models, m)
	}

	relations := make([]*Relation, 0, len(f.Relations))
	for _, rs := range f.Relations {
		onDeleteA, err := parseOnDelete(rs.OnDeleteA)
		if err != nil {
			return nil, fmt.Errorf("relation %s: %w", rs.Name, err)
		}
		onDeleteB, err := parseOnDelete(rs.OnDeleteB)
		if err != nil {
			return nil, fmt.Errorf("relation %s: %w", rs.Name, err)
		}
		relations = append(relations, &Relation{
			Name:          rs.Name,
			ModelA:        rs.ModelA,
			ModelB:        rs.ModelB,
			FieldA:        rs.FieldA,
			FieldB:        rs.FieldB,
			OnDeleteA:     onDeleteA,
			OnDeleteB:     onDeleteB,
			TableOverride: rs.Table,
		})
	}
	return NewSchema(models, relations, namer)
}

func (fs FieldSpec) build(model string) (Field, error) {
	if fs.Name == "" {
		return nil, fmt.Errorf("model %s: field name must not be empty", model)
	}
	if fs.Relation != "" {
		side := RelationSide(fs.Side)
		if side != SideA && side != SideB {
			return nil, fmt.Errorf("field %s.%s: side must be A or B, got %q", model, fs.Name, fs.Side)
		}
		return &RelationField{
			Name:       fs.Name,
			Relation:   fs.Relation,
			Side:       side,
			IsRequired: fs.Required,
			IsList:     fs.List,
			IsUnique:   fs.Unique,
		}, nil
	}

	typ, err := parseType(fs.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s.%s: %w", model, fs.Name, err)
	}
	behaviour := Behaviour(fs.Behaviour)
	switch behaviour {
	case BehaviourNone, BehaviourCreatedAt, BehaviourUpdatedAt:
	default:
		return nil, fmt.Errorf("field %s.%s: unknown behaviour %q", model, fs.Name, fs.Behaviour)
	}
	return &ScalarField{
		Name:            fs.Name,
		DBNameOverride:  fs.Column,
		Type:            typ,
		IsRequired:      fs.Required || fs.ID,
		IsList:          fs.List,
		IsUnique:        fs.Unique,
		IsHidden:        fs.Hidden,
		IsID:            fs.ID,
		IsAutoGenerated: fs.AutoGenerated,
		Behaviour:       behaviour,
		Default:         fs.Default,
		EnumValues:      fs.Values,
	}, nil
}

func parseType(name string) (TypeIdentifier, error) {
	switch TypeIdentifier(name) {
	case TypeString, TypeInt, TypeFloat, TypeBoolean, TypeDateTime, TypeEnum, TypeJSON, TypeUUID, TypeID:
		return TypeIdentifier(name), nil
	case "":
		return TypeString, nil
	}
	return "", fmt.Errorf("unknown type %q", name)
}

func parseOnDelete(name string) (OnDelete, error) {
	switch OnDelete(name) {
	case "", OnDeleteSetNull:
		return OnDeleteSetNull, nil
	case OnDeleteCascade:
		return OnDeleteCascade, nil
	}
	return "", fmt.Errorf("unknown on-delete policy %q", name)
}
