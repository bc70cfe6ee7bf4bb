package testutil

import (
	"io"
	"log/slog"

	"github.com/roach88/tether/internal/ir"
)

// SolarSystem returns the planet/moon schema most package tests share:
//
//	planet: keys remoteId; attributes name, classification, order(int),
//	        atmosphere(bool); moons hasMany moon (inverse planet)
//	moon:   attributes name; planet hasOne planet (inverse moons)
func SolarSystem() *ir.Schema {
	return ir.NewSchema(
		ir.ModelDef{
			Name: "planet",
			Keys: []ir.KeyDef{{Name: "remoteId"}},
			Attributes: []ir.AttributeDef{
				{Name: "name", Type: "string"},
				{Name: "classification", Type: "string"},
				{Name: "order", Type: "int"},
				{Name: "atmosphere", Type: "bool"},
			},
			Relationships: []ir.RelationshipDef{
				{Name: "moons", Kind: ir.FieldHasMany, Model: "moon", Inverse: "planet"},
			},
		},
		ir.ModelDef{
			Name:       "moon",
			Attributes: []ir.AttributeDef{{Name: "name", Type: "string"}},
			Relationships: []ir.RelationshipDef{
				{Name: "planet", Kind: ir.FieldHasOne, Model: "planet", Inverse: "moons"},
			},
		},
	)
}

// Observatory returns a schema whose relationships declare no inverse, so
// removing a planet leaves telescopes pointing at it:
//
//	planet:    attributes name
//	telescope: attributes name; target hasOne planet; surveyed hasMany planet
func Observatory() *ir.Schema {
	return ir.NewSchema(
		ir.ModelDef{
			Name:       "planet",
			Attributes: []ir.AttributeDef{{Name: "name", Type: "string"}},
		},
		ir.ModelDef{
			Name:       "telescope",
			Attributes: []ir.AttributeDef{{Name: "name", Type: "string"}},
			Relationships: []ir.RelationshipDef{
				{Name: "target", Kind: ir.FieldHasOne, Model: "planet"},
				{Name: "surveyed", Kind: ir.FieldHasMany, Model: "planet"},
			},
		},
	)
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
