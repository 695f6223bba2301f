// Package registry defines the expected-field registry: the closed set of
// product attributes the pipeline tries to extract from a datasheet, with
// the label aliases used to locate them in text and tables.
package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldKind describes how a field's raw value should be interpreted.
type FieldKind string

const (
	KindNumber FieldKind = "number"
	KindString FieldKind = "string"
)

// Field describes one expected product attribute.
type Field struct {
	Key     string    `yaml:"key" json:"key"`
	Label   string    `yaml:"label" json:"label"`
	Kind    FieldKind `yaml:"kind" json:"kind"`
	Unit    string    `yaml:"unit,omitempty" json:"unit,omitempty"`
	Aliases []string  `yaml:"aliases" json:"aliases"`
}

// Registry is an indexed collection of expected fields.
type Registry struct {
	Fields []Field
	byKey  map[string]*Field
}

// New creates a Registry with indexed lookups.
func New(fields []Field) *Registry {
	r := &Registry{
		Fields: fields,
		byKey:  make(map[string]*Field, len(fields)),
	}
	for i := range r.Fields {
		r.byKey[r.Fields[i].Key] = &r.Fields[i]
	}
	return r
}

// ByKey returns the field for the given key, or nil if not found.
func (r *Registry) ByKey(key string) *Field {
	return r.byKey[key]
}

// Keys returns all field keys in declaration order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// Len returns the number of expected fields.
func (r *Registry) Len() int {
	return len(r.Fields)
}

type registryFile struct {
	Fields []Field `yaml:"fields"`
}

// LoadFile reads a field registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}
	if len(rf.Fields) == 0 {
		return nil, eris.Errorf("registry: %s defines no fields", path)
	}
	for _, f := range rf.Fields {
		if f.Key == "" {
			return nil, eris.Errorf("registry: %s contains a field without a key", path)
		}
	}

	return New(rf.Fields), nil
}

// Load returns the registry at path, or the built-in default when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// Default returns the built-in registry for insulation product datasheets.
// Aliases cover the English and Hungarian labels seen in vendor documents.
func Default() *Registry {
	return New([]Field{
		{
			Key: "thermal_conductivity", Label: "Thermal conductivity", Kind: KindNumber, Unit: "W/mK",
			Aliases: []string{"thermal conductivity", "lambda", "λ", "hővezetési tényező", "deklarált hővezetési tényező"},
		},
		{
			Key: "fire_classification", Label: "Fire classification", Kind: KindString,
			Aliases: []string{"fire classification", "reaction to fire", "fire rating", "tűzvédelmi osztály", "éghetőségi osztály"},
		},
		{
			Key: "density", Label: "Density", Kind: KindNumber, Unit: "kg/m3",
			Aliases: []string{"density", "nominal density", "testsűrűség", "sűrűség"},
		},
		{
			Key: "compressive_strength", Label: "Compressive strength", Kind: KindNumber, Unit: "kPa",
			Aliases: []string{"compressive strength", "compressive stress", "nyomószilárdság", "nyomófeszültség"},
		},
		{
			Key: "tensile_strength", Label: "Tensile strength", Kind: KindNumber, Unit: "kPa",
			Aliases: []string{"tensile strength", "tensile strength perpendicular", "húzószilárdság"},
		},
		{
			Key: "water_vapour_resistance", Label: "Water vapour diffusion resistance", Kind: KindNumber, Unit: "μ",
			Aliases: []string{"water vapour diffusion resistance", "vapour resistance factor", "mu-value", "páradiffúziós ellenállás"},
		},
		{
			Key: "max_service_temperature", Label: "Maximum service temperature", Kind: KindNumber, Unit: "°C",
			Aliases: []string{"maximum service temperature", "max service temperature", "olvadáspont", "alkalmazási határhőmérséklet"},
		},
		{
			Key: "thickness", Label: "Thickness", Kind: KindNumber, Unit: "mm",
			Aliases: []string{"thickness", "vastagság"},
		},
		{
			Key: "price_per_m2", Label: "Price per square metre", Kind: KindNumber, Unit: "HUF/m2",
			Aliases: []string{"price", "unit price", "ár", "egységár", "listaár"},
		},
	})
}
