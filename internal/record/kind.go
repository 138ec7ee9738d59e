// kind.go: the closed set of record kinds and their per-kind configuration.
package record

import (
	"github.com/phenobase/fieldstore/internal/errors"
)

// Kind identifies which producing entity generated an observation record.
type Kind string

const (
	KindDataset   Kind = "dataset"
	KindSensor    Kind = "sensor"
	KindTrait     Kind = "trait"
	KindModel     Kind = "model"
	KindProcedure Kind = "procedure"
	KindScript    Kind = "script"
)

// kindConfig carries the per-kind behavior that used to be duplicated across
// six separate record modules.
type kindConfig struct {
	prefix     string // first segment of the storage key
	plotScoped bool   // sensor and trait records carry plot coordinates
}

var kinds = map[Kind]kindConfig{
	KindDataset:   {prefix: "dataset_data"},
	KindSensor:    {prefix: "sensor_data", plotScoped: true},
	KindTrait:     {prefix: "trait_data", plotScoped: true},
	KindModel:     {prefix: "model_data"},
	KindProcedure: {prefix: "procedure_data"},
	KindScript:    {prefix: "script_data"},
}

// AllKinds returns the closed set of record kinds in a stable order.
func AllKinds() []Kind {
	return []Kind{KindDataset, KindSensor, KindTrait, KindModel, KindProcedure, KindScript}
}

// ParseKind converts a string into a Kind, rejecting anything outside the closed set.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; !ok {
		return "", errors.Newf("unknown record kind %q", s).
			Component("record").
			Category(errors.CategoryValidation).
			Context("kind", s).
			Build()
	}
	return k, nil
}

// StoragePrefix returns the first segment of the deterministic storage key
// for this kind, e.g. "sensor_data".
func (k Kind) StoragePrefix() string {
	return kinds[k].prefix
}

// PlotScoped reports whether records of this kind carry plot coordinates.
func (k Kind) PlotScoped() bool {
	return kinds[k].plotScoped
}

// Valid reports whether k belongs to the closed kind set.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}
