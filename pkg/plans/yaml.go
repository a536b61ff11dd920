package plans

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of a plan catalog definition.
type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// ParseYAML decodes a plan catalog from YAML bytes. Plans are returned in
// document order; the first plan is the catalog default.
//
// Expected shape:
//
//	plans:
//	  - code: starter
//	    tag: default
//	    name: Starter
//	    price: {amount: 999, currency: USD}
//	    duration_days: 30
//	    grace_days: 3
//	    features:
//	      - {code: api-calls, type: limit, limit: 1000}
//	      - {code: sso, type: boolean}
func ParseYAML(data []byte) ([]Plan, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("%w: no plans defined", ErrFailedToLoadCatalog)
	}
	return file.Plans, nil
}

// NewYAMLCatalog reads a catalog definition file and builds an in-memory
// Catalog from it.
func NewYAMLCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	defs, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return NewInMemCatalog(defs)
}
