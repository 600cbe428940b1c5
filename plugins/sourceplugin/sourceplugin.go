// Package sourceplugin loads the operator-supplied Go plugin implementing
// this node's external collaborators: the leaf mutation primitive, the
// initial-sync data cloner and the candidate prober.
//
// A source plugin must export:
//
//	func NewSource(config map[string]interface{}) (sourceplugin.Source, error)
package sourceplugin

import (
	"fmt"
	"path/filepath"
	"plugin"

	"github.com/pkg/errors"

	"github.com/chronodb/oplogd/apply"
)

// Source bundles the external collaborators one plugin module supplies.
type Source struct {
	Leaf   apply.LeafApplier
	Cloner apply.DataCloner
	Prober apply.CandidateProber
	// Prefetch pages in the documents/indexes op will touch, using Leaf's
	// own read path.
	Prefetch apply.PrefetchFunc
}

const newSourceSymbol = "NewSource"

// Open loads the plugin module at path and instantiates a Source from its
// NewSource symbol. path may be absolute or relative to the current working
// directory; config is passed through to NewSource unchanged.
func Open(path string, config map[string]interface{}) (Source, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(".", path)
	}
	mod, err := plugin.Open(path)
	if err != nil {
		return Source{}, errors.Wrapf(err, "sourceplugin: opening plugin at %s", path)
	}

	sym, err := mod.Lookup(newSourceSymbol)
	if err != nil {
		return Source{}, fmt.Errorf("sourceplugin: %s does not export %s: %w", path, newSourceSymbol, err)
	}

	newFunc, ok := sym.(func(map[string]interface{}) (Source, error))
	if !ok {
		return Source{}, fmt.Errorf("sourceplugin: %s's %s does not comply with the expected function signature", path, newSourceSymbol)
	}
	return newFunc(config)
}
