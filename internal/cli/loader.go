package cli

import (
	"os"
	"path/filepath"

	"github.com/roach88/omnilink/internal/engine"
	"github.com/roach88/omnilink/internal/source"
	"github.com/roach88/omnilink/internal/types"
)

// templateSource picks the loader for path. CUE catalogs (.cue files or
// package directories) register their custom types into reg on Load.
func templateSource(path string, reg *types.Registry) source.Source {
	if filepath.Ext(path) == ".cue" {
		return source.Catalog{Path: path, Types: reg}
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return source.Catalog{Path: path, Types: reg}
	}
	return source.File{Path: path}
}

// loadTemplates reads the templates at path, registering catalog types
// into reg. Failures are reported through f.
func loadTemplates(f *OutputFormatter, path string, reg *types.Registry) ([]string, error) {
	templates, err := templateSource(path, reg).Load()
	if err != nil {
		if source.IsNotFound(err) {
			return nil, f.fail(ExitCommandError, ErrCodeNotFound, "templates not found", err)
		}
		return nil, f.fail(ExitCommandError, ErrCodeLoad, "failed to load templates", err)
	}
	f.VerboseLog("Loaded %d template(s) from %s", len(templates), path)
	return templates, nil
}

// loadEngine builds an engine over the templates at path.
func loadEngine(f *OutputFormatter, path string, opts ...engine.EngineOption) (*engine.Engine, error) {
	reg := types.New()
	templates, err := loadTemplates(f, path, reg)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(templates, append(opts, engine.WithTypes(reg))...)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeLoad, "failed to compile templates", err)
	}
	return eng, nil
}
