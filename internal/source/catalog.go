package source

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/omnilink/internal/compiler"
)

// LoadCatalog loads a CUE template catalog.
//
// path may be a single .cue file or a directory holding one CUE package;
// all files of the package are unified before the catalog is compiled.
func LoadCatalog(path string) (*compiler.Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	ctx := cuecontext.New()

	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("no CUE instances loaded")}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("loading CUE files: %w", inst.Err)}
		}
		value = ctx.BuildInstance(inst)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
	}

	cat, err := compiler.CompileCatalog(value)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}
