//go:build linux

package ascendcl

import (
	"os"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// open dlopens the library and binds all the functions used.
func open(libPath string) (*Library, error) {
	info, err := os.Stat(libPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %q", libPath)
	}
	if info.IsDir() {
		return nil, errors.Errorf("library path %q is a directory!?", libPath)
	}

	handle, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		err = errors.Wrapf(err, "failed to dynamically load %q -- check with `ldd %s` in case there are missing "+
			"required libraries (the toolkit's set_env.sh sets LD_LIBRARY_PATH)", libPath, libPath)
		klog.Warningf("%v", err)
		return nil, err
	}
	lib := &Library{path: libPath}
	for name, fn := range lib.symbols() {
		sym, err := purego.Dlsym(handle, name)
		if err != nil {
			_ = purego.Dlclose(handle)
			return nil, errors.Wrapf(err, "symbol %q not found in %q", name, libPath)
		}
		purego.RegisterFunc(fn, sym)
	}
	klog.V(1).Infof("loaded %s", lib)
	return lib, nil
}
