//go:build !linux

package ascendcl

import (
	"runtime"

	"github.com/pkg/errors"
)

// open is only implemented for linux.
func open(libPath string) (*Library, error) {
	return nil, errors.Wrapf(ErrNotFound, "the ACL library %q can't be loaded in %s, only linux is supported", libPath, runtime.GOOS)
}
