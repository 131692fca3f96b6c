/*
 *	Copyright 2024 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package ascendcl implements driver.API over the libascendcl.so installed with the Ascend toolkit (CANN).
//
// The library is loaded dynamically at runtime (no cgo or ACL headers are needed to build), and searched in:
//
//  1. The directories listed in $GOACL_LIBRARY_PATH (":" separated), if it is set. Nothing else is searched then.
//  2. The "runtime/lib64" directory of the Ascend toolkit: $ASCEND_TOOLKIT_HOME, $HOME/Ascend/ascend-toolkit/latest
//     or /usr/local/Ascend/ascend-toolkit/latest -- the first one that has a "version.cfg" file.
//  3. The directories in $LD_LIBRARY_PATH and in /etc/ld.so.conf.
//
// It is only supported in linux. If the library is not found, Load returns an error matching ErrNotFound.
package ascendcl

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// LibraryPathsEnv is the name of the environment variable that defines the search paths for libascendcl.so.
	LibraryPathsEnv = "GOACL_LIBRARY_PATH"

	// ToolkitHomeEnv is the environment variable with the installation directory of the Ascend toolkit.
	// It is set by the toolkit's set_env.sh script.
	ToolkitHomeEnv = "ASCEND_TOOLKIT_HOME"

	// LibraryName is the file name of the ACL library.
	LibraryName = "libascendcl.so"

	// toolkitMarker is the file that identifies a toolkit installation directory.
	toolkitMarker = "version.cfg"
)

// ErrNotFound is returned (wrapped) by Load when the ACL library is not available in the system.
var ErrNotFound = errors.New("ACL library not found")

var (
	// loaded caches the library once loaded. Protected by muLoad.
	loaded *Library
	muLoad sync.Mutex
)

// Load searches and loads libascendcl.so. The library is loaded only once, and the same *Library is returned on
// subsequent calls. Notice the returned Library still needs to be initialized (see driver.API Init).
//
// It uses a mutex to serialize (make it safe) calls from different goroutines.
func Load() (*Library, error) {
	muLoad.Lock()
	defer muLoad.Unlock()
	if loaded != nil {
		return loaded, nil
	}
	paths := SearchPaths()
	libPath, found := searchLibrary(paths)
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "%s not found in paths %v: install the Ascend toolkit and source its set_env.sh, "+
			"or set %s to the directory with the library", LibraryName, paths, LibraryPathsEnv)
	}
	klog.V(1).Infof("attempting to load ACL library from %s", libPath)
	lib, err := open(libPath)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load ACL library from %q", libPath)
	}
	loaded = lib
	return lib, nil
}

// SearchPaths returns the directories where libascendcl.so is searched, in order.
func SearchPaths() []string {
	if envPaths, found := os.LookupEnv(LibraryPathsEnv); found {
		return slices.DeleteFunc(strings.Split(envPaths, ":"), func(p string) bool {
			return p == "" // Remove empty paths.
		})
	}
	var paths []string
	if home, found := FindToolkit(); found {
		paths = append(paths, filepath.Join(home, "runtime", "lib64"), filepath.Join(home, "lib64"))
	}
	for _, ldPath := range strings.Split(os.Getenv("LD_LIBRARY_PATH"), ":") {
		if ldPath == "" || !path.IsAbs(ldPath) {
			// No empty or relative paths.
			continue
		}
		paths = append(paths, ldPath)
	}
	return loadLibraryPaths(paths, "/etc/ld.so.conf")
}

// FindToolkit returns the installation directory of the Ascend toolkit, if one is found.
func FindToolkit() (home string, found bool) {
	return findToolkit(toolkitCandidates())
}

// toolkitCandidates returns the possible toolkit installation directories, in order of preference.
func toolkitCandidates() []string {
	var candidates []string
	if home := os.Getenv(ToolkitHomeEnv); home != "" {
		candidates = append(candidates, home)
	}
	if userHome, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(userHome, "Ascend", "ascend-toolkit", "latest"))
	} else {
		klog.V(2).Infof("Couldn't get user's home directory -- it won't be searched for the Ascend toolkit: %v", err)
	}
	return append(candidates, "/usr/local/Ascend/ascend-toolkit/latest")
}

func findToolkit(candidates []string) (string, bool) {
	for _, candidate := range candidates {
		info, err := os.Stat(filepath.Join(candidate, toolkitMarker))
		if err == nil && !info.IsDir() {
			klog.V(2).Infof("found Ascend toolkit in %s", candidate)
			return candidate, true
		}
	}
	return "", false
}

// searchLibrary returns the path of the first libascendcl.so found in the given directories.
func searchLibrary(paths []string) (string, bool) {
	for _, dir := range paths {
		libPath := filepath.Join(dir, LibraryName)
		info, err := os.Stat(libPath)
		if err != nil || info.IsDir() {
			continue
		}
		return libPath, true
	}
	return "", false
}
