package videobackend

import "github.com/spf13/afero"

func OverloadFS(overload afero.Fs) func() {
	fsRef := fs
	fs = overload
	return func() { fs = fsRef }
}

var EnsureLocalSourceExists = ensureLocalSourceExists
