package data

import (
	"github.com/spf13/afero"
	"gorm.io/gorm"
)

func OverloadUC(overload func() (string, error)) func() {
	ucRef := uc
	uc = overload
	return func() { uc = ucRef }
}

func OverloadFS(overload afero.Fs) func() {
	fsRef := fs
	fs = overload
	return func() { fs = fsRef }
}

func OverloadOpenDBConnection(overload func(string) (*gorm.DB, error)) func() {
	openRef := openDBConnection
	openDBConnection = overload
	return func() { openDBConnection = openRef }
}

func CurrentOpenDBConnection() func(string) (*gorm.DB, error) {
	return openDBConnection
}
