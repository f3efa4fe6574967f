package web

import (
	"embed"
	"io/fs"
)

//go:embed index.html
var Index []byte

//go:embed static
var assets embed.FS

// Static returns the files served under /static/.
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
