package runs

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Static returns the page that drives the run endpoints.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}

	return sub
}
