package http

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed static
var staticFiles embed.FS

// StaticPages serves the public marketing and player pages. Extensionless
// paths resolve to the matching .html file, so /play serves play.html.
func StaticPages() http.Handler {
	root, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.Trim(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "index"
		}
		if path.Ext(name) == "" {
			if _, err := fs.Stat(root, name+".html"); err == nil {
				http.ServeFileFS(w, r, root, name+".html")
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}
