// Package clientscript renders the storefront tag served at /gateway.js.
// The tag negotiates a transport at load time, most capable first, and
// degrades to a query string image request when nothing better exists.
package clientscript

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed gateway.js
var scriptFS embed.FS

// Renderer renders the gateway tag for a given storefront.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded tag template.
func New() (*Renderer, error) {
	raw, err := scriptFS.ReadFile("gateway.js")
	if err != nil {
		return nil, fmt.Errorf("read embedded script: %w", err)
	}
	tmpl, err := template.New("gateway.js").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse script template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the tag body with the gateway endpoint and shop domain
// substituted in.
func (r *Renderer) Render(endpoint, shop string) ([]byte, error) {
	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, struct {
		Endpoint string
		Shop     string
	}{Endpoint: endpoint, Shop: shop})
	if err != nil {
		return nil, fmt.Errorf("render script: %w", err)
	}
	return buf.Bytes(), nil
}
