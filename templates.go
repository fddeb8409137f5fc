package passwordless

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// MessageTemplates carries the alias specific message options used when a
// token is delivered. Email fields are ignored for mobile and vice versa.
type MessageTemplates struct {
	EmailSubject   string
	EmailPlaintext string
	// EmailHTML is a template name resolved by the TemplateRenderer.
	EmailHTML     string
	MobileMessage string
}

// TemplateRenderer renders email html templates written in django syntax.
type TemplateRenderer struct {
	fsys  fs.FS
	mu    sync.Mutex
	cache map[string]*pongo2.Template
}

// NewTemplateRenderer loads templates from dir, falling back to the embedded
// defaults when dir is empty.
func NewTemplateRenderer(dir string) *TemplateRenderer {
	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(templatesFS, "data/templates")
		if err != nil {
			// embedded path is fixed at build time
			panic(err)
		}
		fsys = sub
	}
	return NewTemplateRendererFS(fsys)
}

// NewTemplateRendererFS loads templates from fsys.
func NewTemplateRendererFS(fsys fs.FS) *TemplateRenderer {
	return &TemplateRenderer{
		fsys:  fsys,
		cache: map[string]*pongo2.Template{},
	}
}

// Render executes the named template with the callback token key.
func (r *TemplateRenderer) Render(name, key string) (string, error) {
	if name == "" {
		return "", nil
	}

	tpl, err := r.template(name)
	if err != nil {
		return "", err
	}

	out, err := tpl.Execute(pongo2.Context{"callback_token": key})
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return out, nil
}

func (r *TemplateRenderer) template(name string) (*pongo2.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tpl, ok := r.cache[name]; ok {
		return tpl, nil
	}

	data, err := fs.ReadFile(r.fsys, path.Clean(name))
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}

	tpl, err := pongo2.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	r.cache[name] = tpl
	return tpl, nil
}

// formatMessage places key where the message has a %s verb, or appends it.
func formatMessage(message, key string) string {
	if strings.Contains(message, "%s") {
		return strings.Replace(message, "%s", key, 1)
	}
	if message == "" {
		return key
	}
	return message + " " + key
}
