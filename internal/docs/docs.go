// Package docs renders the command reference from a loaded registry.
package docs

import (
	"io"
	"strings"
	"text/template"

	"github.com/keshon/warden/pkg/cmd"
)

// Entry is one documented command.
type Entry struct {
	Name        string
	Description string
	Aliases     []string
}

// Section groups the commands of one feature, named after the first path
// segment of their modules.
type Section struct {
	Title  string
	Slash  []Entry
	Prefix []Entry
}

const reference = `# Commands
{{range .Sections}}
## {{.Title}}
{{range .Slash}}
- **/{{.Name}}** - {{.Description}}
{{- end}}
{{- range .Prefix}}
- **{{$.Prefix}}{{.Name}}** - {{.Description}}{{if .Aliases}} (also {{join .Aliases}}){{end}}
{{- end}}
{{end}}`

// Sections collects the registry into feature sections, in path order.
func Sections(reg *cmd.Registry) []Section {
	var out []Section
	index := map[string]int{}
	section := func(path string) *Section {
		title, _, _ := strings.Cut(path, "/")
		i, ok := index[title]
		if !ok {
			i = len(out)
			index[title] = i
			out = append(out, Section{Title: title})
		}
		return &out[i]
	}

	for _, m := range reg.Modules(cmd.KindSlash) {
		s := section(m.Path)
		s.Slash = append(s.Slash, Entry{Name: m.Name(), Description: m.Command.Description()})
	}
	for _, m := range reg.Modules(cmd.KindPrefix) {
		e := Entry{Name: m.Name(), Description: m.Command.Description()}
		if al, ok := cmd.Root(m.Command).(cmd.Aliased); ok {
			e.Aliases = al.Aliases()
		}
		s := section(m.Path)
		s.Prefix = append(s.Prefix, e)
	}
	return out
}

// Write renders the markdown reference. prefix is the message prefix shown
// in front of prefix commands.
func Write(w io.Writer, reg *cmd.Registry, prefix string) error {
	t, err := template.New("reference").Funcs(template.FuncMap{
		"join": func(a []string) string { return prefix + strings.Join(a, ", "+prefix) },
	}).Parse(reference)
	if err != nil {
		return err
	}
	return t.Execute(w, struct {
		Sections []Section
		Prefix   string
	}{Sections(reg), prefix})
}
