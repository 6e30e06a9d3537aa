package view

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Renderer writes rows in one output format.
type Renderer interface {
	Render(w io.Writer, rows []Row) error
	ContentType() string
}

// Format names accepted by ForFormat.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatHTML    = "html"
	FormatMsgPack = "msgpack"
)

// ForFormat returns the renderer registered under name.
func ForFormat(name string) (Renderer, error) {
	switch strings.ToLower(name) {
	case FormatText, "":
		return Text{}, nil
	case FormatJSON:
		return JSON{}, nil
	case FormatYAML, "yml":
		return YAML{}, nil
	case FormatHTML:
		return HTML{}, nil
	case FormatMsgPack:
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", name)
	}
}

var rowsTemplate = template.Must(template.New("rows").Parse(
	`{{range .}}<tr><td>{{.Name}}</td><td><pre>{{.Content}}</pre></td></tr>
{{end}}`))

// HTML renders the <tbody> rows of the results table. Names and contents are escaped.
type HTML struct{}

func (HTML) Render(w io.Writer, rows []Row) error {
	return rowsTemplate.Execute(w, rows)
}

func (HTML) ContentType() string { return "text/html; charset=utf-8" }

// Fragment renders rows to a string for embedding in a page or a push message.
func (h HTML) Fragment(rows []Row) (template.HTML, error) {
	var sb strings.Builder
	if err := h.Render(&sb, rows); err != nil {
		return "", err
	}
	return template.HTML(sb.String()), nil
}

// Text renders an aligned NAME/CONTENT table. Multi-line content continues on
// following lines under the CONTENT column.
type Text struct{}

func (Text) Render(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCONTENT")
	for _, r := range rows {
		lines := strings.Split(strings.TrimSuffix(r.Content, "\n"), "\n")
		for i, line := range lines {
			name := ""
			if i == 0 {
				name = r.Name
			}
			fmt.Fprintf(tw, "%s\t%s\n", name, strings.ReplaceAll(line, "\t", "    "))
		}
	}
	return tw.Flush()
}

func (Text) ContentType() string { return "text/plain; charset=utf-8" }

// JSON renders rows as an indented JSON array.
type JSON struct{}

func (JSON) Render(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func (JSON) ContentType() string { return "application/json; charset=utf-8" }

// YAML renders rows as a YAML sequence.
type YAML struct{}

func (YAML) Render(w io.Writer, rows []Row) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return enc.Close()
}

func (YAML) ContentType() string { return "application/yaml" }

// MsgPack renders rows as a msgpack array.
type MsgPack struct{}

func (MsgPack) Render(w io.Writer, rows []Row) error {
	return msgpack.NewEncoder(w).Encode(rows)
}

func (MsgPack) ContentType() string { return "application/msgpack" }
