package gen

import (
	"bytes"
	"embed"
	"strconv"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("gen").Funcs(template.FuncMap{
	"quote":   strconv.Quote,
	"comment": comment,
}).ParseFS(templateFS, "templates/*.tmpl"))

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// comment renders doc, or fallback when doc is empty, as a line comment
// block indented by indent. Both empty renders nothing.
func comment(indent, doc, fallback string) string {
	text := strings.TrimSpace(doc)
	if text == "" {
		text = fallback
	}
	if text == "" {
		return ""
	}
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		line = strings.TrimRight(line, " \t")
		if line == "" {
			b.WriteString(indent + "//")
			continue
		}
		b.WriteString(indent + "// " + line)
	}
	return b.String()
}
