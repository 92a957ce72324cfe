package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
)

var (
	//go:embed change.html
	changeHTML     string
	changeTemplate = template.Must(template.New("change.html").Parse(changeHTML))
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

// ChangeEmailFormat renders a channel change as an HTML email.
type ChangeEmailFormat struct {
	ChannelName string
	Title       string
	Description string
	URL         string
	ImageURL    string
}

func (ef *ChangeEmailFormat) Subject() string {
	return fmt.Sprintf("Streamwatch: %s", ef.Title)
}

func (ef *ChangeEmailFormat) Body() string {
	return mustFillTemplate(changeTemplate, ef)
}
