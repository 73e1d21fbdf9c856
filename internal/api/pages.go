package api

import (
	"embed"
	"html/template"
	"io"

	"termin/internal/service"

	"github.com/labstack/echo/v4"
)

//go:embed web/*.html
var pageFS embed.FS

type pageRenderer struct {
	templates *template.Template
}

func newPageRenderer() *pageRenderer {
	return &pageRenderer{templates: template.Must(template.ParseFS(pageFS, "web/*.html"))}
}

func (r *pageRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// formPage is the view model of the public booking form.
type formPage struct {
	AppName string
	Form    service.SubmitRequest
	Errors  map[string]string
	// Reason is a message for the whole form: slot rejection or rate limit.
	Reason  string
	MinDate string
}
