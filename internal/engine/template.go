package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/Mailflow/internal/domain"
)

// MailContext — данные контакта для рендеринга шаблонов писем.
//
// Используется в Go templates для доступа к данным:
//   - {{ .Email }}
//   - {{ .Name }}
//   - {{ .Attr.city }}
type MailContext struct {
	// Email — адрес контакта.
	Email string

	// Name — имя контакта.
	Name string

	// Attr — произвольные атрибуты контакта.
	Attr map[string]string
}

// NewMailContext создаёт контекст рендеринга из контакта.
func NewMailContext(contact *domain.Contact) *MailContext {
	attr := contact.Attributes
	if attr == nil {
		attr = make(map[string]string)
	}
	return &MailContext{
		Email: contact.Email,
		Name:  contact.Name,
		Attr:  attr,
	}
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// default — возвращает значение по умолчанию, если аргумент пустой
	"default": func(def, val string) string {
		if val == "" {
			return def
		}
		return val
	},

	// lower — приводит к нижнему регистру
	"lower": strings.ToLower,

	// upper — приводит к верхнему регистру
	"upper": strings.ToUpper,

	// trim — удаляет пробелы по краям
	"trim": strings.TrimSpace,
}

// Render рендерит строковый шаблон с данными контакта.
//
// Шаблон может содержать Go template выражения:
//
//	Привет, {{ default "друг" .Name }}!
//	{{ if .Attr.premium }}...{{ end }}
func Render(tmpl string, ctx *MailContext) (string, error) {
	// Строка без шаблонных выражений возвращается как есть
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	return buf.String(), nil
}

// RenderEmail рендерит тему и тело шаблона письма для контакта.
func RenderEmail(tpl *domain.Template, contact *domain.Contact) (subject, bodyHTML string, err error) {
	ctx := NewMailContext(contact)

	subject, err = Render(tpl.Subject, ctx)
	if err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}

	bodyHTML, err = Render(tpl.BodyHTML, ctx)
	if err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}

	return subject, bodyHTML, nil
}

// AppendTrackingPixel добавляет в HTML-тело однопиксельное изображение
// для трекинга открытий. Пиксель вставляется перед </body>, если тег
// есть, иначе — в конец тела.
func AppendTrackingPixel(bodyHTML, pixelURL string) string {
	pixel := fmt.Sprintf(`<img src=%q width="1" height="1" alt="" style="display:none">`, pixelURL)

	if idx := strings.LastIndex(strings.ToLower(bodyHTML), "</body>"); idx >= 0 {
		return bodyHTML[:idx] + pixel + bodyHTML[idx:]
	}
	return bodyHTML + pixel
}
