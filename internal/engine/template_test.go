package engine

import (
	"strings"
	"testing"

	"github.com/shaiso/Mailflow/internal/domain"
)

func testMailContext() *MailContext {
	return &MailContext{
		Email: "alice@example.com",
		Name:  "Alice",
		Attr:  map[string]string{"city": "Berlin"},
	}
}

func TestRender_PlainString(t *testing.T) {
	got, err := Render("no variables here", testMailContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "no variables here" {
		t.Errorf("plain string should pass through, got %q", got)
	}
}

func TestRender_Variables(t *testing.T) {
	got, err := Render("Hi {{ .Name }} ({{ .Email }}) from {{ .Attr.city }}", testMailContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hi Alice (alice@example.com) from Berlin" {
		t.Errorf("unexpected render result: %q", got)
	}
}

func TestRender_DefaultFunc(t *testing.T) {
	ctx := testMailContext()
	ctx.Name = ""

	got, err := Render(`Hi {{ default "friend" .Name }}`, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hi friend" {
		t.Errorf("expected fallback to default, got %q", got)
	}
}

func TestRender_CaseFuncs(t *testing.T) {
	got, err := Render("{{ upper .Name }} {{ lower .Email }}", testMailContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ALICE alice@example.com" {
		t.Errorf("unexpected render result: %q", got)
	}
}

func TestRender_ParseError(t *testing.T) {
	if _, err := Render("{{ .Name", testMailContext()); err == nil {
		t.Error("expected parse error for unclosed expression")
	}
}

func TestRenderEmail(t *testing.T) {
	tpl := &domain.Template{
		Subject:  "Welcome, {{ .Name }}!",
		BodyHTML: "<p>Hello {{ .Email }}</p>",
	}
	contact := &domain.Contact{Email: "alice@example.com", Name: "Alice"}

	subject, body, err := RenderEmail(tpl, contact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Welcome, Alice!" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if body != "<p>Hello alice@example.com</p>" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestRenderEmail_NilAttributes(t *testing.T) {
	tpl := &domain.Template{Subject: "Hi", BodyHTML: "city: {{ .Attr.city }}"}
	contact := &domain.Contact{Email: "alice@example.com"}

	_, body, err := RenderEmail(tpl, contact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "city: " {
		t.Errorf("missing attribute should render empty, got %q", body)
	}
}

func TestAppendTrackingPixel_BeforeBodyClose(t *testing.T) {
	got := AppendTrackingPixel("<html><body>Hi</body></html>", "https://t.example.com/t/x.png")

	if !strings.Contains(got, `src="https://t.example.com/t/x.png"`) {
		t.Error("pixel URL should be embedded")
	}
	if strings.Index(got, "<img") > strings.Index(got, "</body>") {
		t.Error("pixel should be inserted before </body>")
	}
}

func TestAppendTrackingPixel_NoBodyTag(t *testing.T) {
	got := AppendTrackingPixel("<p>Hi</p>", "https://t.example.com/t/x.png")

	if !strings.HasSuffix(got, `style="display:none">`) {
		t.Errorf("pixel should be appended to the end, got %q", got)
	}
}
