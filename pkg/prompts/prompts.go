// Package prompts renders the system prompt sent to the model.
package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

// DefaultIdentityKey is the tool argument that carries the user identity.
const DefaultIdentityKey = "user_id"

// DefaultCapabilities lists the account tasks the assistant helps with.
var DefaultCapabilities = []string{
	"Changing passwords",
	"Checking account balances",
	"Updating addresses",
	"Viewing recent transactions",
	"Deactivating cards for security",
	"Reporting issues",
	"Getting account details",
}

// SystemPromptTemplate is the default customer support system prompt.
const SystemPromptTemplate = `{{- $key := .IdentityKey | default "user_id" -}}
You are a helpful {{ .Role | default "customer support assistant" }}. You help customers with various account-related tasks such as:

{{ range .Capabilities }}- {{ . }}
{{ end }}
You should:
1. Be friendly, professional, and empathetic
2. Confirm sensitive actions before executing them
3. Provide clear feedback about what actions were taken
4. Ask for clarification when needed
5. Handle errors gracefully and inform the user

IMPORTANT: The user is already authenticated and their {{ $key }} is automatically provided to all tools. You do NOT need to ask for {{ $key }} - just use the tools directly. When a user asks "what's my balance?" or "show my transactions", immediately call the appropriate tool without asking for {{ $key }}.
{{- with .Extra }}

{{ . | trim }}
{{- end }}`

// SystemPromptData is the input of the system prompt template.
type SystemPromptData struct {
	// Role of the assistant, "customer support assistant" by default.
	Role string
	// IdentityKey is the tool argument injected by the agent.
	IdentityKey string
	// Capabilities are listed in the prompt, DefaultCapabilities if empty.
	Capabilities []string
	// Extra instructions appended to the prompt.
	Extra string
}

// Template is a parsed prompt template with the sprig functions.
type Template struct {
	tmpl *template.Template
}

// New parses the prompt template.
func New(name, text string) (*Template, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse prompt template %s", name)
	}
	return &Template{tmpl: tmpl}, nil
}

// Render executes the template with the data.
func (t *Template) Render(data any) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, data); err != nil {
		return "", errors.Wrapf(err, "failed to render prompt template %s", t.tmpl.Name())
	}
	return sb.String(), nil
}

// SystemPrompt renders the system prompt from text,
// SystemPromptTemplate is used if text is empty.
func SystemPrompt(text string, data SystemPromptData) (string, error) {
	if text == "" {
		text = SystemPromptTemplate
	}
	if len(data.Capabilities) == 0 {
		data.Capabilities = DefaultCapabilities
	}

	t, err := New("system", text)
	if err != nil {
		return "", err
	}
	return t.Render(data)
}
