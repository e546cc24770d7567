// Package envtemplate expands "{{ NAME }}" placeholders against a
// strictly left-to-right ordered set of bindings, per spec.md §4.7. Names
// are resolved against whatever has been bound so far; a forward
// reference to a name that hasn't been bound yet is passed through
// literally rather than failing.
package envtemplate

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

// TemplateError reports a syntactically malformed placeholder, e.g.
// unbalanced "{{"/"}}" delimiters.
type TemplateError struct {
	Template string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

// Bindings is the ordered name->value map built up as a program's env list
// is walked left to right. Lookup only ever sees what's been Bind-ed so
// far, which is what gives template expansion its left-to-right semantics.
type Bindings struct {
	order  []string
	values map[string]string
}

// NewBindings returns an empty binding set.
func NewBindings() *Bindings {
	return &Bindings{values: make(map[string]string)}
}

// Bind records name=value. Re-binding an existing name keeps its original
// position in Env's output order and only updates the value.
func (b *Bindings) Bind(name, value string) {
	if _, ok := b.values[name]; !ok {
		b.order = append(b.order, name)
	}
	b.values[name] = value
}

// Lookup returns the value bound to name so far, if any.
func (b *Bindings) Lookup(name string) (string, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Env renders the bindings as "KEY=VALUE" pairs in bind order, ready for
// exec.Cmd.Env.
func (b *Bindings) Env() []string {
	out := make([]string, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, k+"="+b.values[k])
	}
	return out
}

// Expand substitutes every "{{ NAME }}" placeholder in template against
// bindings. A name not yet bound is left as the literal placeholder text
// rather than causing a failure, matching spec.md §4.7's "yields either
// the literal template or a substituted value" allowance. Expand only
// fails with TemplateError on malformed delimiters.
func Expand(template string, bindings *Bindings) (string, error) {
	t, err := fasttemplate.NewTemplate(template, "{{", "}}")
	if err != nil {
		return "", &TemplateError{Template: template, Reason: err.Error()}
	}

	return t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		name := strings.TrimSpace(tag)
		if v, ok := bindings.Lookup(name); ok {
			return w.Write([]byte(v))
		}
		return fmt.Fprintf(w, "{{ %s }}", name)
	}), nil
}

// LooksUnresolved reports whether s still contains what looks like an
// unexpanded placeholder, mirroring the original implementation's warning
// for templates that survive expansion unresolved.
func LooksUnresolved(s string) bool {
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}
