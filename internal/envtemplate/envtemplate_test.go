package envtemplate

import "testing"

func TestExpandSubstitutesBoundName(t *testing.T) {
	b := NewBindings()
	b.Bind("GREETING", "hello")
	out, err := Expand("{{ GREETING }} world", b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("got %q", out)
	}
}

func TestExpandIsLeftToRight(t *testing.T) {
	b := NewBindings()
	b.Bind("A", "1")
	out, err := Expand("{{ A }}-{{ B }}", b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// B hasn't been bound yet at the time this value is expanded, so it
	// passes through literally rather than failing.
	if out != "1-{{ B }}" {
		t.Fatalf("got %q", out)
	}
	b.Bind("B", "2")
	out2, err := Expand("{{ A }}-{{ B }}", b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out2 != "1-2" {
		t.Fatalf("got %q", out2)
	}
}

func TestExpandPassesThroughUnboundName(t *testing.T) {
	b := NewBindings()
	out, err := Expand("{{ MISSING }}", b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{{ MISSING }}" {
		t.Fatalf("expected literal pass-through, got %q", out)
	}
}

func TestExpandRejectsMalformedDelimiters(t *testing.T) {
	b := NewBindings()
	_, err := Expand("{{ UNCLOSED", b)
	if err == nil {
		t.Fatalf("expected TemplateError for unbalanced delimiters")
	}
	var te *TemplateError
	if _, ok := err.(*TemplateError); !ok {
		t.Fatalf("expected *TemplateError, got %T", err)
	}
	_ = te
}

func TestLooksUnresolvedDetectsSurvivingPlaceholder(t *testing.T) {
	if !LooksUnresolved("still {{ unbound }} here") {
		t.Fatalf("expected true")
	}
	if LooksUnresolved("fully resolved") {
		t.Fatalf("expected false")
	}
	// A single unmatched brace, as exercised by the env-sanitisation
	// usecase's malformed "{{ ENV_VAR }" input, isn't a placeholder.
	if LooksUnresolved("{{ ENV_VAR }") {
		t.Fatalf("expected false for unbalanced single-brace text")
	}
}

func TestBindingsEnvPreservesBindOrder(t *testing.T) {
	b := NewBindings()
	b.Bind("FIRST", "1")
	b.Bind("SECOND", "2")
	b.Bind("FIRST", "override")
	env := b.Env()
	if len(env) != 2 {
		t.Fatalf("expected 2 entries, got %v", env)
	}
	if env[0] != "FIRST=override" || env[1] != "SECOND=2" {
		t.Fatalf("got %v", env)
	}
}

func FuzzExpand(f *testing.F) {
	f.Add("{{ NAME }}")
	f.Add("no placeholders here")
	f.Add("{{ A }}{{ B }}{{ A }}")
	f.Add("{{ ENV_VAR }")
	f.Fuzz(func(t *testing.T, template string) {
		b := NewBindings()
		b.Bind("NAME", "value")
		b.Bind("A", "a")
		// Expand must never panic, regardless of how malformed the input
		// delimiters are; a TemplateError is an acceptable outcome.
		_, _ = Expand(template, b)
	})
}
