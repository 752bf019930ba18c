package pkgname

import "testing"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"requests", "requests"},
		{"Requests", "requests"},
		{"Flask_SQLAlchemy", "flask-sqlalchemy"},
		{"zope.interface", "zope-interface"},
		{"a__b--c..d", "a-b-c-d"},
		{"a-_.b", "a-b"},
		{"  six ", "six"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Canonicalize(tt.in)
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Canonicalize(got); again != got {
				t.Errorf("Canonicalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	forms := []string{"Foo.Bar", "foo_bar", "FOO-BAR", "foo__bar"}
	for _, a := range forms {
		for _, b := range forms {
			if !Equal(a, b) {
				t.Errorf("Equal(%q, %q) = false", a, b)
			}
		}
	}
	if Equal("foobar", "foo-bar") {
		t.Error("separator must not be dropped")
	}
}

func TestRefKey(t *testing.T) {
	r := Ref{Name: "Jinja2", Version: "3.1.2"}
	if r.Key() != "jinja2" {
		t.Errorf("Key() = %q", r.Key())
	}
	if r.String() != "Jinja2 3.1.2" {
		t.Errorf("String() = %q", r.String())
	}
}
