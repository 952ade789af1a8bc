package mathspeak

import (
	"strings"
	"testing"
)

// spoken collapses whitespace so assertions ignore the padding the rewrite
// rules introduce around operators.
func spoken(text string) string {
	return strings.Join(strings.Fields(Normalize(text)), " ")
}

func TestNormalizeFraction(t *testing.T) {
	if got := spoken(`\frac{1}{2}`); got != "1 over 2" {
		t.Fatalf("fraction = %q, want %q", got, "1 over 2")
	}
}

func TestNormalizeNestedFraction(t *testing.T) {
	got := spoken(`\frac{a^2}{b_{1}}`)
	if !strings.Contains(got, "over") {
		t.Fatalf("nested fraction not expanded: %q", got)
	}
}

func TestNormalizeLeadingMinus(t *testing.T) {
	if got := spoken("-5"); got != "negative 5" {
		t.Fatalf("leading minus = %q, want %q", got, "negative 5")
	}
	if got := spoken("-x"); got != "negative x" {
		t.Fatalf("leading minus ident = %q, want %q", got, "negative x")
	}
}

func TestNormalizeInfixMinus(t *testing.T) {
	if got := spoken("5-3"); got != "5 minus 3" {
		t.Fatalf("infix minus = %q, want %q", got, "5 minus 3")
	}
	if got := spoken("x - y"); got != "x minus y" {
		t.Fatalf("infix minus idents = %q, want %q", got, "x minus y")
	}
}

func TestNormalizeExponents(t *testing.T) {
	if got := spoken("x^2"); got != "x squared" {
		t.Fatalf("squared = %q", got)
	}
	if got := spoken("x^3"); got != "x cubed" {
		t.Fatalf("cubed = %q", got)
	}
	if got := spoken("x^9"); got != "x to the power of 9" {
		t.Fatalf("generic exponent = %q", got)
	}
}

func TestNormalizeOperators(t *testing.T) {
	cases := map[string]string{
		`3\times4`:  "3 times 4",
		`3×4`:       "3 times 4",
		`8\div2`:    "8 divided by 2",
		`a\leq b`:   "a less than or equal to b",
		`a≥b`:       "a greater than or equal to b",
		`\pm2`:      "plus or minus 2",
		`\sqrt{16}`: "square root of 16",
	}
	for in, want := range cases {
		if got := spoken(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeGreekLetters(t *testing.T) {
	if got := spoken(`\alpha + \beta`); got != "alpha + beta" {
		t.Fatalf("greek = %q", got)
	}
	if got := spoken("γ"); got != "gamma" {
		t.Fatalf("unicode greek = %q", got)
	}
}

func TestNormalizeStripsDelimitersAndBraces(t *testing.T) {
	if got := spoken(`$x^2$`); got != "x squared" {
		t.Fatalf("dollar-delimited = %q", got)
	}
	if strings.ContainsAny(Normalize(`{x}`), "{}") {
		t.Fatal("braces survived normalization")
	}
}

func TestNormalizePlainTextUntouched(t *testing.T) {
	in := "The answer is twelve."
	if got := Normalize(in); got != in {
		t.Fatalf("plain text rewritten: %q", got)
	}
}

func TestCollapseNewlines(t *testing.T) {
	if got := Collapse("a\nb  c\n"); got != "a b c" {
		t.Fatalf("Collapse = %q", got)
	}
}
