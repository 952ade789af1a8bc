package mathspeak

import (
	"regexp"
	"strings"
)

// Normalize 将生成器输出中的数学记号改写为可朗读的纯文本。
// It is a pure rewrite with no state; running it twice over already-expanded
// text may double-expand ambiguous minus signs, so callers apply it once per
// sentence right before synthesis.
func Normalize(text string) string {
	out := text

	out = mathDelimiters.ReplaceAllString(out, "${1}")

	for _, rule := range symbolRules {
		out = rule.pattern.ReplaceAllString(out, rule.spoken)
	}

	out = fraction.ReplaceAllString(out, "${1} over ${2}")

	for _, rule := range greekRules {
		out = rule.pattern.ReplaceAllString(out, rule.spoken)
	}

	// A minus at the start of a token reads as a sign, between two tokens as
	// subtraction. Sign rules must run first.
	out = leadingMinusNumber.ReplaceAllString(out, "${1}negative ${2}")
	out = leadingMinusIdent.ReplaceAllString(out, "${1}negative ${2}")
	out = infixMinusNumbers.ReplaceAllString(out, "${1} minus ${2}")
	out = infixMinusIdents.ReplaceAllString(out, "${1} minus ${2}")

	out = braces.ReplaceAllString(out, "")
	return out
}

// Collapse flattens line breaks and runs of whitespace into single spaces,
// the final step before handing a sentence to the synthesis engine.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

type rewriteRule struct {
	pattern *regexp.Regexp
	spoken  string
}

var (
	mathDelimiters = regexp.MustCompile(`\$(.*?)\$`)

	// Nested-brace aware, one level deep, matching the source notation
	// \frac{...}{...} without backtracking past the argument braces.
	fraction = regexp.MustCompile(`\\frac\{([^{}]*(?:\{[^{}]*\}[^{}]*)*)\}\{([^{}]*(?:\{[^{}]*\}[^{}]*)*)\}`)

	leadingMinusNumber = regexp.MustCompile(`(\s|^)-(\d+)`)
	leadingMinusIdent  = regexp.MustCompile(`(\s|^)-([a-zA-Z0-9]+)`)
	infixMinusNumbers  = regexp.MustCompile(`(\d+)\s*-\s*(\d+)`)
	infixMinusIdents   = regexp.MustCompile(`([a-zA-Z0-9]+)\s*-\s*([a-zA-Z0-9]+)`)

	braces = regexp.MustCompile(`[{}]`)
)

// Operator and symbol expansions, in rewrite order. Exponent shorthands must
// precede the generic caret rule.
var symbolRules = []rewriteRule{
	{regexp.MustCompile(`\\times|×`), " times "},
	{regexp.MustCompile(`\\div|÷`), " divided by "},
	{regexp.MustCompile(`\\leq|≤`), " less than or equal to "},
	{regexp.MustCompile(`\\geq|≥`), " greater than or equal to "},
	{regexp.MustCompile(`\\pm|±`), " plus or minus "},
	{regexp.MustCompile(`\^2`), " squared "},
	{regexp.MustCompile(`\^3`), " cubed "},
	{regexp.MustCompile(`\^`), " to the power of "},
	{regexp.MustCompile(`\\sqrt|√`), " square root of "},
	{regexp.MustCompile(`\\sum|Σ`), " sum "},
	{regexp.MustCompile(`\\int|∫`), " integral of "},
}

var greekRules = []rewriteRule{
	{regexp.MustCompile(`\\alpha|α`), "alpha"},
	{regexp.MustCompile(`\\beta|β`), "beta"},
	{regexp.MustCompile(`\\gamma|γ`), "gamma"},
	{regexp.MustCompile(`\\delta|δ`), "delta"},
	{regexp.MustCompile(`\\epsilon|ε`), "epsilon"},
}
