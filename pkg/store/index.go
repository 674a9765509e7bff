package store

import (
	"regexp/syntax"
	"strings"
	"unicode"

	"grokflow/guardrails/pkg/constraint"
)

// Index is an inverted index from literal terms to enabled constraints.
//
// A term is either a keyword containing no whitespace or the mandatory
// literal prefix of a regex pattern. A constraint is indexed only when its
// terms are sufficient to find it: with OR logic every keyword and pattern
// must yield a term, with AND logic one term is enough, and NOT constraints
// are never indexed. Everything else lands in the linear-scan set, which is
// returned for every query.
//
// An Index is immutable once built and safe for concurrent readers.
type Index struct {
	constraints []*constraint.Constraint
	terms       map[string][]int
	linear      []int
	maxTermLen  int
}

// BuildIndex indexes the enabled constraints of cs. The slice and the
// constraints it points to must not be modified afterwards.
func BuildIndex(cs []*constraint.Constraint) *Index {
	idx := &Index{
		constraints: cs,
		terms:       make(map[string][]int),
	}

	for pos, c := range cs {
		if !c.Enabled {
			continue
		}

		terms, indexable := constraintTerms(c)
		if !indexable {
			idx.linear = append(idx.linear, pos)
			continue
		}
		for _, term := range terms {
			idx.terms[term] = append(idx.terms[term], pos)
			if len(term) > idx.maxTermLen {
				idx.maxTermLen = len(term)
			}
		}
	}

	return idx
}

// Candidates returns every enabled constraint that could fire for query, in
// insertion order. The result is a superset of the constraints that match.
func (idx *Index) Candidates(query string) []*constraint.Constraint {
	if idx == nil || len(idx.constraints) == 0 {
		return nil
	}

	hit := make([]bool, len(idx.constraints))
	for _, pos := range idx.linear {
		hit[pos] = true
	}

	if len(idx.terms) > 0 {
		for _, token := range strings.Fields(Fold(query)) {
			idx.scanToken(token, hit)
		}
	}

	var out []*constraint.Constraint
	for pos, ok := range hit {
		if ok {
			out = append(out, idx.constraints[pos])
		}
	}
	return out
}

// scanToken marks constraints whose terms occur anywhere inside token.
// Keywords match as substrings, so every substring up to the longest term is
// looked up.
func (idx *Index) scanToken(token string, hit []bool) {
	for start := 0; start < len(token); start++ {
		end := min(len(token), start+idx.maxTermLen)
		for stop := start + 1; stop <= end; stop++ {
			for _, pos := range idx.terms[token[start:stop]] {
				hit[pos] = true
			}
		}
	}
}

// Size returns the number of distinct terms.
func (idx *Index) Size() int { return len(idx.terms) }

// LinearScan returns the ids of constraints that are evaluated for every query.
func (idx *Index) LinearScan() []string {
	ids := make([]string, 0, len(idx.linear))
	for _, pos := range idx.linear {
		ids = append(ids, idx.constraints[pos].ID)
	}
	return ids
}

// constraintTerms returns the lookup terms of c and whether they are enough
// to guarantee c is found whenever it fires.
func constraintTerms(c *constraint.Constraint) ([]string, bool) {
	if c.TriggerLogic == constraint.LogicNOT && !c.IsLegacy() {
		return nil, false
	}

	var terms []string
	missing := 0

	for _, kw := range c.TriggerKeywords {
		if term, ok := keywordTerm(kw); ok {
			terms = append(terms, term)
		} else {
			missing++
		}
	}
	if !c.IsLegacy() {
		for _, p := range c.TriggerPatterns {
			if term, ok := PatternTerm(p); ok {
				terms = append(terms, term)
			} else {
				missing++
			}
		}
	}

	if len(terms) == 0 {
		return nil, false
	}
	if c.TriggerLogic == constraint.LogicAND && !c.IsLegacy() {
		return terms[:1], true
	}
	return terms, missing == 0
}

func keywordTerm(kw string) (string, bool) {
	term := Fold(strings.TrimSpace(kw))
	if term == "" || strings.IndexFunc(term, unicode.IsSpace) >= 0 {
		return "", false
	}
	return term, true
}

// PatternTerm returns the literal text every match of the case-insensitive
// pattern must contain at its start. A pattern that does not parse is matched
// literally, so its whole text is the term.
func PatternTerm(pattern string) (string, bool) {
	re, err := syntax.Parse("(?i)"+pattern, syntax.Perl)
	if err != nil {
		return keywordTerm(pattern)
	}

	var b strings.Builder
	literalPrefix(re, &b)
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

// literalPrefix appends the folded mandatory literal prefix of re to b and
// reports whether the whole of re was consumed, meaning a following sibling
// may extend the prefix.
func literalPrefix(re *syntax.Regexp, b *strings.Builder) bool {
	switch re.Op {
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return true

	case syntax.OpLiteral:
		for _, r := range re.Rune {
			if unicode.IsSpace(r) {
				return false
			}
			b.WriteRune(foldRune(r))
		}
		return true

	case syntax.OpCapture:
		return literalPrefix(re.Sub[0], b)

	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if !literalPrefix(sub, b) {
				return false
			}
		}
		return true

	case syntax.OpPlus:
		// x+ starts with at least one x.
		literalPrefix(re.Sub[0], b)
		return false

	case syntax.OpRepeat:
		if re.Min >= 1 {
			literalPrefix(re.Sub[0], b)
		}
		return false
	}
	return false
}

// Fold maps s to a canonical case-folded form: every rune becomes the
// lowercase of the smallest rune in its case-folding orbit, so "K", "k" and
// the Kelvin sign all fold to "k".
func Fold(s string) string {
	return strings.Map(foldRune, s)
}

func foldRune(r rune) rune {
	smallest := r
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		if f < smallest {
			smallest = f
		}
	}
	return unicode.ToLower(smallest)
}
