package sqlguard

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vizquery/vizquery/internal/source"
)

// ValidatedStatement is a candidate that passed every policy rule. The
// text field is unexported so the only way to obtain a non-empty value
// is through Validate — the executor's signature makes it structurally
// impossible to run unvalidated text.
type ValidatedStatement struct {
	text string
}

// Text returns the validated statement exactly as it will execute.
func (s ValidatedStatement) Text() string { return s.text }

// Violation describes why a candidate was rejected. Detail names the
// offending token, never the full statement.
type Violation struct {
	Rule   Rule
	Detail string
}

func (v *Violation) Error() string {
	if v.Detail == "" {
		return string(v.Rule)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

// Validate classifies a candidate statement against the policy and the
// schema snapshot it was generated from. It accepts only a single
// SELECT/WITH retrieval statement, free of comments and forbidden
// keywords, referencing only snapshot tables (or its own CTEs).
func Validate(sqlText string, snap source.SchemaSnapshot) (ValidatedStatement, *Violation) {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return ValidatedStatement{}, &Violation{Rule: RuleEmptyStatement}
	}

	tokens, v := tokenize(trimmed)
	if v != nil {
		return ValidatedStatement{}, v
	}
	if len(tokens) == 0 {
		return ValidatedStatement{}, &Violation{Rule: RuleEmptyStatement}
	}

	first := tokens[0]
	if first.kind != tokWord || (first.upper != "SELECT" && first.upper != "WITH") {
		return ValidatedStatement{}, &Violation{Rule: RuleNotASelect, Detail: first.text}
	}

	for _, t := range tokens {
		if t.kind == tokWord && forbiddenKeywords[t.upper] {
			return ValidatedStatement{}, &Violation{Rule: RuleForbiddenKeyword, Detail: strings.ToLower(t.upper)}
		}
	}

	if v := checkTableReferences(tokens, snap); v != nil {
		return ValidatedStatement{}, v
	}

	return ValidatedStatement{text: trimmed}, nil
}

const (
	tokWord = iota
	tokPunct
	tokNumber
	tokString
	tokOther
)

type token struct {
	kind  int
	text  string
	upper string
}

// tokenize scans the statement, rejecting comments, statement batching,
// and unterminated quoting along the way. Dotted identifier chains come
// back as a single word token ("schema.table").
func tokenize(s string) ([]token, *Violation) {
	var tokens []token
	runes := []rune(s)
	i := 0
	n := len(runes)
	sawTerminator := false

	for i < n {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case sawTerminator:
			// Anything substantive after the trailing semicolon is a
			// second statement.
			return nil, &Violation{Rule: RuleMultipleStatements}

		case r == '\'':
			i++
			closed := false
			for i < n {
				if runes[i] == '\'' {
					if i+1 < n && runes[i+1] == '\'' {
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				i++
			}
			if !closed {
				return nil, &Violation{Rule: RuleUnterminatedString}
			}
			tokens = append(tokens, token{kind: tokString})

		case r == '"':
			start := i + 1
			i++
			closed := false
			for i < n {
				if runes[i] == '"' {
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, &Violation{Rule: RuleUnterminatedString}
			}
			word := string(runes[start:i])
			i++
			tokens = append(tokens, token{kind: tokWord, text: word, upper: strings.ToUpper(word)})

		case r == '-' && i+1 < n && runes[i+1] == '-':
			return nil, &Violation{Rule: RuleCommentSyntax, Detail: "--"}

		case r == '/' && i+1 < n && runes[i+1] == '*':
			return nil, &Violation{Rule: RuleCommentSyntax, Detail: "/*"}

		case r == ';':
			sawTerminator = true
			i++

		case isWordStart(r):
			start := i
			for i < n && isWordPart(runes[i]) {
				i++
			}
			// Absorb dotted chains into one token.
			for i < n && runes[i] == '.' && i+1 < n && isWordStart(runes[i+1]) {
				i++
				for i < n && isWordPart(runes[i]) {
					i++
				}
			}
			word := string(runes[start:i])
			tokens = append(tokens, token{kind: tokWord, text: word, upper: strings.ToUpper(word)})

		case unicode.IsDigit(r):
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber})

		case r == '(' || r == ')' || r == ',':
			tokens = append(tokens, token{kind: tokPunct, text: string(r)})
			i++

		default:
			tokens = append(tokens, token{kind: tokOther, text: string(r)})
			i++
		}
	}

	return tokens, nil
}

func isWordStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isWordPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

// checkTableReferences walks FROM/JOIN positions and requires every
// referenced relation to exist in the snapshot or be a CTE declared by
// the statement itself. Functions in FROM position are rejected: the
// allow-list knows tables, not table functions.
func checkTableReferences(tokens []token, snap source.SchemaSnapshot) *Violation {
	ctes := collectCTENames(tokens)

	parenDepth := 0
	fromDepth := -1
	expectRef := false
	// funcParens[d] is true when the paren opened at depth d is a
	// function-call argument list rather than a subquery or grouping.
	funcParens := make(map[int]bool)

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch {
		case t.kind == tokPunct && t.text == "(":
			funcParens[parenDepth] = i > 0 &&
				tokens[i-1].kind == tokWord && !nonFunctionWords[tokens[i-1].upper]
			parenDepth++
			expectRef = false

		case t.kind == tokPunct && t.text == ")":
			parenDepth--
			if fromDepth > parenDepth {
				fromDepth = -1
			}

		case t.kind == tokPunct && t.text == ",":
			if fromDepth >= 0 && fromDepth == parenDepth {
				expectRef = true
			}

		case t.kind == tokWord:
			switch {
			case t.upper == "FROM":
				if parenDepth > 0 && funcParens[parenDepth-1] {
					// EXTRACT(YEAR FROM ts), SUBSTRING(x FROM 1), etc.
					continue
				}
				fromDepth = parenDepth
				expectRef = true
			case t.upper == "JOIN":
				expectRef = true
			case t.upper == "LATERAL":
				// keep expecting the actual relation
			case clauseKeywords[t.upper]:
				if fromDepth == parenDepth && fromEnders[t.upper] {
					fromDepth = -1
				}
				expectRef = false
			case expectRef:
				if i+1 < len(tokens) && tokens[i+1].kind == tokPunct && tokens[i+1].text == "(" {
					return &Violation{Rule: RuleUnknownTable, Detail: refName(t.text) + " (function call in FROM)"}
				}
				name := refName(t.text)
				if !ctes[strings.ToUpper(name)] && !snap.HasTable(name) {
					return &Violation{Rule: RuleUnknownTable, Detail: name}
				}
				expectRef = false
			}
		}
	}
	return nil
}

// refName takes the last segment of a dotted chain: "public.sales" and
// "dataset.sales" both resolve against the snapshot as "sales".
func refName(ref string) string {
	if idx := strings.LastIndex(ref, "."); idx != -1 {
		return ref[idx+1:]
	}
	return ref
}

// collectCTENames reads the WITH prologue only: `name AS (...)` or
// `name (cols) AS (...)`, comma-separated, up to the statement's main
// SELECT. Names appearing in later clauses (window definitions, aliases)
// are not legal FROM targets and must not register here.
func collectCTENames(tokens []token) map[string]bool {
	ctes := make(map[string]bool)
	if len(tokens) == 0 || tokens[0].upper != "WITH" {
		return ctes
	}

	i := 1
	if i < len(tokens) && tokens[i].kind == tokWord && tokens[i].upper == "RECURSIVE" {
		i++
	}

	for i < len(tokens) {
		if tokens[i].kind != tokWord {
			return ctes
		}
		name := tokens[i].upper
		i++

		// Optional column list between the name and AS.
		if i < len(tokens) && tokens[i].kind == tokPunct && tokens[i].text == "(" {
			i = skipParens(tokens, i)
		}

		if i+1 >= len(tokens) ||
			tokens[i].kind != tokWord || tokens[i].upper != "AS" ||
			tokens[i+1].kind != tokPunct || tokens[i+1].text != "(" {
			return ctes
		}
		ctes[name] = true
		i = skipParens(tokens, i+1)

		if i < len(tokens) && tokens[i].kind == tokPunct && tokens[i].text == "," {
			i++
			continue
		}
		return ctes
	}
	return ctes
}

// skipParens advances past the balanced paren group opening at i and
// returns the index of the first token after it.
func skipParens(tokens []token, i int) int {
	depth := 1
	i++
	for i < len(tokens) && depth > 0 {
		if tokens[i].kind == tokPunct {
			switch tokens[i].text {
			case "(":
				depth++
			case ")":
				depth--
			}
		}
		i++
	}
	return i
}
