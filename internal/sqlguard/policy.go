// Package sqlguard is the safety gate between SQL generation and
// execution. It is a deterministic allow-list classifier: anything that
// is not provably a single read-only retrieval statement over known
// tables is rejected, regardless of how the candidate was produced.
package sqlguard

// Rule names the policy rule a candidate statement violated. The rules
// are the first-class policy artifact: tests pin them, and error details
// carry them instead of the rejected SQL.
type Rule string

const (
	RuleEmptyStatement     Rule = "statement_empty"
	RuleNotASelect         Rule = "not_a_select"
	RuleMultipleStatements Rule = "multiple_statements"
	RuleCommentSyntax      Rule = "comment_syntax"
	RuleForbiddenKeyword   Rule = "forbidden_keyword"
	RuleUnknownTable       Rule = "unknown_table"
	RuleUnterminatedString Rule = "unterminated_string"
)

// forbiddenKeywords rejects every mutation, DDL, DCL, and procedural
// construct. Matching is on whole uppercase word tokens, so case and
// whitespace obfuscation cannot slip past it.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "CREATE": true, "GRANT": true, "REVOKE": true,
	"TRUNCATE": true, "MERGE": true, "EXEC": true, "EXECUTE": true,
	"CALL": true, "COPY": true, "DO": true, "PREPARE": true,
	"VACUUM": true, "LOCK": true, "REINDEX": true, "REFRESH": true,
	"IMPORT": true, "EXPORT": true, "SET": true, "INTO": true,
	"COMMENT": true, "ATTACH": true, "DETACH": true, "PRAGMA": true,
}

// nonFunctionWords are words that can legally precede an opening paren
// without making it a function call. Used to tell `COUNT(` apart from
// `IN (SELECT`, so a FROM inside EXTRACT(YEAR FROM ts) is not mistaken
// for a table list.
var nonFunctionWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "IN": true, "EXISTS": true, "ON": true, "AS": true,
	"WITH": true, "UNION": true, "ALL": true, "JOIN": true, "WHEN": true,
	"THEN": true, "ELSE": true, "CASE": true, "END": true, "BETWEEN": true,
	"LIKE": true, "ILIKE": true, "IS": true, "NULL": true, "DISTINCT": true,
	"BY": true, "HAVING": true, "VALUES": true, "ANY": true, "SOME": true,
	"USING": true, "CROSS": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "OUTER": true, "NATURAL": true, "LATERAL": true,
}

// clauseKeywords are words that can follow a table reference without
// being a reference themselves (join modifiers, clause openers).
var clauseKeywords = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"LIMIT": true, "OFFSET": true, "WINDOW": true, "ON": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "USING": true,
	"LEFT": true, "RIGHT": true, "INNER": true,
	"OUTER": true, "FULL": true, "CROSS": true, "NATURAL": true,
	"FETCH": true, "FOR": true, "AS": true,
}

// fromEnders terminate the current FROM list entirely, so a later comma
// no longer introduces a table reference.
var fromEnders = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"LIMIT": true, "OFFSET": true, "WINDOW": true, "UNION": true,
	"INTERSECT": true, "EXCEPT": true, "FETCH": true, "FOR": true,
}
