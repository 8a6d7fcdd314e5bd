// Package classify implements the SQL whitelist: it turns raw query text
// into one of a closed set of classifications, rejecting by default.
// Matching is a hand-written sequence of pattern matchers rather than a SQL
// grammar, deliberately conservative — the presence of any reserved token
// anywhere outside a string literal forces Rejected.
package classify

import (
	"strings"

	"github.com/edvin/mysql-redis-adapter/internal/model"
)

// Kind identifies which execution path a query takes.
type Kind int

const (
	Version Kind = iota
	ShowTables
	DescribeUsers
	PkLookup
	FullScan
	TokenVerify
	Noop
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Version:
		return "version"
	case ShowTables:
		return "show_tables"
	case DescribeUsers:
		return "describe_users"
	case PkLookup:
		return "pk_lookup"
	case FullScan:
		return "full_scan"
	case TokenVerify:
		return "token_verify"
	case Noop:
		return "noop"
	default:
		return "rejected"
	}
}

// Result is the tagged outcome of classifying one query.
type Result struct {
	Kind   Kind
	Table  string
	Column string
	Value  string
	Token  string

	// Reason is a machine-readable rejection cause, logged at warn but
	// never returned to the client — the whitelist never explains itself.
	Reason string
}

// Classifier holds the one piece of runtime configuration that changes
// classification outcomes: whether full scans are permitted at all.
type Classifier struct {
	allowScan bool
}

// New builds a Classifier. When allowScan is false, queries that would
// otherwise classify as FullScan are reclassified as Rejected.
func New(allowScan bool) *Classifier {
	return &Classifier{allowScan: allowScan}
}

// Classify normalizes raw SQL text and matches it against the whitelist.
// Matching is case-insensitive. Literals are read from the case-preserved
// text at offsets found in the lowercased copy; the two agree as long as the
// text before the literal is ASCII, since lowercasing ASCII keeps byte
// offsets.
func (c *Classifier) Classify(raw string) Result {
	q := strings.TrimSpace(raw)
	q = strings.TrimSuffix(q, ";")
	q = strings.TrimSpace(q)
	lower := strings.ToLower(q)

	switch {
	case lower == "":
		return Result{Kind: Rejected, Reason: "empty_query"}
	case strings.HasPrefix(lower, "set "), lower == "set":
		return Result{Kind: Noop}
	case strings.HasPrefix(lower, "use "):
		return Result{Kind: Noop}
	case strings.HasPrefix(lower, "show variables"):
		return Result{Kind: Noop}
	case lower == "select 1":
		return Result{Kind: Noop}
	case strings.Contains(lower, "@@version"):
		return Result{Kind: Version}
	case lower == "show tables":
		return Result{Kind: ShowTables}
	}

	if table, ok := matchDescribe(lower); ok {
		if table != model.UsersTable {
			return Result{Kind: Rejected, Reason: "unknown_table"}
		}
		return Result{Kind: DescribeUsers, Table: table}
	}

	if reason := rejectReason(lower); reason != "" {
		return Result{Kind: Rejected, Reason: reason}
	}

	if tok, ok := parseQrVerify(q, lower); ok {
		return Result{Kind: TokenVerify, Token: tok}
	}

	if table, col, val, ok := parseSelectByPk(q, lower); ok {
		if table != model.UsersTable || !strings.EqualFold(col, model.UsersPrimaryKey) {
			return Result{Kind: Rejected, Reason: "unknown_pk_or_table"}
		}
		return Result{Kind: PkLookup, Table: table, Column: col, Value: val}
	}

	if table, ok := parseSelectStar(lower); ok {
		if table != model.UsersTable {
			return Result{Kind: Rejected, Reason: "unknown_table"}
		}
		if !c.allowScan {
			return Result{Kind: Rejected, Reason: "scan_disabled"}
		}
		return Result{Kind: FullScan, Table: table}
	}

	return Result{Kind: Rejected, Reason: "unknown_query"}
}

func matchDescribe(lower string) (string, bool) {
	for _, prefix := range [...]string{"desc ", "describe "} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(lower[len(prefix):]), true
		}
	}
	return "", false
}

// parseQrVerify finds a qr_verify(...) call and extracts its single string
// literal argument. original supplies the case-preserved text for the
// literal; lower is searched for the case-insensitive function name.
func parseQrVerify(original, lower string) (string, bool) {
	idx := strings.Index(lower, "qr_verify(")
	if idx < 0 {
		return "", false
	}
	return extractLiteral(original[idx+len("qr_verify("):])
}

// extractLiteral reads a single- or double-quoted SQL string literal from
// the start of s, honoring backslash escapes and doubled-quote escapes.
func extractLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	quote := s[0]
	if quote != '\'' && quote != '"' {
		return "", false
	}

	var b strings.Builder
	for i := 1; i < len(s); {
		switch ch := s[i]; {
		case ch == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i += 2
		case ch == quote && i+1 < len(s) && s[i+1] == quote:
			b.WriteByte(quote)
			i += 2
		case ch == quote:
			return b.String(), true
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return "", false
}

// extractValue reads either a quoted literal or, for clients that don't
// quote primary-key values, an unquoted token up to the next whitespace.
func extractValue(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if s[0] == '\'' || s[0] == '"' {
		return extractLiteral(s)
	}
	end := strings.IndexAny(s, " \t\n")
	if end < 0 {
		end = len(s)
	}
	return s[:end], true
}

// parseSelectByPk matches `SELECT * FROM <table> WHERE <col> = <value>`
// with exactly one equality and nothing else — rejectReason has already run
// by the time this is tried, so AND/OR/comparison clutter is ruled out.
func parseSelectByPk(original, lower string) (table, col, val string, ok bool) {
	const prefix = "select * from "
	if !strings.HasPrefix(lower, prefix) {
		return "", "", "", false
	}
	rest := lower[len(prefix):]

	wIdx := strings.Index(rest, " where ")
	if wIdx < 0 {
		return "", "", "", false
	}
	table = strings.TrimSpace(rest[:wIdx])

	whereLower := rest[wIdx+len(" where "):]
	eqIdx := strings.Index(whereLower, "=")
	if eqIdx < 0 {
		return "", "", "", false
	}
	col = strings.TrimSpace(whereLower[:eqIdx])

	// Map the value's offset from the lowercased working copy onto the
	// case-preserved original. Only table "users" and column "id" are
	// accepted, so in an accepted lookup everything before the value is
	// ASCII and sits at the same byte offset in both strings.
	baseOffset := len(prefix) + wIdx + len(" where ") + eqIdx + 1
	if baseOffset < 0 || baseOffset > len(original) {
		return "", "", "", false
	}
	val, ok = extractValue(original[baseOffset:])
	if !ok {
		return "", "", "", false
	}
	return table, col, val, true
}

// parseSelectStar matches a bare `SELECT * FROM <table>` with no WHERE.
func parseSelectStar(lower string) (string, bool) {
	const prefix = "select * from "
	if !strings.HasPrefix(lower, prefix) {
		return "", false
	}
	table := strings.TrimSpace(lower[len(prefix):])
	if table == "" {
		return "", false
	}
	return table, true
}

// rejectReason implements the reject-by-default posture: queries starting
// with a DML/DDL verb are rejected; AND/OR/LIKE/IN/comparison operators are
// checked only when the query contains a WHERE clause, and then anywhere in
// the text; structural clauses like JOIN/ORDER BY/GROUP BY/LIMIT/OFFSET/
// subqueries/UNION are rejected regardless of WHERE.
func rejectReason(lower string) string {
	verbs := [...]struct{ prefix, reason string }{
		{"insert ", "insert_not_allowed"},
		{"update ", "update_not_allowed"},
		{"delete ", "delete_not_allowed"},
		{"replace ", "replace_not_allowed"},
		{"drop ", "drop_not_allowed"},
		{"truncate ", "truncate_not_allowed"},
		{"alter ", "alter_not_allowed"},
		{"create ", "create_not_allowed"},
		{"grant ", "grant_not_allowed"},
		{"revoke ", "revoke_not_allowed"},
	}
	for _, v := range verbs {
		if strings.HasPrefix(lower, v.prefix) {
			return v.reason
		}
	}

	if strings.Contains(lower, " where ") {
		whereOnly := [...]struct{ token, reason string }{
			{" and ", "and_not_allowed"},
			{" or ", "or_not_allowed"},
			{" like ", "like_not_allowed"},
			{" in(", "in_not_allowed"},
			{" in (", "in_not_allowed"},
			{">=", "comparison_not_allowed"},
			{"<=", "comparison_not_allowed"},
			{"<>", "comparison_not_allowed"},
			{"!=", "comparison_not_allowed"},
			{" between ", "between_not_allowed"},
			{">", "comparison_not_allowed"},
			{"<", "comparison_not_allowed"},
		}
		for _, w := range whereOnly {
			if strings.Contains(lower, w.token) {
				return w.reason
			}
		}
	}

	always := [...]struct{ token, reason string }{
		{" join ", "join_not_allowed"},
		{" order by ", "order_by_not_allowed"},
		{" group by ", "group_by_not_allowed"},
		{" limit ", "limit_not_allowed"},
		{" offset ", "offset_not_allowed"},
		{"(select", "subquery_not_allowed"},
		{" union ", "union_not_allowed"},
	}
	for _, a := range always {
		if strings.Contains(lower, a.token) {
			return a.reason
		}
	}

	return ""
}
