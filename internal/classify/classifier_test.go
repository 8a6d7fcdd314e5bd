package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Version(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT @@version")
	assert.Equal(t, Version, r.Kind)

	r = c.Classify("SELECT @@version, @@version_comment LIMIT 1")
	assert.Equal(t, Version, r.Kind)
}

func TestClassify_ShowTables(t *testing.T) {
	c := New(true)
	r := c.Classify("SHOW TABLES;")
	assert.Equal(t, ShowTables, r.Kind)
}

func TestClassify_DescribeUsers(t *testing.T) {
	c := New(true)
	for _, q := range []string{"DESC users", "DESCRIBE users", "desc users;"} {
		r := c.Classify(q)
		assert.Equal(t, DescribeUsers, r.Kind, q)
		assert.Equal(t, "users", r.Table)
	}
}

func TestClassify_DescribeUnknownTableRejected(t *testing.T) {
	c := New(true)
	r := c.Classify("DESCRIBE widgets")
	assert.Equal(t, Rejected, r.Kind)
}

func TestClassify_Noop(t *testing.T) {
	c := New(true)
	for _, q := range []string{
		"SET NAMES utf8mb4",
		"USE mydb",
		"SHOW VARIABLES LIKE 'foo'",
		"SELECT 1",
	} {
		r := c.Classify(q)
		assert.Equal(t, Noop, r.Kind, q)
	}
}

func TestClassify_PkLookupQuoted(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT * FROM users WHERE id = 'u001'")
	assert.Equal(t, PkLookup, r.Kind)
	assert.Equal(t, "users", r.Table)
	assert.Equal(t, "id", r.Column)
	assert.Equal(t, "u001", r.Value)
}

func TestClassify_PkLookupDoubleQuoted(t *testing.T) {
	c := New(true)
	r := c.Classify(`SELECT * FROM users WHERE id = "u001"`)
	assert.Equal(t, PkLookup, r.Kind)
	assert.Equal(t, "u001", r.Value)
}

func TestClassify_PkLookupUnquoted(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT * FROM users WHERE id = u001")
	assert.Equal(t, PkLookup, r.Kind)
	assert.Equal(t, "u001", r.Value)
}

func TestClassify_PkLookupCaseInsensitiveColumn(t *testing.T) {
	c := New(true)
	r := c.Classify("select * from users where ID = 'u001'")
	assert.Equal(t, PkLookup, r.Kind)
}

func TestClassify_PkLookupWrongColumnRejected(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT * FROM users WHERE name = 'Alice'")
	assert.Equal(t, Rejected, r.Kind)
}

func TestClassify_FullScan(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT * FROM users")
	assert.Equal(t, FullScan, r.Kind)
	assert.Equal(t, "users", r.Table)
}

func TestClassify_FullScanDisabledWhenAllowScanFalse(t *testing.T) {
	c := New(false)
	r := c.Classify("SELECT * FROM users")
	assert.Equal(t, Rejected, r.Kind)
	assert.Equal(t, "scan_disabled", r.Reason)
}

func TestClassify_TokenVerify(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT qr_verify('abc123')")
	assert.Equal(t, TokenVerify, r.Kind)
	assert.Equal(t, "abc123", r.Token)
}

func TestClassify_TokenVerifyDoubleQuoted(t *testing.T) {
	c := New(true)
	r := c.Classify(`SELECT qr_verify("abc123")`)
	assert.Equal(t, TokenVerify, r.Kind)
	assert.Equal(t, "abc123", r.Token)
}

func TestClassify_RejectsDMLAndDDL(t *testing.T) {
	c := New(true)
	queries := []string{
		"INSERT INTO users VALUES (1)",
		"UPDATE users SET name = 'x'",
		"DELETE FROM users",
		"DROP TABLE users",
		"TRUNCATE users",
		"ALTER TABLE users ADD COLUMN x int",
		"CREATE TABLE x (id int)",
		"GRANT ALL ON users TO 'x'",
		"REVOKE ALL ON users FROM 'x'",
	}
	for _, q := range queries {
		r := c.Classify(q)
		assert.Equal(t, Rejected, r.Kind, q)
	}
}

func TestClassify_RejectsAndOr(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT * FROM users WHERE id = 'u001' AND name = 'Alice'")
	assert.Equal(t, Rejected, r.Kind)
	assert.Equal(t, "and_not_allowed", r.Reason)

	r = c.Classify("SELECT * FROM users WHERE id = 'u001' OR id = 'u002'")
	assert.Equal(t, Rejected, r.Kind)
	assert.Equal(t, "or_not_allowed", r.Reason)
}

func TestClassify_RejectsComparisonOperators(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT * FROM users WHERE age > 18")
	assert.Equal(t, Rejected, r.Kind)
	assert.Equal(t, "comparison_not_allowed", r.Reason)
}

func TestClassify_RejectsLikeInBetween(t *testing.T) {
	c := New(true)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users WHERE name LIKE 'A%'").Kind)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users WHERE id IN ('u001','u002')").Kind)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users WHERE age BETWEEN 1 AND 2").Kind)
}

func TestClassify_RejectsJoin(t *testing.T) {
	c := New(true)
	r := c.Classify("SELECT * FROM users JOIN other ON users.id = other.user_id")
	assert.Equal(t, Rejected, r.Kind)
	assert.Equal(t, "join_not_allowed", r.Reason)
}

func TestClassify_RejectsOrderByGroupByLimitOffset(t *testing.T) {
	c := New(true)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users ORDER BY name").Kind)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users GROUP BY name").Kind)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users LIMIT 10").Kind)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users OFFSET 10").Kind)
}

func TestClassify_RejectsSubqueryAndUnion(t *testing.T) {
	c := New(true)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users WHERE id = (SELECT id FROM users)").Kind)
	assert.Equal(t, Rejected, c.Classify("SELECT * FROM users UNION SELECT * FROM users").Kind)
}

func TestClassify_RejectsUnknownQuery(t *testing.T) {
	c := New(true)
	r := c.Classify("EXPLAIN SELECT 1")
	assert.Equal(t, Rejected, r.Kind)
	assert.Equal(t, "unknown_query", r.Reason)
}

func TestClassify_TrimsWhitespaceAndSemicolons(t *testing.T) {
	c := New(true)
	r := c.Classify("   SELECT * FROM users WHERE id = 'u001'  ;  ")
	assert.Equal(t, PkLookup, r.Kind)
	assert.Equal(t, "u001", r.Value)
}

func TestExtractLiteral_EscapesAndDoubling(t *testing.T) {
	v, ok := extractLiteral(`'it''s a token'`)
	assert.True(t, ok)
	assert.Equal(t, "it's a token", v)

	v, ok = extractLiteral(`'escaped\'quote'`)
	assert.True(t, ok)
	assert.Equal(t, "escaped'quote", v)
}
