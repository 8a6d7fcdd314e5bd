package model

// ColumnType is a logical column type, independent of its MySQL wire
// protocol encoding (that mapping lives in internal/wire).
type ColumnType int

const (
	TypeVarchar ColumnType = iota
	TypeLong
	TypeDatetime
	TypeTinyint
	TypeText
)

// Column describes one column of a static or reconstructed result set.
type Column struct {
	Name     string
	Type     ColumnType
	NotNull  bool
	PrimaryKey bool
}

// UsersTable is the one hard-coded table descriptor the adapter knows
// about. There is no schema discovery beyond this.
const UsersTable = "users"

// UsersPrimaryKey is the column name matched by PkLookup.
const UsersPrimaryKey = "id"

// UsersColumns describes the users table, in display order, for
// SELECT * and DESCRIBE responses.
var UsersColumns = []Column{
	{Name: "id", Type: TypeVarchar, NotNull: true, PrimaryKey: true},
	{Name: "name", Type: TypeVarchar, NotNull: true},
	{Name: "email", Type: TypeVarchar, NotNull: true},
	{Name: "age", Type: TypeLong, NotNull: false},
	{Name: "created_at", Type: TypeDatetime, NotNull: false},
}

// QrVerifyColumns describes the synthetic result of a qr_verify(token) call.
var QrVerifyColumns = []Column{
	{Name: "verified", Type: TypeTinyint, NotNull: true},
	{Name: "user_id", Type: TypeVarchar, NotNull: true},
	{Name: "facility", Type: TypeVarchar, NotNull: true},
	{Name: "verified_at", Type: TypeDatetime, NotNull: true},
	{Name: "data", Type: TypeText, NotNull: false},
}

// DescribeColumns describes the result of DESC/DESCRIBE users.
var DescribeColumns = []Column{
	{Name: "Field", Type: TypeVarchar, NotNull: true},
	{Name: "Type", Type: TypeVarchar, NotNull: true},
	{Name: "Null", Type: TypeVarchar, NotNull: true},
	{Name: "Key", Type: TypeVarchar, NotNull: true},
	{Name: "Default", Type: TypeVarchar, NotNull: false},
	{Name: "Extra", Type: TypeVarchar, NotNull: false},
}
