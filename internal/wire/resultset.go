package wire

import (
	"fmt"

	"github.com/edvin/mysql-redis-adapter/internal/model"
)

// writeResultSet emits the text result-set protocol for cols/rows: a
// column-count packet, one column-definition packet per column, an EOF,
// one row packet per row (length-encoded values, 0xfb for NULL), and a
// final EOF.
func (c *conn) writeResultSet(cols []model.Column, rows [][]any) error {
	if err := c.writePacket(putLengthEncodedInt(uint64(len(cols)))); err != nil {
		return err
	}
	for _, col := range cols {
		if err := c.writePacket(buildColumnDefinition(col)); err != nil {
			return err
		}
	}
	if err := c.writePacket(buildEOFPacket(c.status, c.capabilities)); err != nil {
		return err
	}
	for _, row := range rows {
		if err := c.writePacket(buildRowPacket(row)); err != nil {
			return err
		}
	}
	return c.writePacket(buildEOFPacket(c.status, c.capabilities))
}

// buildColumnDefinition builds a Column Definition packet. This adapter
// has no real database/table metadata, so catalog/schema/table fields are
// filled with the fixed placeholders real MySQL servers use for
// computed/derived columns.
func buildColumnDefinition(col model.Column) []byte {
	var p []byte
	p = append(p, putLengthEncodedString("def")...) // catalog
	p = append(p, putLengthEncodedString("")...)    // schema
	p = append(p, putLengthEncodedString("")...)    // table
	p = append(p, putLengthEncodedString("")...)    // org_table
	p = append(p, putLengthEncodedString(col.Name)...)
	p = append(p, putLengthEncodedString(col.Name)...) // org_name
	p = append(p, 0x0c)                                // length of fixed fields
	p = append(p, byte(charsetUTF8), 0x00)
	length := columnDisplayLength(col.Type)
	p = append(p, byte(length), byte(length>>8), byte(length>>16), byte(length>>24))
	p = append(p, mysqlColumnType(col.Type))
	flags := uint16(0)
	if col.NotNull {
		flags |= 0x0001
	}
	if col.PrimaryKey {
		flags |= 0x0002
	}
	p = append(p, byte(flags), byte(flags>>8))
	p = append(p, 0x00)       // decimals
	p = append(p, 0x00, 0x00) // filler
	return p
}

func mysqlColumnType(t model.ColumnType) byte {
	switch t {
	case model.TypeLong:
		return mysqlTypeLong
	case model.TypeDatetime:
		return mysqlTypeDatetime
	case model.TypeTinyint:
		return mysqlTypeTiny
	case model.TypeText:
		return mysqlTypeBlob
	default:
		return mysqlTypeVarString
	}
}

func columnDisplayLength(t model.ColumnType) uint32 {
	switch t {
	case model.TypeLong:
		return 11
	case model.TypeDatetime:
		return 19
	case model.TypeTinyint:
		return 1
	case model.TypeText:
		return 65535
	default:
		return 255
	}
}

// buildRowPacket encodes one row under the text protocol: every non-NULL
// value becomes its decimal/string text representation as a
// length-encoded string; NULL becomes the single byte 0xfb.
func buildRowPacket(row []any) []byte {
	var p []byte
	for _, v := range row {
		if v == nil {
			p = append(p, 0xfb)
			continue
		}
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case int64:
			s = fmt.Sprintf("%d", tv)
		case int:
			s = fmt.Sprintf("%d", tv)
		default:
			s = fmt.Sprintf("%v", tv)
		}
		p = append(p, putLengthEncodedString(s)...)
	}
	return p
}
