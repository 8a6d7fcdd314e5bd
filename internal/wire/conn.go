package wire

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/mysql-redis-adapter/internal/classify"
	"github.com/edvin/mysql-redis-adapter/internal/executor"
	"github.com/edvin/mysql-redis-adapter/internal/metrics"
	"github.com/edvin/mysql-redis-adapter/internal/model"
	"github.com/edvin/mysql-redis-adapter/internal/ratelimit"
)

// preparedStatement is the text this adapter substitutes parameters into
// before classifying — there is no real prepared-statement plan, only a
// template.
type preparedStatement struct {
	query     string
	numParams int
}

// Server accepts MySQL client connections and serves each on its own
// goroutine.
type Server struct {
	classifier *classify.Classifier
	executor   *executor.Executor
	limiter    *ratelimit.Limiter
	log        zerolog.Logger

	nextConnID atomic.Uint32
}

// NewServer builds a Server wired to the query pipeline's stages.
func NewServer(c *classify.Classifier, e *executor.Executor, l *ratelimit.Limiter, log zerolog.Logger) *Server {
	return &Server{classifier: c, executor: e, limiter: l, log: log}
}

// Serve accepts connections from ln until it returns an error (including
// when ln is closed during shutdown).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		c := s.newConn(nc)
		go c.serve(ctx)
	}
}

// conn is the per-client session: wire-protocol framing state plus the
// session variables (current database) that affect query execution.
type conn struct {
	srv    *Server
	nc     net.Conn
	connID uint32
	log    zerolog.Logger

	seq          byte
	capabilities uint32
	status       uint16
	dbName       string
	clientIP     string

	prepared map[uint32]preparedStatement
	nextStmt uint32
}

func (s *Server) newConn(nc net.Conn) *conn {
	id := s.nextConnID.Add(1)
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		host = nc.RemoteAddr().String()
	}
	return &conn{
		srv:      s,
		nc:       nc,
		connID:   id,
		log:      s.log.With().Uint32("conn_id", id).Str("trace_id", uuid.NewString()).Str("client", host).Logger(),
		status:   serverStatusAutocommit,
		dbName:   "mysql",
		clientIP: host,
		prepared: make(map[uint32]preparedStatement),
	}
}

func (c *conn) serve(ctx context.Context) {
	defer c.nc.Close()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	if err := c.handshake(); err != nil {
		c.log.Debug().Err(err).Msg("handshake_failed")
		return
	}
	c.log.Info().Msg("connection_established")

	for {
		payload, clientSeq, err := readPacket(c.nc)
		if err != nil {
			if err != io.EOF {
				c.log.Debug().Err(err).Msg("connection_read_error")
			}
			return
		}
		c.seq = clientSeq + 1
		if len(payload) == 0 {
			continue
		}

		if err := c.dispatch(ctx, payload[0], payload[1:]); err != nil {
			if err == io.EOF {
				return
			}
			c.log.Debug().Err(err).Msg("connection_write_error")
			return
		}
	}
}

// handshake sends the initial greeting and validates the client's auth
// response. Any username and any password (including empty) is accepted;
// this adapter has no user accounts, matching spec's non-goal of
// authentication.
func (c *conn) handshake() error {
	salt, err := generateSalt()
	if err != nil {
		return err
	}

	greeting := buildHandshakeV10(c.connID, salt)
	if err := c.writePacket(greeting); err != nil {
		return err
	}

	payload, _, err := readPacket(c.nc)
	if err != nil {
		return fmt.Errorf("read client auth: %w", err)
	}
	if err := c.readClientAuth(payload); err != nil {
		return err
	}

	c.seq++
	return c.writePacket(buildOKPacket(c.status, c.capabilities))
}

func buildHandshakeV10(connID uint32, salt [20]byte) []byte {
	var p []byte
	p = append(p, 0x0a) // protocol version
	p = append(p, []byte(ServerVersion)...)
	p = append(p, 0x00)

	connIDBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(connIDBytes, connID)
	p = append(p, connIDBytes...)

	p = append(p, salt[:8]...)
	p = append(p, 0x00) // filler

	caps := serverCapabilities
	status := serverStatusAutocommit
	p = append(p, byte(caps), byte(caps>>8))
	p = append(p, charsetUTF8)
	p = append(p, byte(status), byte(status>>8))
	p = append(p, byte(caps>>16), byte(caps>>24))
	p = append(p, byte(len(salt)+1))
	p = append(p, make([]byte, 10)...) // reserved

	p = append(p, salt[8:]...)
	p = append(p, 0x00)

	p = append(p, []byte(authPluginName)...)
	p = append(p, 0x00)
	return p
}

// readClientAuth parses the handshake response. Credentials are parsed
// only far enough to locate the optional database name; they are never
// checked against anything.
func (c *conn) readClientAuth(payload []byte) error {
	if len(payload) < 32 {
		return fmt.Errorf("client auth packet too short")
	}
	c.capabilities = binary.LittleEndian.Uint32(payload[0:4])
	// bytes 4:8 max packet size, byte 8 charset, 9:32 reserved — all ignored.
	rest := payload[32:]

	_, n := readNullTerminatedString(rest)
	rest = rest[n:]
	if len(rest) == 0 {
		return nil
	}

	authLen, consumed := readLengthEncodedInt(rest)
	rest = rest[consumed:]
	if len(rest) < int(authLen) {
		return fmt.Errorf("client auth response truncated")
	}
	rest = rest[authLen:]

	if c.capabilities&clientConnectWithDB != 0 && len(rest) > 0 {
		db, _ := readNullTerminatedString(rest)
		if db != "" {
			c.dbName = db
		}
	}
	return nil
}

func (c *conn) dispatch(ctx context.Context, cmd byte, body []byte) error {
	switch cmd {
	case comQuit:
		return io.EOF

	case comInitDB:
		c.dbName = string(body)
		return c.writePacket(buildOKPacket(c.status, c.capabilities))

	case comPing:
		return c.writePacket(buildOKPacket(c.status, c.capabilities))

	case comFieldList:
		return c.writePacket(buildEOFPacket(c.status, c.capabilities))

	case comQuery:
		return c.handleQuery(ctx, string(body))

	case comStmtPrepare:
		return c.handleStmtPrepare(string(body))

	case comStmtExecute:
		return c.handleStmtExecute(ctx, body)

	case comStmtClose:
		if len(body) >= 4 {
			delete(c.prepared, binary.LittleEndian.Uint32(body[0:4]))
		}
		return nil

	default:
		return c.writePacket(buildErrorPacket(1047, "08S01", fmt.Sprintf("unsupported command 0x%02x", cmd)))
	}
}

func (c *conn) handleQuery(ctx context.Context, query string) error {
	c.log.Debug().Str("raw_query", query).Msg("raw_query")

	if c.srv.limiter != nil && !c.srv.limiter.Check(ctx, c.clientIP) {
		return c.writeResultSet([]model.Column{{Name: "result", Type: model.TypeVarchar}}, nil)
	}

	result := c.srv.classifier.Classify(query)
	out := c.srv.executor.Execute(ctx, result, c.dbName, c.clientIP)

	if out.OK {
		return c.writePacket(buildOKPacket(c.status, c.capabilities))
	}
	return c.writeResultSet(out.Columns, out.Rows)
}

// handleStmtPrepare records the query template and its placeholder count,
// then answers with a minimal STMT_PREPARE OK that advertises zero result
// columns (this adapter cannot know them without executing the query) and
// the placeholder count.
func (c *conn) handleStmtPrepare(query string) error {
	id := c.nextStmt
	c.nextStmt++
	numParams := strings.Count(query, "?")
	c.prepared[id] = preparedStatement{query: query, numParams: numParams}

	resp := make([]byte, 12)
	resp[0] = 0x00
	binary.LittleEndian.PutUint32(resp[1:5], id)
	binary.LittleEndian.PutUint16(resp[5:7], 0) // num columns
	binary.LittleEndian.PutUint16(resp[7:9], uint16(numParams))
	resp[9] = 0x00
	binary.LittleEndian.PutUint16(resp[10:12], 0) // warning count
	if err := c.writePacket(resp); err != nil {
		return err
	}

	for i := 0; i < numParams; i++ {
		col := buildColumnDefinition(model.Column{Name: "?", Type: model.TypeVarchar})
		if err := c.writePacket(col); err != nil {
			return err
		}
	}
	if numParams > 0 {
		if err := c.writePacket(buildEOFPacket(c.status, c.capabilities)); err != nil {
			return err
		}
	}
	return nil
}

// handleStmtExecute decodes the binary parameter block, substitutes each
// value into the stored query text with SQL quoting, and classifies the
// resulting text exactly like a COM_QUERY — there is no separate
// prepared-statement execution path past this point.
func (c *conn) handleStmtExecute(ctx context.Context, body []byte) error {
	if len(body) < 9 {
		return c.writePacket(buildErrorPacket(1210, "HY000", "malformed statement execute"))
	}
	id := binary.LittleEndian.Uint32(body[0:4])
	stmt, ok := c.prepared[id]
	if !ok {
		return c.writePacket(buildErrorPacket(1243, "HY000", "unknown prepared statement"))
	}

	rest := body[9:] // flags (1) + iteration_count (4) already skipped
	params := make([]string, stmt.numParams)
	isNull := make([]bool, stmt.numParams)

	if stmt.numParams > 0 {
		bitmapLen := (stmt.numParams + 7) / 8
		if len(rest) < bitmapLen {
			return c.writePacket(buildErrorPacket(1210, "HY000", "malformed statement execute"))
		}
		nullBitmap := rest[:bitmapLen]
		rest = rest[bitmapLen:]
		for i := 0; i < stmt.numParams; i++ {
			isNull[i] = nullBitmap[i/8]&(1<<(uint(i)%8)) != 0
		}

		if len(rest) < 1 {
			return c.writePacket(buildErrorPacket(1210, "HY000", "malformed statement execute"))
		}
		newParamsBound := rest[0]
		rest = rest[1:]

		types := make([]byte, stmt.numParams)
		if newParamsBound == 1 {
			if len(rest) < stmt.numParams*2 {
				return c.writePacket(buildErrorPacket(1210, "HY000", "malformed statement execute"))
			}
			for i := 0; i < stmt.numParams; i++ {
				types[i] = rest[i*2]
			}
			rest = rest[stmt.numParams*2:]
		}

		for i := 0; i < stmt.numParams; i++ {
			if isNull[i] {
				continue
			}
			v, n, err := decodeBinaryParam(types[i], rest)
			if err != nil {
				return c.writePacket(buildErrorPacket(1210, "HY000", err.Error()))
			}
			params[i] = v
			rest = rest[n:]
		}
	}

	query := substituteParams(stmt.query, params, isNull)
	return c.handleQuery(ctx, query)
}

// decodeBinaryParam decodes one COM_STMT_EXECUTE bound parameter value per
// its advertised type. Only the scalar types MySQL client libraries bind
// string/int/float parameters as are handled; anything else is rejected.
func decodeBinaryParam(typ byte, b []byte) (string, int, error) {
	switch typ {
	case mysqlTypeTiny:
		if len(b) < 1 {
			return "", 0, fmt.Errorf("truncated tiny param")
		}
		return strconv.Itoa(int(int8(b[0]))), 1, nil
	case mysqlTypeLong:
		if len(b) < 4 {
			return "", 0, fmt.Errorf("truncated long param")
		}
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b[:4]))), 10), 4, nil
	case mysqlTypeLongLong:
		if len(b) < 8 {
			return "", 0, fmt.Errorf("truncated longlong param")
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b[:8])), 10), 8, nil
	case mysqlTypeDouble:
		if len(b) < 8 {
			return "", 0, fmt.Errorf("truncated double param")
		}
		bits := binary.LittleEndian.Uint64(b[:8])
		return strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64), 8, nil
	case mysqlTypeVarchar, mysqlTypeVarString, mysqlTypeString, mysqlTypeBlob, mysqlTypeDecimal:
		n, consumed := readLengthEncodedInt(b)
		if consumed+int(n) > len(b) {
			return "", 0, fmt.Errorf("truncated string param")
		}
		return string(b[consumed : consumed+int(n)]), consumed + int(n), nil
	default:
		return "", 0, fmt.Errorf("unsupported parameter type 0x%02x", typ)
	}
}

// substituteParams replaces each ? placeholder, in order, with its quoted
// SQL text before classification — classification then sees ordinary SQL
// text, with no special handling for prepared statements.
func substituteParams(query string, params []string, isNull []bool) string {
	var b strings.Builder
	idx := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' && idx < len(params) {
			if isNull[idx] {
				b.WriteString("NULL")
			} else {
				b.WriteByte('\'')
				b.WriteString(strings.ReplaceAll(strings.ReplaceAll(params[idx], `\`, `\\`), "'", "''"))
				b.WriteByte('\'')
			}
			idx++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (c *conn) writePacket(payload []byte) error {
	err := writePacket(c.nc, c.seq, payload)
	c.seq++
	return err
}
