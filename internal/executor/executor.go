// Package executor turns a classification into a result set by dispatching
// to the backing store (or to the static in-memory schema tables).
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/mysql-redis-adapter/internal/auth"
	"github.com/edvin/mysql-redis-adapter/internal/classify"
	"github.com/edvin/mysql-redis-adapter/internal/metrics"
	"github.com/edvin/mysql-redis-adapter/internal/model"
	"github.com/edvin/mysql-redis-adapter/internal/store"
)

// Outcome is what a query execution produces. OK means "no result set, just
// success" (the Noop path); otherwise Columns/Rows describe a result set,
// possibly with zero rows.
type Outcome struct {
	OK      bool
	Columns []model.Column
	Rows    [][]any
}

// Executor dispatches classified queries against the backing store.
type Executor struct {
	store         store.Store
	verifier      *auth.Verifier
	scanLimit     int
	serverVersion string
	log           zerolog.Logger
}

// New builds an Executor. serverVersion is the string reported for
// SELECT @@version and advertised in the MySQL handshake.
func New(s store.Store, verifier *auth.Verifier, scanLimit int, serverVersion string, log zerolog.Logger) *Executor {
	return &Executor{store: s, verifier: verifier, scanLimit: scanLimit, serverVersion: serverVersion, log: log}
}

// Execute runs one classified query. dbName is the client's current
// database (from the handshake or COM_INIT_DB; a USE query is a Noop and
// does not change it), used only to label SHOW TABLES' column.
func (e *Executor) Execute(ctx context.Context, r classify.Result, dbName, clientIP string) Outcome {
	start := time.Now()
	defer func() { metrics.ObserveQuery(r.Kind.String(), time.Since(start)) }()

	switch r.Kind {
	case classify.Version:
		return Outcome{
			Columns: []model.Column{{Name: "@@version", Type: model.TypeVarchar}},
			Rows:    [][]any{{e.serverVersion}},
		}

	case classify.ShowTables:
		col := "Tables_in_" + dbName
		return Outcome{
			Columns: []model.Column{{Name: col, Type: model.TypeVarchar}},
			Rows:    [][]any{{model.UsersTable}},
		}

	case classify.DescribeUsers:
		rows := make([][]any, 0, len(model.UsersColumns))
		for _, c := range model.UsersColumns {
			nullable := "YES"
			if c.NotNull {
				nullable = "NO"
			}
			key := ""
			if c.PrimaryKey {
				key = "PRI"
			}
			rows = append(rows, []any{c.Name, mysqlTypeName(c.Type), nullable, key, nil, ""})
		}
		return Outcome{Columns: model.DescribeColumns, Rows: rows}

	case classify.PkLookup:
		return e.pkLookup(ctx, r, clientIP)

	case classify.FullScan:
		return e.fullScan(ctx, r, clientIP)

	case classify.TokenVerify:
		return e.tokenVerify(ctx, r, clientIP)

	case classify.Noop:
		return Outcome{OK: true}

	default: // classify.Rejected
		e.log.Warn().Str("client", clientIP).Str("reason", r.Reason).Msg("query_rejected")
		return Outcome{Columns: []model.Column{{Name: "result", Type: model.TypeVarchar}}}
	}
}

func (e *Executor) pkLookup(ctx context.Context, r classify.Result, clientIP string) Outcome {
	start := time.Now()
	key := fmt.Sprintf("%s.%s", r.Table, r.Value)

	payload, err := e.store.Get(ctx, key)
	if err != nil {
		if err != store.ErrNotFound {
			metrics.RedisErrorsTotal.Inc()
			e.log.Error().Str("operation", "pk_lookup").Err(err).Msg("redis_connection_error")
		}
		e.logExecuted("pk_lookup", r.Table, clientIP, time.Since(start), 0)
		return Outcome{Columns: model.UsersColumns}
	}

	var u model.UserRecord
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		e.log.Warn().Str("key", key).Err(err).Msg("user_payload_unparseable")
		e.logExecuted("pk_lookup", r.Table, clientIP, time.Since(start), 0)
		return Outcome{Columns: model.UsersColumns}
	}

	e.logExecuted("pk_lookup", r.Table, clientIP, time.Since(start), 1)
	return Outcome{Columns: model.UsersColumns, Rows: [][]any{userRow(r.Value, u)}}
}

func (e *Executor) fullScan(ctx context.Context, r classify.Result, clientIP string) Outcome {
	start := time.Now()

	metrics.ScanOperationsTotal.Inc()
	e.log.Warn().
		Str("table", r.Table).
		Int("limit", e.scanLimit).
		Str("client", clientIP).
		Msg("scan_operation_triggered")

	if e.scanLimit == 0 {
		e.logExecuted("full_scan", r.Table, clientIP, time.Since(start), 0)
		return Outcome{Columns: model.UsersColumns}
	}

	const batchSize = 100
	pattern := r.Table + ".*"
	var rows [][]any
	var cursor uint64

	for len(rows) < e.scanLimit {
		keys, next, err := e.store.Scan(ctx, cursor, pattern, batchSize)
		if err != nil {
			metrics.RedisErrorsTotal.Inc()
			e.log.Error().Str("operation", "scan").Err(err).Msg("redis_connection_error")
			break
		}

		for _, k := range keys {
			if len(rows) >= e.scanLimit {
				break
			}
			payload, err := e.store.Get(ctx, k)
			if err != nil {
				continue
			}
			var u model.UserRecord
			if err := json.Unmarshal([]byte(payload), &u); err != nil {
				e.log.Warn().Str("key", k).Err(err).Msg("user_payload_unparseable")
				continue
			}
			rows = append(rows, userRow(strings.TrimPrefix(k, r.Table+"."), u))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	e.logExecuted("full_scan", r.Table, clientIP, time.Since(start), len(rows))
	return Outcome{Columns: model.UsersColumns, Rows: rows}
}

func (e *Executor) tokenVerify(ctx context.Context, r classify.Result, clientIP string) Outcome {
	start := time.Now()
	res := e.verifier.Verify(ctx, r.Token)

	var rows [][]any
	rowCount := 0
	if res.Verified {
		rowCount = 1
		rows = [][]any{{int64(1), res.UserID, res.Facility, res.VerifiedAt, ""}}
	}

	e.logExecuted("token_verify", "", clientIP, time.Since(start), rowCount)
	return Outcome{Columns: model.QrVerifyColumns, Rows: rows}
}

func userRow(pk string, u model.UserRecord) []any {
	var name, email, createdAt, age any
	if u.Name != nil {
		name = *u.Name
	}
	if u.Email != nil {
		email = *u.Email
	}
	if u.Age != nil {
		age = int64(*u.Age)
	}
	if u.CreatedAt != nil {
		createdAt = *u.CreatedAt
	}
	return []any{pk, name, email, age, createdAt}
}

func mysqlTypeName(t model.ColumnType) string {
	switch t {
	case model.TypeVarchar:
		return "varchar(255)"
	case model.TypeLong:
		return "int(11)"
	case model.TypeDatetime:
		return "datetime"
	case model.TypeTinyint:
		return "tinyint(1)"
	case model.TypeText:
		return "text"
	default:
		return "varchar(255)"
	}
}

func (e *Executor) logExecuted(queryType, table, clientIP string, d time.Duration, rows int) {
	event := e.log.Info().
		Str("query_type", queryType).
		Int64("duration_ms", d.Milliseconds()).
		Int("rows", rows).
		Str("client", clientIP).
		Str("result", "success")
	if table != "" {
		event = event.Str("table", table)
	}
	event.Msg("query_executed")
}
