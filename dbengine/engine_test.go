package dbengine

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbconnect.dev/frame"
	"dbconnect.dev/internal/logging"
)

// newTestProject lays out a project root with a db.env, a SQLite database and a query folder
func newTestProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	env := "DBDRIVER=sqlite\nDBNAME=data.db\nQUERYFOLDER=queries\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "db.env"), []byte(env), 0o644))

	queries := filepath.Join(root, "queries")
	require.NoError(t, os.Mkdir(queries, 0o755))
	for name, body := range map[string]string{
		"prices.sql":    "SELECT symbol, price, volume FROM prices ORDER BY symbol",
		"by_volume.sql": "SELECT symbol FROM prices WHERE volume >= ? ORDER BY symbol",
		"README.md":     "not a query",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(queries, name), []byte(body), 0o644))
	}

	db, err := sql.Open("sqlite", filepath.Join(root, "data.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`
		CREATE TABLE prices (symbol TEXT NOT NULL, price REAL, volume INTEGER);
		INSERT INTO prices VALUES ('NGA', 2.75, 100), ('CLA', 81.1, NULL), ('ZSA', 1.5, 7);
	`)
	require.NoError(t, err)

	return root
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	root := newTestProject(t)
	engine, err := New(append([]Option{WithSearchDir(root)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestNew(t *testing.T) {
	t.Run("finds env file from a nested directory", func(t *testing.T) {
		root := newTestProject(t)
		nested := filepath.Join(root, "queries")

		engine, err := New(WithSearchDir(nested))
		require.NoError(t, err)
		defer func() { _ = engine.Close() }()

		assert.Equal(t, root, engine.ProjectRoot())
		assert.Equal(t, filepath.Join(root, "queries"), engine.QueryFolder())
		assert.Equal(t, DefaultLoginTimeout, engine.LoginTimeout())
		assert.Equal(t, DefaultTimeout, engine.Timeout())
	})

	t.Run("missing env file", func(t *testing.T) {
		_, err := New(WithEnvFile("dbconnect-absent.env"), WithSearchDir(t.TempDir()))
		assert.ErrorIs(t, err, ErrEnvFileNotFound)
	})

	t.Run("env path is read exactly", func(t *testing.T) {
		root := newTestProject(t)
		nested := filepath.Join(root, "queries")

		_, err := New(WithEnvPath(filepath.Join(nested, "db.env")))
		assert.ErrorIs(t, err, ErrEnvFileNotFound, "the db.env in the parent must not be picked up")

		engine, err := New(WithEnvPath(filepath.Join(root, "db.env")), WithSearchDir(t.TempDir()))
		require.NoError(t, err)
		defer func() { _ = engine.Close() }()
		assert.Equal(t, root, engine.ProjectRoot())
	})

	t.Run("query folder must be set", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "db.env"), []byte("DBNAME=x\n"), 0o644))

		_, err := New(WithSearchDir(root))
		assert.ErrorIs(t, err, ErrQueryFolderUnset)
	})

	t.Run("query folder must exist", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := New(
			WithSettings(Settings{Driver: DriverSQLite, Name: "x.db", QueryFolder: "gone"}, t.TempDir()),
			WithLogger(logging.NewStructuredLogger(&buf, slog.LevelInfo)),
		)
		assert.ErrorIs(t, err, ErrQueryFolderMissing)
		assert.Contains(t, buf.String(), "gone")
	})

	t.Run("connection variables are checked lazily", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, "q"), 0o755))

		engine, err := New(WithSettings(Settings{Driver: DriverSQLServer, QueryFolder: "q"}, root))
		require.NoError(t, err)

		_, err = engine.Query(context.Background(), "SELECT 1")
		require.ErrorIs(t, err, ErrMissingVariables)
		assert.Contains(t, err.Error(), "DBUSER,DBPASSWORD,DBHOST,DBPORT,DBNAME")
	})
}

func TestDB(t *testing.T) {
	ctx := context.Background()

	t.Run("pool is created once with configured limits", func(t *testing.T) {
		engine := newTestEngine(t)

		db1, err := engine.DB(ctx)
		require.NoError(t, err)
		db2, err := engine.DB(ctx)
		require.NoError(t, err)

		assert.Same(t, db1, db2)
		assert.Equal(t, 25, db1.Stats().MaxOpenConnections, "MaxOpenConns should be set to 25")
	})

	t.Run("timeout setters drop the pool", func(t *testing.T) {
		engine := newTestEngine(t)

		db1, err := engine.DB(ctx)
		require.NoError(t, err)

		engine.SetTimeout(10 * time.Second)
		assert.Equal(t, 10*time.Second, engine.Timeout())
		assert.Error(t, db1.Ping(), "the old pool should be closed")

		db2, err := engine.DB(ctx)
		require.NoError(t, err)
		assert.NotSame(t, db1, db2)

		engine.SetLoginTimeout(5 * time.Second)
		assert.Equal(t, 5*time.Second, engine.LoginTimeout())

		db3, err := engine.DB(ctx)
		require.NoError(t, err)
		assert.NotSame(t, db2, db3)
	})

	t.Run("unreachable database", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, "q"), 0o755))

		engine, err := New(WithSettings(Settings{
			Driver:      DriverSQLite,
			Name:        filepath.Join("no", "such", "dir", "x.db"),
			QueryFolder: "q",
		}, root))
		require.NoError(t, err)

		_, err = engine.DB(ctx)
		assert.ErrorContains(t, err, "failed to connect to database")
	})

	t.Run("cached reads do not wait for a connect", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		accepted := make(chan net.Conn, 4)
		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				accepted <- conn
			}
		}()
		t.Cleanup(func() {
			_ = listener.Close()
			for {
				select {
				case conn := <-accepted:
					_ = conn.Close()
				default:
					return
				}
			}
		})

		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, "q"), 0o755))
		_, port, err := net.SplitHostPort(listener.Addr().String())
		require.NoError(t, err)

		engine, err := New(WithSettings(Settings{
			Driver:      DriverPostgres,
			User:        "reader",
			Password:    "secret",
			Host:        "127.0.0.1",
			Port:        port,
			Name:        "prices",
			SSLMode:     "disable",
			QueryFolder: "q",
		}, root), WithLoginTimeout(2*time.Second))
		require.NoError(t, err)
		t.Cleanup(func() { _ = engine.Close() })

		cached := frame.Empty()
		engine.mu.Lock()
		engine.cache[cacheKey("prices.sql", nil)] = cached
		engine.mu.Unlock()

		connectErr := make(chan error, 1)
		go func() {
			_, err := engine.DB(ctx)
			connectErr <- err
		}()

		select {
		case conn := <-accepted:
			accepted <- conn
		case <-time.After(5 * time.Second):
			t.Fatal("engine never dialled the server")
		}

		start := time.Now()
		df, err := engine.QueryFile(ctx, "prices.sql")
		require.NoError(t, err)
		assert.Same(t, cached, df)
		assert.Equal(t, 2*time.Second, engine.LoginTimeout())
		_, err = engine.ListQueries()
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second)

		select {
		case err := <-connectErr:
			assert.ErrorContains(t, err, "failed to connect to database")
		case <-time.After(10 * time.Second):
			t.Fatal("connect should give up after the login timeout")
		}
	})

	t.Run("close allows reconnecting", func(t *testing.T) {
		engine := newTestEngine(t)
		_, err := engine.DB(ctx)
		require.NoError(t, err)
		require.NoError(t, engine.Close())
		require.NoError(t, engine.Close())

		df, err := engine.Query(ctx, "SELECT 1 AS one")
		require.NoError(t, err)
		assert.Equal(t, 1, df.Height())
	})
}

func TestLoadQuery(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("reads the file", func(t *testing.T) {
		query, err := engine.LoadQuery("prices.sql")
		require.NoError(t, err)
		assert.Contains(t, query, "FROM prices")
	})

	t.Run("missing file names file and folder", func(t *testing.T) {
		_, err := engine.LoadQuery("nope.sql")
		require.ErrorIs(t, err, ErrQueryNotFound)
		assert.Contains(t, err.Error(), "nope.sql")
		assert.Contains(t, err.Error(), engine.QueryFolder())
	})

	t.Run("rejects names outside the folder", func(t *testing.T) {
		for _, name := range []string{"", "../db.env", "/etc/passwd"} {
			_, err := engine.LoadQuery(name)
			assert.ErrorIs(t, err, ErrInvalidQueryName, name)
		}
	})
}

func TestListQueries(t *testing.T) {
	engine := newTestEngine(t)

	names, err := engine.ListQueries()
	require.NoError(t, err)
	assert.Equal(t, []string{"by_volume.sql", "prices.sql"}, names)
}

func TestQuery(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	t.Run("infers column types", func(t *testing.T) {
		df, err := engine.Query(ctx, "SELECT symbol, price, volume FROM prices ORDER BY symbol")
		require.NoError(t, err)

		assert.Equal(t, []frame.Field{
			{Name: "symbol", Type: frame.String},
			{Name: "price", Type: frame.Float64},
			{Name: "volume", Type: frame.Int64},
		}, df.Schema())

		volume, _ := df.Column("volume")
		assert.Equal(t, []any{nil, int64(100), int64(7)}, volume.Values)
	})

	t.Run("mixed integers and floats widen to float", func(t *testing.T) {
		df, err := engine.Query(ctx, "SELECT 1 AS n UNION ALL SELECT 2.5")
		require.NoError(t, err)

		n, _ := df.Column("n")
		assert.Equal(t, frame.Float64, n.Type)
		assert.ElementsMatch(t, []any{1.0, 2.5}, n.Values)
	})

	t.Run("other mixes fall back to strings", func(t *testing.T) {
		df, err := engine.Query(ctx, "SELECT 1 AS v UNION ALL SELECT 'x'")
		require.NoError(t, err)

		v, _ := df.Column("v")
		assert.Equal(t, frame.String, v.Type)
		assert.ElementsMatch(t, []any{"1", "x"}, v.Values)
	})

	t.Run("all null column is a string column", func(t *testing.T) {
		df, err := engine.Query(ctx, "SELECT NULL AS \"nothing\"")
		require.NoError(t, err)

		col, _ := df.Column("nothing")
		assert.Equal(t, frame.String, col.Type)
		assert.Equal(t, []any{nil}, col.Values)
	})

	t.Run("empty result keeps columns", func(t *testing.T) {
		df, err := engine.Query(ctx, "SELECT symbol FROM prices WHERE 1 = 0")
		require.NoError(t, err)
		assert.True(t, df.IsEmpty())
		assert.Equal(t, []string{"symbol"}, df.Columns())
	})

	t.Run("passes arguments", func(t *testing.T) {
		df, err := engine.Query(ctx, "SELECT symbol FROM prices WHERE price > ?", 2.0)
		require.NoError(t, err)
		assert.Equal(t, 2, df.Height())
	})

	t.Run("unnamed columns are numbered", func(t *testing.T) {
		df, err := engine.Query(ctx, `SELECT 1 AS "", 'x' AS ""`)
		require.NoError(t, err)
		assert.Equal(t, []string{"column_0", "column_1"}, df.Columns())
	})

	t.Run("syntax errors are returned", func(t *testing.T) {
		_, err := engine.Query(ctx, "SELEC nonsense")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrQueryTimeout)
	})
}

func TestQueryTimeout(t *testing.T) {
	engine := newTestEngine(t)
	engine.SetTimeout(50 * time.Millisecond)

	slow := `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < 100000000)
		SELECT count(*) FROM c`

	_, err := engine.Query(context.Background(), slow)
	require.ErrorIs(t, err, ErrQueryTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "query execution exceeded 0.05s")
}

func TestQueryFile(t *testing.T) {
	ctx := context.Background()

	t.Run("results are cached per name and arguments", func(t *testing.T) {
		engine := newTestEngine(t)

		df1, err := engine.QueryFile(ctx, "prices.sql")
		require.NoError(t, err)
		df2, err := engine.QueryFile(ctx, "prices.sql")
		require.NoError(t, err)
		assert.Same(t, df1, df2, "The frame should be cached and return the same object")
		assert.Equal(t, 3, df1.Height())

		big, err := engine.QueryFile(ctx, "by_volume.sql", 50)
		require.NoError(t, err)
		small, err := engine.QueryFile(ctx, "by_volume.sql", 5)
		require.NoError(t, err)
		assert.Equal(t, 1, big.Height())
		assert.Equal(t, 2, small.Height())
	})

	t.Run("clear cache returns new frames", func(t *testing.T) {
		engine := newTestEngine(t)

		df1, err := engine.QueryFile(ctx, "prices.sql")
		require.NoError(t, err)
		require.NoError(t, engine.ClearCache())
		df2, err := engine.QueryFile(ctx, "prices.sql")
		require.NoError(t, err)

		assert.NotSame(t, df1, df2, "The cache should be cleared and return a new object")
	})

	t.Run("missing file", func(t *testing.T) {
		engine := newTestEngine(t)
		_, err := engine.QueryFile(ctx, "absent.sql")
		assert.ErrorIs(t, err, ErrQueryNotFound)
	})

	t.Run("a cancelled caller does not fail the shared fill", func(t *testing.T) {
		engine := newTestEngine(t)
		slow := `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < 5000000)
			SELECT count(*) AS n FROM c`
		require.NoError(t, os.WriteFile(filepath.Join(engine.QueryFolder(), "slow.sql"), []byte(slow), 0o644))

		first, cancel := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := engine.QueryFile(first, "slow.sql")
			firstErr <- err
		}()

		type result struct {
			df  *frame.Frame
			err error
		}
		second := make(chan result, 1)
		time.Sleep(20 * time.Millisecond)
		go func() {
			df, err := engine.QueryFile(ctx, "slow.sql")
			second <- result{df, err}
		}()

		time.Sleep(30 * time.Millisecond)
		cancel()
		select {
		case err := <-firstErr:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("cancelled caller should return without waiting for the query")
		}

		var res result
		select {
		case res = <-second:
		case <-time.After(time.Minute):
			t.Fatal("second caller never got a result")
		}
		require.NoError(t, res.err)
		n, _ := res.df.Column("n")
		assert.Equal(t, []any{int64(5000000)}, n.Values)

		cached, err := engine.QueryFile(ctx, "slow.sql")
		require.NoError(t, err)
		assert.Same(t, res.df, cached)
	})

	t.Run("concurrent callers see one frame", func(t *testing.T) {
		engine := newTestEngine(t)

		var wg sync.WaitGroup
		results := make([]*frame.Frame, 20)
		errs := make([]error, 20)
		for i := range results {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				results[index], errs[index] = engine.QueryFile(ctx, "prices.sql")
			}(i)
		}
		wg.Wait()

		for i := range results {
			require.NoError(t, errs[i])
			assert.Equal(t, 3, results[i].Height())
		}
	})
}

func TestClearCacheDuringQueries(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				df, err := engine.Query(ctx, "SELECT symbol, price FROM prices ORDER BY symbol")
				if err == nil && df.Height() != 3 {
					err = fmt.Errorf("unexpected height %d", df.Height())
				}
				if err != nil {
					errs <- err
				}
			}
		}()
	}

	for i := 0; i < 30; i++ {
		require.NoError(t, engine.ClearCache())
		if i%10 == 0 {
			engine.SetTimeout(time.Duration(10+i) * time.Second)
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestClearCacheReloadsSettings(t *testing.T) {
	root := newTestProject(t)
	engine, err := New(WithSearchDir(root))
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	require.NoError(t, os.Mkdir(filepath.Join(root, "reports"), 0o755))
	env := "DBDRIVER=sqlite\nDBNAME=data.db\nQUERYFOLDER=reports\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "db.env"), []byte(env), 0o644))

	require.NoError(t, engine.ClearCache())
	assert.Equal(t, filepath.Join(root, "reports"), engine.QueryFolder())
	assert.Equal(t, "reports", engine.Settings().QueryFolder)

	require.NoError(t, os.WriteFile(filepath.Join(root, "db.env"), []byte("DBNAME=data.db\n"), 0o644))
	assert.ErrorIs(t, engine.ClearCache(), ErrQueryFolderUnset)
	assert.Equal(t, filepath.Join(root, "reports"), engine.QueryFolder(), "settings are kept when the reload fails")
}
