// Command build-testdb creates the SQLite fixture table the benchmark
// driver queries: test(id INTEGER PRIMARY KEY, col0..colN
// INTEGER NOT NULL) filled with bounded random values.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func main() {
	dbFile := flag.String("db", "./database.db", "SQLite database file")
	columns := flag.Int("columns", 1, "number of colN columns")
	rows := flag.Int("rows", 100_000, "number of rows")
	indexed := flag.Bool("indexed", true, "create an index per column")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if err := build(*dbFile, *columns, *rows, *indexed, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build database: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Built %s: table test with %d columns, %d rows\n", *dbFile, *columns, *rows)
}

func build(dbFile string, columns, rows int, indexed bool, seed int64) error {
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DROP TABLE IF EXISTS test"); err != nil {
		return err
	}
	var decl strings.Builder
	decl.WriteString("CREATE TABLE test (id INTEGER PRIMARY KEY")
	for i := 0; i < columns; i++ {
		fmt.Fprintf(&decl, ", col%d INTEGER NOT NULL", i)
	}
	decl.WriteString(")")
	if _, err := tx.Exec(decl.String()); err != nil {
		return err
	}

	var insert strings.Builder
	insert.WriteString("INSERT INTO test (id")
	for i := 0; i < columns; i++ {
		fmt.Fprintf(&insert, ", col%d", i)
	}
	insert.WriteString(") VALUES (?")
	insert.WriteString(strings.Repeat(", ?", columns))
	insert.WriteString(")")
	stmt, err := tx.Prepare(insert.String())
	if err != nil {
		return err
	}
	defer stmt.Close()

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < rows; i++ {
		// One value repeated across the columns, spread over a window
		// centered on zero, matching the generated rules' range queries.
		val := rng.Int63n(int64(rows)) - int64(rows)/2
		args := make([]interface{}, columns+1)
		args[0] = int64(i)
		for j := 1; j <= columns; j++ {
			args[j] = val
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}

	if indexed {
		for i := 0; i < columns; i++ {
			q := fmt.Sprintf("CREATE INDEX index_col%d ON test (col%d)", i, i)
			if _, err := tx.Exec(q); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
