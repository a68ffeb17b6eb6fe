package database

import (
	"time"

	"github.com/hdt3213/redict/config"
	"github.com/hdt3213/redict/datastruct/dict"
)

var testDB = makeTestDB()
var testServer = makeTestServer("")

func makeTestDB() *DB {
	return makeDB(0, dict.NewConfig())
}

// makeTestServer creates a server without loading any snapshot, dir is where SAVE writes
func makeTestServer(dir string) *Server {
	props := config.Default()
	props.Dir = dir
	props.RDBFilename = "dump.rdb"
	return newServer(props)
}

// fakeClock replaces the clock of db and returns a function moving it forward
func fakeClock(db *DB) func(d time.Duration) {
	now := time.Now()
	db.now = func() time.Time {
		return now
	}
	return func(d time.Duration) {
		now = now.Add(d)
	}
}
