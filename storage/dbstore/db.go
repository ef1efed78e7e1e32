package dbstore

//
//Copyright 2018 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/storage"
	// Use the Postgres driver
	_ "github.com/lib/pq"
)

// CreateSchema creates the schema for the database
func CreateSchema(db *sql.DB) error {
	for _, v := range SchemaCommandList() {
		if _, err := db.Exec(v); err != nil {
			return fmt.Errorf("unable to create PostgreSQL schema: %v (while running %s)", err, v)
		}
	}
	logging.Info("PostgreSQL schema created")
	return nil
}

// Addresses are stored as signed 64-bit integers
func addrToDB(a protocol.LinkAddr) int64 {
	return int64(a.ToUint64())
}

func addrFromDB(v int64) protocol.LinkAddr {
	return protocol.LinkAddrFromUint64(uint64(v))
}

// translateError maps PostgreSQL constraint errors to storage errors
func translateError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "duplicate key value violates") {
		return storage.ErrAlreadyExists
	}
	return err
}

// prepare prepares all of the statements. If one of them fails the ones
// already prepared are closed.
func prepare(db *sql.DB, statements map[**sql.Stmt]string) error {
	for stmt, query := range statements {
		var err error
		if *stmt, err = db.Prepare(query); err != nil {
			for s := range statements {
				if *s != nil {
					(*s).Close()
				}
			}
			return fmt.Errorf("unable to prepare statement %q: %v", strings.TrimSpace(query), err)
		}
	}
	return nil
}

type stmtFunc func(stmt *sql.Stmt) (sql.Result, error)

// doSQLExec wraps an Exec statement in a transaction and returns
// ErrNotFound if no rows are affected.
func doSQLExec(db *sql.DB, statement *sql.Stmt, execFunc stmtFunc) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	result, err := execFunc(tx.Stmt(statement))
	if err != nil {
		tx.Rollback()
		return translateError(err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if count, _ := result.RowsAffected(); count == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateStorage creates a new PostgreSQL-backed storage
func CreateStorage(connectionString string, maxConn, idleConn int, maxConnLifetime time.Duration) (storage.Storage, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return storage.Storage{}, fmt.Errorf("unable to connect to database: %v", err)
	}
	db.SetMaxIdleConns(idleConn)
	db.SetMaxOpenConns(maxConn)
	db.SetConnMaxLifetime(maxConnLifetime)

	scheduleStorage, err := NewDBScheduleStorage(db)
	if err != nil {
		db.Close()
		return storage.Storage{}, fmt.Errorf("unable to create schedule storage: %v", err)
	}
	peerStorage, err := NewDBPeerStorage(db)
	if err != nil {
		scheduleStorage.Close()
		db.Close()
		return storage.Storage{}, fmt.Errorf("unable to create peer storage: %v", err)
	}
	return storage.Storage{
		Schedule: scheduleStorage,
		Peers:    peerStorage,
	}, nil
}
