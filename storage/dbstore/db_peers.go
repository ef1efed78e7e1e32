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

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/storage"
)

type dbPeerStorage struct {
	db              *sql.DB
	upsertStatement *sql.Stmt
	listStatement   *sql.Stmt
	deleteStatement *sql.Stmt
}

// NewDBPeerStorage creates a new PostgreSQL-backed 6P peer storage
func NewDBPeerStorage(db *sql.DB) (storage.PeerStorage, error) {
	ret := &dbPeerStorage{db: db}
	err := prepare(db, map[**sql.Stmt]string{
		&ret.upsertStatement: `
			INSERT INTO tsch_sixp_peer (node, peer, next_seq, gen)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (node, peer) DO UPDATE SET next_seq = $3, gen = $4`,
		&ret.listStatement:   `SELECT peer, next_seq, gen FROM tsch_sixp_peer WHERE node = $1 ORDER BY peer`,
		&ret.deleteStatement: `DELETE FROM tsch_sixp_peer WHERE node = $1 AND peer = $2`,
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *dbPeerStorage) Close() {
	d.upsertStatement.Close()
	d.listStatement.Close()
	d.deleteStatement.Close()
}

func (d *dbPeerStorage) Put(node protocol.LinkAddr, peer sixp.PeerState) error {
	return doSQLExec(d.db, d.upsertStatement, func(s *sql.Stmt) (sql.Result, error) {
		return s.Exec(addrToDB(node), addrToDB(peer.Addr), int(peer.NextSeq), int(peer.Gen))
	})
}

func (d *dbPeerStorage) List(node protocol.LinkAddr) ([]sixp.PeerState, error) {
	rows, err := d.listStatement.Query(addrToDB(node))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := []sixp.PeerState{}
	for rows.Next() {
		var peer int64
		var seq, gen int
		if err := rows.Scan(&peer, &seq, &gen); err != nil {
			return nil, err
		}
		ret = append(ret, sixp.PeerState{Addr: addrFromDB(peer), NextSeq: uint8(seq), Gen: uint8(gen)})
	}
	return ret, rows.Err()
}

func (d *dbPeerStorage) Delete(node protocol.LinkAddr, peer protocol.LinkAddr) error {
	return doSQLExec(d.db, d.deleteStatement, func(s *sql.Stmt) (sql.Result, error) {
		return s.Exec(addrToDB(node), addrToDB(peer))
	})
}
