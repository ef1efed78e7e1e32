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

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/storage"
)

type dbScheduleStorage struct {
	db                  *sql.DB
	deleteStatement     *sql.Stmt
	insertStatement     *sql.Stmt
	insertSFStatement   *sql.Stmt
	insertCellStatement *sql.Stmt
	existsStatement     *sql.Stmt
	listSFStatement     *sql.Stmt
	listCellStatement   *sql.Stmt
}

// NewDBScheduleStorage creates a new PostgreSQL-backed schedule storage
func NewDBScheduleStorage(db *sql.DB) (storage.ScheduleStorage, error) {
	ret := &dbScheduleStorage{db: db}
	err := prepare(db, map[**sql.Stmt]string{
		&ret.deleteStatement:   `DELETE FROM tsch_schedule WHERE node = $1`,
		&ret.insertStatement:   `INSERT INTO tsch_schedule (node) VALUES ($1)`,
		&ret.insertSFStatement: `INSERT INTO tsch_slotframe (node, handle, length) VALUES ($1, $2, $3)`,
		&ret.insertCellStatement: `
			INSERT INTO tsch_cell (
				node, handle, position, timeslot, channel_offset, options, link_type, neighbor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		&ret.existsStatement: `SELECT COUNT(*) FROM tsch_schedule WHERE node = $1`,
		&ret.listSFStatement: `SELECT handle, length FROM tsch_slotframe WHERE node = $1 ORDER BY handle`,
		&ret.listCellStatement: `
			SELECT handle, timeslot, channel_offset, options, link_type, neighbor
			FROM tsch_cell
			WHERE node = $1
			ORDER BY handle, position`,
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *dbScheduleStorage) Close() {
	for _, s := range []*sql.Stmt{
		d.deleteStatement, d.insertStatement, d.insertSFStatement, d.insertCellStatement,
		d.existsStatement, d.listSFStatement, d.listCellStatement} {
		if s != nil {
			s.Close()
		}
	}
}

// Put replaces the schedule in a single transaction. The cells and
// slotframes are removed through the cascading delete on the schedule row.
func (d *dbScheduleStorage) Put(node protocol.LinkAddr, frames []schedule.Slotframe) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	id := addrToDB(node)
	if _, err := tx.Stmt(d.deleteStatement).Exec(id); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Stmt(d.insertStatement).Exec(id); err != nil {
		tx.Rollback()
		return translateError(err)
	}
	insertSF := tx.Stmt(d.insertSFStatement)
	insertCell := tx.Stmt(d.insertCellStatement)
	for _, sf := range frames {
		if _, err := insertSF.Exec(id, int(sf.Handle), int(sf.Length)); err != nil {
			tx.Rollback()
			return translateError(err)
		}
		for i, c := range sf.Cells {
			if _, err := insertCell.Exec(id, int(sf.Handle), i, int(c.Timeslot), int(c.ChannelOffset),
				int(c.Options), int(c.Type), addrToDB(c.Neighbor)); err != nil {
				tx.Rollback()
				return translateError(err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		logging.Warning("Unable to commit schedule for %s: %v", node, err)
		return err
	}
	return nil
}

func (d *dbScheduleStorage) Get(node protocol.LinkAddr) ([]schedule.Slotframe, error) {
	id := addrToDB(node)
	var count int
	if err := d.existsStatement.QueryRow(id).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, storage.ErrNotFound
	}

	rows, err := d.listSFStatement.Query(id)
	if err != nil {
		return nil, err
	}
	ret := []schedule.Slotframe{}
	index := make(map[uint16]int)
	for rows.Next() {
		var handle, length int
		if err := rows.Scan(&handle, &length); err != nil {
			rows.Close()
			return nil, err
		}
		index[uint16(handle)] = len(ret)
		ret = append(ret, schedule.Slotframe{Handle: uint16(handle), Length: uint16(length)})
	}
	rows.Close()

	rows, err = d.listCellStatement.Query(id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var handle, timeslot, channelOffset, options, linkType int
		var neighbor int64
		if err := rows.Scan(&handle, &timeslot, &channelOffset, &options, &linkType, &neighbor); err != nil {
			return nil, err
		}
		idx, ok := index[uint16(handle)]
		if !ok {
			return nil, storage.ErrInvalidData
		}
		ret[idx].Cells = append(ret[idx].Cells, schedule.Cell{
			Handle:        uint16(handle),
			Timeslot:      uint16(timeslot),
			ChannelOffset: uint16(channelOffset),
			Options:       schedule.LinkOptions(options),
			Type:          schedule.LinkType(linkType),
			Neighbor:      addrFromDB(neighbor),
		})
	}
	return ret, rows.Err()
}

func (d *dbScheduleStorage) Delete(node protocol.LinkAddr) error {
	return doSQLExec(d.db, d.deleteStatement, func(s *sql.Stmt) (sql.Result, error) {
		return s.Exec(addrToDB(node))
	})
}
