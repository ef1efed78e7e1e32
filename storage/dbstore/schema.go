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
import "strings"

// DBSchema contains the storage scheme for PostgreSQL
const DBSchema = `
-- **************************************************************************
-- Storage schema for the TSCH node state.
-- **************************************************************************
-- * Link addresses are EUI-64 stored as BIGINT. The upper half of the
--   address space wraps into negative numbers.
-- * All of the rows for a node are removed when the schedule row is removed.

-- **************************************************************************
-- The schedule row marks that a schedule has been stored for the node. A
-- node can store an empty schedule.
-- **************************************************************************
CREATE TABLE tsch_schedule (
    node     BIGINT    NOT NULL,
    updated  TIMESTAMP NOT NULL DEFAULT now(),

    CONSTRAINT tsch_schedule_pk PRIMARY KEY (node)
);

-- **************************************************************************
-- Slotframes. The handle is unique per node.
-- **************************************************************************
CREATE TABLE tsch_slotframe (
    node    BIGINT  NOT NULL REFERENCES tsch_schedule (node) ON DELETE CASCADE,
    handle  INTEGER NOT NULL,
    length  INTEGER NOT NULL,

    CONSTRAINT tsch_slotframe_pk PRIMARY KEY (node, handle)
);

-- **************************************************************************
-- Cells. The position keeps the order of cells sharing a timeslot.
-- **************************************************************************
CREATE TABLE tsch_cell (
    node            BIGINT   NOT NULL,
    handle          INTEGER  NOT NULL,
    position        INTEGER  NOT NULL,
    timeslot        INTEGER  NOT NULL,
    channel_offset  INTEGER  NOT NULL,
    options         SMALLINT NOT NULL,
    link_type       SMALLINT NOT NULL,
    neighbor        BIGINT   NOT NULL,

    CONSTRAINT tsch_cell_pk PRIMARY KEY (node, handle, position),
    CONSTRAINT tsch_cell_slotframe_fk FOREIGN KEY (node, handle)
        REFERENCES tsch_slotframe (node, handle) ON DELETE CASCADE
);

-- **************************************************************************
-- 6P neighbor state. The next sequence number and the generation counter
-- for each peer.
-- **************************************************************************
CREATE TABLE tsch_sixp_peer (
    node      BIGINT   NOT NULL,
    peer      BIGINT   NOT NULL,
    next_seq  SMALLINT NOT NULL,
    gen       SMALLINT NOT NULL,

    CONSTRAINT tsch_sixp_peer_pk PRIMARY KEY (node, peer)
);
CREATE INDEX tsch_sixp_peer_node ON tsch_sixp_peer (node);
`

// DBSchemaDrop drops all of the tables
const DBSchemaDrop = `
DROP TABLE tsch_sixp_peer;
DROP TABLE tsch_cell;
DROP TABLE tsch_slotframe;
DROP TABLE tsch_schedule;
`

func removeComments(schema string) string {
	lines := strings.Split(schema, "\n")
	var ret []string
	for _, line := range lines {
		if pos := strings.Index(line, "--"); pos >= 0 {
			line = line[:pos]
		}
		if strings.TrimSpace(line) != "" {
			ret = append(ret, line)
		}
	}
	return strings.Join(ret, "\n")
}

// SchemaCommandList returns a list of the DDL commands to create a schema.
func SchemaCommandList() []string {
	var ret []string
	for _, v := range strings.Split(removeComments(DBSchema), ";") {
		if cmd := strings.TrimSpace(v); cmd != "" {
			ret = append(ret, cmd)
		}
	}
	return ret
}
