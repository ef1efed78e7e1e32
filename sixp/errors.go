package sixp

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
	"errors"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/schedule"
)

var (
	// ErrBusy is returned by Initiate when a transaction with the peer is
	// already in progress
	ErrBusy = errors.New("6P transaction with peer in progress")
	// ErrTimeout is reported when no response arrived in time
	ErrTimeout = errors.New("6P transaction timed out")
	// ErrSendFailed is reported when the request couldn't be delivered
	ErrSendFailed = errors.New("6P message could not be sent")
	// ErrPeerBusy is reported when the peer answers RC_ERR_BUSY
	ErrPeerBusy = errors.New("peer is busy")
	// ErrGeneration is reported when the peer answers RC_RESET. The
	// schedules are out of sync and should be cleared.
	ErrGeneration = errors.New("schedule generation mismatch")
	// ErrSequence is reported when the peer answers RC_ERR_SEQNUM
	ErrSequence = errors.New("sequence number mismatch")
	// ErrRejected is reported for the remaining error return codes
	ErrRejected = errors.New("request rejected by peer")
	// ErrUnknownSF is returned when no scheduling function is registered
	// for the SFID
	ErrUnknownSF = errors.New("unknown scheduling function")
	// ErrInvalidRequest is returned by Initiate for requests that can't be
	// encoded
	ErrInvalidRequest = errors.New("invalid 6P request")
	// ErrPeerTable is returned when there's no room for another peer
	ErrPeerTable = errors.New("6P peer table is full")
	// ErrStopped is returned when the engine isn't running
	ErrStopped = errors.New("6P engine stopped")
)

// returnCode maps a schedule error to the return code sent to the peer
func returnCode(err error) protocol.SixPReturnCode {
	switch err {
	case nil:
		return protocol.RCSuccess
	case schedule.ErrCapacityExceeded:
		return protocol.RCErrBusy
	case schedule.ErrDuplicateCell, schedule.ErrNotFound, schedule.ErrInvalidCell:
		return protocol.RCErrCellList
	default:
		return protocol.RCErr
	}
}

// resultError maps a return code from the peer to the error reported to
// the initiator
func resultError(cmd protocol.SixPCommand, rc protocol.SixPReturnCode) error {
	switch rc {
	case protocol.RCSuccess, protocol.RCEOL:
		return nil
	case protocol.RCErrCellList:
		if cmd == protocol.CmdDelete {
			return schedule.ErrNotFound
		}
		return schedule.ErrDuplicateCell
	case protocol.RCErrBusy:
		return ErrPeerBusy
	case protocol.RCReset:
		return ErrGeneration
	case protocol.RCErrSeqNum:
		return ErrSequence
	default:
		return ErrRejected
	}
}
