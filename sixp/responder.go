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
	"bytes"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/schedule"
)

// rejection wraps a schedule error from the request. The response is sent
// without changing the table.
type rejection struct {
	err error
}

func (r *rejection) Error() string {
	return r.err.Error()
}

func (e *Engine) sendError(to protocol.LinkAddr, rc protocol.SixPReturnCode, sfid, seq, gen uint8) {
	msg, err := protocol.NewSixPResponse(protocol.SixPResponse, 0, rc, sfid, seq, protocol.SixPBody{})
	if err != nil {
		return
	}
	msg.Gen = gen
	data, err := msg.MarshalBinary()
	if err != nil {
		return
	}
	e.counters.rejected.Add(1)
	if err := e.sender.Send(to, data, nil); err != nil {
		e.counters.sendFailures.Add(1)
		logging.Info("Unable to send %s to %s: %v", rc, to, err)
	}
}

func encodeResponse(cmd protocol.SixPCommand, rc protocol.SixPReturnCode, sfid, seq, gen uint8, body protocol.SixPBody) ([]byte, error) {
	msg, err := protocol.NewSixPResponse(protocol.SixPResponse, cmd, rc, sfid, seq, body)
	if err != nil {
		return nil, err
	}
	msg.Gen = gen
	return msg.MarshalBinary()
}

// respond handles a request from a peer. An accepted request changes the
// schedule and queues the response in one step: the table is only
// published if the response was handed to the MAC.
func (e *Engine) respond(from protocol.LinkAddr, msg *protocol.SixPMessage, raw []byte, sf SchedulingFunction) {
	e.counters.requests.Add(1)
	p, created, err := e.peer(from)
	if err != nil {
		e.sendError(from, protocol.RCErrBusy, msg.SFID, msg.SeqNum, 0)
		return
	}
	if p.tx != nil {
		logging.Info("%s from %s while transaction %d is in progress", msg, from, p.tx.seq)
		e.sendError(from, protocol.RCErrBusy, msg.SFID, msg.SeqNum, p.gen)
		return
	}
	if p.cache.valid && p.cache.seq == msg.SeqNum && bytes.Equal(p.cache.request, raw) {
		logging.Debug("Retransmitted %s from %s, sending cached response", msg, from)
		e.counters.duplicates.Add(1)
		if err := e.sender.Send(from, p.cache.response, nil); err != nil {
			e.counters.sendFailures.Add(1)
		}
		return
	}

	cmd := msg.Command()
	if cmd != protocol.CmdClear &&
		((created && msg.SeqNum != 0) || (!created && p.nextSeq != 0 && msg.SeqNum == 0)) {
		logging.Info("Inconsistent sequence number %d from %s (expected %d)", msg.SeqNum, from, p.nextSeq)
		if created {
			delete(e.peers, from)
		}
		e.sendError(from, protocol.RCErrSeqNum, msg.SFID, p.nextSeq, 0)
		return
	}

	gen := p.gen
	var data []byte
	var rc protocol.SixPReturnCode
	var body protocol.SixPBody
	if changesSchedule(cmd) && msg.Gen != p.gen {
		logging.Info("Generation mismatch from %s (got %d, have %d)", from, msg.Gen, p.gen)
		rc = protocol.RCReset
	} else {
		err = e.table.Apply(func(b *schedule.Batch) error {
			var err error
			rc, body, err = e.execute(b, p, msg, sf)
			if err != nil {
				return &rejection{err}
			}
			switch {
			case cmd == protocol.CmdClear:
				gen = 0
			case changesSchedule(cmd):
				gen = nextGen(p.gen)
			}
			if data, err = encodeResponse(cmd, rc, sf.SFID(), msg.SeqNum, gen, body); err != nil {
				return err
			}
			if e.beforeSend != nil {
				if err := e.beforeSend(); err != nil {
					return err
				}
			}
			return e.sender.Send(from, data, nil)
		})
		if r, ok := err.(*rejection); ok {
			rc = returnCode(r.err)
			body = protocol.SixPBody{}
			data = nil
			logging.Info("Rejecting %s from %s: %v (%s)", msg, from, r.err, rc)
		} else if err != nil {
			// Nothing was committed and nothing was sent. The peer will
			// time out and may retry with the same sequence number.
			e.counters.sendFailures.Add(1)
			logging.Warning("Unable to respond to %s from %s: %v", msg, from, err)
			if created {
				delete(e.peers, from)
			}
			return
		}
	}

	if data == nil {
		// Rejected requests are resolved too and cached like any other
		if data, err = encodeResponse(cmd, rc, sf.SFID(), msg.SeqNum, p.gen, protocol.SixPBody{}); err != nil {
			logging.Warning("Unable to encode response to %s: %v", from, err)
			return
		}
		e.counters.rejected.Add(1)
		if err := e.sender.Send(from, data, nil); err != nil {
			e.counters.sendFailures.Add(1)
			logging.Warning("Unable to send %s to %s: %v", rc, from, err)
			return
		}
	} else {
		p.gen = gen
	}

	p.cache = cachedResponse{
		valid:    true,
		seq:      msg.SeqNum,
		request:  append([]byte(nil), raw...),
		response: data,
	}
	if cmd == protocol.CmdClear {
		p.nextSeq = 0
	} else {
		p.nextSeq = nextSeqNum(msg.SeqNum)
	}
	if rc.IsSuccess() {
		e.updateLinks(from)
	}
	e.deliver(Result{
		Peer:    from,
		Command: cmd,
		SeqNum:  msg.SeqNum,
		State:   Idle,
		Code:    rc,
		Cells:   body.CellList,
		Count:   body.TotalNumCells,
		Err:     resultError(cmd, rc),
	})
}

// free returns true if nothing uses the timeslot in the batch and no
// transaction of ours has reserved it
func (e *Engine) free(b *schedule.Batch, handle, timeslot uint16) bool {
	if e.taken(handle)(timeslot) {
		return false
	}
	return len(b.Resolve(handle, timeslot)) == 0
}

// execute carries out the request on the batch. Cell options in the
// request are the initiator's view; the responder uses the reverse.
func (e *Engine) execute(b *schedule.Batch, p *peer, msg *protocol.SixPMessage, sf SchedulingFunction) (protocol.SixPReturnCode, protocol.SixPBody, error) {
	handle := sf.Handle()
	req := msg.Body
	options := reverse(req.CellOptions)
	ret := protocol.SixPBody{}

	switch msg.Command() {
	case protocol.CmdAdd:
		cells, err := e.addCells(b, handle, p.addr, options, req.CellList, int(req.NumCells))
		if err != nil {
			return protocol.RCErr, ret, err
		}
		ret.CellList = cells

	case protocol.CmdDelete:
		for _, c := range req.CellList {
			if err := removeCell(b, handle, c, options, p.addr); err != nil {
				return protocol.RCErr, ret, err
			}
		}
		ret.CellList = req.CellList

	case protocol.CmdRelocate:
		for _, c := range req.RelocationList {
			if findCell(b.Resolve(handle, c.SlotOffset), p.addr, c, options) < 0 {
				return protocol.RCErr, ret, schedule.ErrNotFound
			}
		}
		var moved []protocol.SixPCell
		var lastErr error = schedule.ErrDuplicateCell
		for _, c := range req.CellList {
			if len(moved) >= len(req.RelocationList) {
				break
			}
			if !e.free(b, handle, c.SlotOffset) {
				continue
			}
			old := req.RelocationList[len(moved)]
			if err := removeCell(b, handle, old, options, p.addr); err != nil {
				return protocol.RCErr, ret, err
			}
			if err := b.AddCell(newCell(handle, c, options, p.addr)); err != nil {
				lastErr = err
				// Put the old cell back and try the next candidate
				if err := b.AddCell(newCell(handle, old, options, p.addr)); err != nil {
					return protocol.RCErr, ret, err
				}
				continue
			}
			moved = append(moved, c)
		}
		if len(moved) == 0 {
			return protocol.RCErr, ret, lastErr
		}
		ret.CellList = moved

	case protocol.CmdCount:
		for _, c := range b.CellsFor(handle, p.addr, 0) {
			if matches(c, options) {
				ret.TotalNumCells++
			}
		}

	case protocol.CmdList:
		var all []protocol.SixPCell
		for _, c := range b.CellsFor(handle, p.addr, 0) {
			if matches(c, options) {
				all = append(all, protocol.SixPCell{SlotOffset: c.Timeslot, ChannelOffset: c.ChannelOffset})
			}
		}
		start := int(req.Offset)
		if start > len(all) {
			start = len(all)
		}
		end := start + int(req.MaxNumCells)
		if end >= len(all) {
			ret.CellList = all[start:]
			return protocol.RCEOL, ret, nil
		}
		ret.CellList = all[start:end]

	case protocol.CmdClear:
		for _, c := range b.CellsFor(handle, p.addr, 0) {
			if _, err := b.RemoveCell(c.Handle, c.Timeslot, c.Neighbor); err != nil {
				return protocol.RCErr, ret, err
			}
		}

	case protocol.CmdSignal:
		ret.Payload = req.Payload

	default:
		return protocol.RCErr, ret, schedule.ErrInvalidCell
	}
	return protocol.RCSuccess, ret, nil
}

// addCells adds up to n of the candidates. The first error is returned if
// none of them could be used.
func (e *Engine) addCells(b *schedule.Batch, handle uint16, addr protocol.LinkAddr, options protocol.CellOptions, candidates []protocol.SixPCell, n int) ([]protocol.SixPCell, error) {
	if _, err := b.Slotframe(handle); err != nil {
		return nil, err
	}
	var added []protocol.SixPCell
	var firstErr error
	for _, c := range candidates {
		if len(added) >= n {
			break
		}
		if !e.free(b, handle, c.SlotOffset) {
			if firstErr == nil {
				firstErr = schedule.ErrDuplicateCell
			}
			continue
		}
		if err := b.AddCell(newCell(handle, c, options, addr)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if err == schedule.ErrCapacityExceeded {
				break
			}
			continue
		}
		added = append(added, c)
	}
	if len(added) == 0 {
		if firstErr == nil {
			firstErr = schedule.ErrInvalidCell
		}
		return nil, firstErr
	}
	return added, nil
}
