package server

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
	"testing"

	"github.com/ExploratoryEngineering/tsch/protocol"
	"github.com/ExploratoryEngineering/tsch/radio/sim"
	"github.com/ExploratoryEngineering/tsch/rtimer"
	"github.com/ExploratoryEngineering/tsch/schedule"
	"github.com/ExploratoryEngineering/tsch/sixp"
	"github.com/ExploratoryEngineering/tsch/storage"
	"github.com/ExploratoryEngineering/tsch/storage/memstore"
)

func newTestContext(t *testing.T, store *storage.Storage) *Context {
	clock := rtimer.NewVirtualClock()
	timer := clock.NewTimer(rtimer.Rate1MHz, 0, 0)
	medium := sim.NewMedium(clock, 1)
	ctx, err := NewContext(NewMemoryConfig(), timer, medium.AddRadio(timer), clock, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ctx
}

func TestNewContext(t *testing.T) {
	store := memstore.CreateMemoryStorage(0, 0)
	ctx := newTestContext(t, &store)

	if ctx.Router == nil || ctx.Engine == nil || ctx.SixP == nil {
		t.Fatal("Context isn't complete")
	}
	if _, err := ctx.Table.Slotframe(schedule.MinimalHandle); err != nil {
		t.Fatal("Minimal slotframe should be installed")
	}
	if _, err := ctx.Table.Slotframe(ctx.SF.Handle()); err != nil {
		t.Fatal("Scheduling function slotframe should be installed")
	}
	if ctx.Table.Links() != 1 {
		t.Fatalf("Expected one link in the minimal schedule, got %d", ctx.Table.Links())
	}
	if _, err := store.Schedule.Get(ctx.Address); err != storage.ErrNotFound {
		t.Fatal("Nothing should be stored before Persist")
	}
}

func TestContextRestore(t *testing.T) {
	store := memstore.CreateMemoryStorage(0, 0)
	ctx := newTestContext(t, &store)

	peer := protocol.LinkAddrFromUint64(0x42)
	if err := ctx.Table.AddCell(schedule.Cell{
		Handle:   ctx.SF.Handle(),
		Timeslot: 3,
		Options:  schedule.OptionTX,
		Neighbor: peer,
	}); err != nil {
		t.Fatal(err)
	}
	ctx.SixP.RestorePeers([]sixp.PeerState{{Addr: peer, NextSeq: 4, Gen: 2}})
	if err := ctx.Persist(); err != nil {
		t.Fatal(err)
	}

	restored := newTestContext(t, &store)
	if restored.Table.Links() != 2 {
		t.Fatalf("Expected two links after restore, got %d", restored.Table.Links())
	}
	if cells := restored.Table.Resolve(ctx.SF.Handle(), 3); len(cells) != 1 || cells[0].Neighbor != peer {
		t.Fatalf("Unexpected cells %v", cells)
	}
	peers := restored.SixP.Peers()
	if len(peers) != 1 || peers[0].NextSeq != 4 || peers[0].Gen != 2 {
		t.Fatalf("Unexpected peers %+v", peers)
	}
	if n := restored.Queue.Neighbor(peer); n == nil {
		t.Fatal("Restored TX cell should register the neighbor with the queue")
	}

	if err := restored.Reset(); err != nil {
		t.Fatal(err)
	}
	if restored.Table.Links() != 1 {
		t.Fatalf("Reset should leave the minimal schedule, got %d links", restored.Table.Links())
	}
	frames, err := store.Schedule.Get(restored.Address)
	if err != nil || len(frames) != 2 {
		t.Fatalf("Reset schedule should be stored (err=%v, frames=%d)", err, len(frames))
	}
}
