package schedule

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
import "errors"

var (
	// ErrDuplicateCell is returned when a non-shared cell already occupies the
	// timeslot for a different neighbor
	ErrDuplicateCell = errors.New("timeslot is already in use")
	// ErrNotFound is returned when the cell or slotframe doesn't exist
	ErrNotFound = errors.New("cell not found")
	// ErrCapacityExceeded is returned when the table is full. This is a
	// negotiable condition, not a fault.
	ErrCapacityExceeded = errors.New("schedule capacity exceeded")
	// ErrNoSlotframe is returned when the slotframe handle is unknown
	ErrNoSlotframe = errors.New("no such slotframe")
	// ErrDuplicateSlotframe is returned when the handle is already in use
	ErrDuplicateSlotframe = errors.New("slotframe already exists")
	// ErrInvalidSlotframe is returned for slotframes with a zero length
	ErrInvalidSlotframe = errors.New("invalid slotframe length")
	// ErrInvalidCell is returned when the cell is outside the slotframe or has
	// no TX or RX option
	ErrInvalidCell = errors.New("invalid cell")
	// ErrUnknownSequence is returned for unknown hopping sequence names
	ErrUnknownSequence = errors.New("unknown hopping sequence")
)
