package restapi

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
	"net/http"
	"strconv"

	"github.com/ExploratoryEngineering/tsch/schedule"
)

func (h *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	frames := h.context.Table.Snapshot()
	ret := make([]apiSlotframe, 0, len(frames))
	for _, sf := range frames {
		ret = append(ret, newSlotframe(sf))
	}
	writeJSON(w, http.StatusOK, ret)
}

func (h *Server) slotframeHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	handle, err := strconv.ParseUint(pathParam(r, "handle"), 10, 16)
	if err != nil {
		http.Error(w, "Invalid slotframe handle", http.StatusBadRequest)
		return
	}
	sf, err := h.context.Table.Slotframe(uint16(handle))
	if err == schedule.ErrNoSlotframe {
		http.Error(w, "Slotframe not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Unable to read schedule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newSlotframe(sf))
}
