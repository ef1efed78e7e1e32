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
	"encoding/json"
	"net/http"

	"github.com/ExploratoryEngineering/tsch/logging"
	"github.com/ExploratoryEngineering/tsch/sixp"
)

func (h *Server) neighborListHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, newNeighborList(h.context))
}

func (h *Server) neighborHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	addr, ok := addrFromPath(w, r)
	if !ok {
		return
	}
	ret := apiNeighbor{Address: addr.String()}
	found := false
	if n := h.context.Queue.Neighbor(addr); n != nil {
		ret.Queued = n.Len()
		ret.TxLinks = n.TxLinks()
		found = true
	}
	if channels, ok := h.context.Stats.Neighbor(addr); ok {
		ret.Channels = channels
		found = true
	}
	if !found {
		http.Error(w, "Neighbor not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (h *Server) peerListHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, newPeerList(h.context.SixP))
}

func (h *Server) peerHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	addr, ok := addrFromPath(w, r)
	if !ok {
		return
	}
	for _, p := range newPeerList(h.context.SixP) {
		if p.Address == addr.String() {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	http.Error(w, "Peer not found", http.StatusNotFound)
}

// peerRequestHandler starts a 6P transaction with the peer. The response
// is sent when the request is queued; the outcome is published as an
// event.
func (h *Server) peerRequestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	addr, ok := addrFromPath(w, r)
	if !ok {
		return
	}
	if addr.IsBroadcast() || addr == h.context.Address {
		http.Error(w, "6P transactions need a unicast peer", http.StatusBadRequest)
		return
	}
	var body apiRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Malformed request body", http.StatusBadRequest)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.SFID = uint8(h.context.Config.SixPSFID)

	switch err := h.context.SixP.Submit(r.Context(), addr, req); err {
	case nil:
		logging.Info("%s request to %s submitted through the API", req.Command, addr)
		writeJSON(w, http.StatusAccepted, apiPeer{
			Address: addr.String(),
			State:   h.context.SixP.State(addr).String(),
		})
	case sixp.ErrBusy:
		http.Error(w, err.Error(), http.StatusConflict)
	case sixp.ErrPeerTable:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case sixp.ErrUnknownSF, sixp.ErrInvalidRequest:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logging.Warning("Unable to submit 6P request to %s: %v", addr, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
