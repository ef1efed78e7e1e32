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
	"github.com/ExploratoryEngineering/tsch/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warning("Unable to marshal response: %v", err)
	}
}

// onlyGET returns false and writes an error for other methods
func onlyGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func addrFromPath(w http.ResponseWriter, r *http.Request) (protocol.LinkAddr, bool) {
	addr, err := protocol.LinkAddrFromString(pathParam(r, "addr"))
	if err != nil {
		http.Error(w, "Invalid link address", http.StatusBadRequest)
		return protocol.LinkAddr{}, false
	}
	return addr, true
}

func (h *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"node":      "/node",
		"stats":     "/stats",
		"schedule":  "/schedule",
		"neighbors": "/neighbors",
		"peers":     "/peers",
	})
}

func (h *Server) nodeHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, newNodeFromContext(h.context))
}

func (h *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if !onlyGET(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Slots interface{} `json:"slots"`
		SixP  interface{} `json:"sixp"`
		Links interface{} `json:"links"`
	}{
		Slots: h.context.Engine.Stats(),
		SixP:  h.context.SixP.Stats(),
		Links: h.context.Stats.Global(),
	})
}
