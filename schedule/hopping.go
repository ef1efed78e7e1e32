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
import "github.com/ExploratoryEngineering/tsch/protocol"

// HoppingSequence is the list of 2.4 GHz channels (11-26) a network hops
// through
type HoppingSequence []uint8

// Predefined hopping sequences
var (
	Sequence16x16 = HoppingSequence{16, 17, 23, 18, 26, 15, 25, 22, 19, 11, 12, 13, 24, 14, 20, 21}
	Sequence4x4   = HoppingSequence{15, 25, 26, 20}
	Sequence2x2   = HoppingSequence{20, 25}
	Sequence1x1   = HoppingSequence{20}
)

// DefaultSequenceName is the sequence used when nothing is configured
const DefaultSequenceName = "4_4"

// SequenceByName returns the predefined sequence with the name "16_16",
// "4_4", "2_2" or "1_1".
func SequenceByName(name string) (HoppingSequence, error) {
	switch name {
	case "16_16":
		return Sequence16x16, nil
	case "4_4":
		return Sequence4x4, nil
	case "2_2":
		return Sequence2x2, nil
	case "1_1":
		return Sequence1x1, nil
	}
	return nil, ErrUnknownSequence
}

// Channel returns the radio channel for the ASN and channel offset:
// seq[(ASN + offset) mod len(seq)].
func (h HoppingSequence) Channel(asn protocol.ASN, channelOffset uint16) uint8 {
	if len(h) == 0 {
		return 0
	}
	idx := (uint64(asn) + uint64(channelOffset)) % uint64(len(h))
	return h[idx]
}
