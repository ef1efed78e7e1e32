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
import (
	"testing"

	"github.com/ExploratoryEngineering/tsch/protocol"
)

func TestHoppingSequence(t *testing.T) {
	seq, err := SequenceByName("4_4")
	if err != nil {
		t.Fatal(err)
	}
	expected := []uint8{15, 25, 26, 20, 15}
	for asn, ch := range expected {
		if c := seq.Channel(protocol.ASN(asn), 0); c != ch {
			t.Fatalf("ASN %d: channel %d, expected %d", asn, c, ch)
		}
	}
	if seq.Channel(1, 2) != 20 {
		t.Fatal("Channel offset not applied")
	}
	if _, err := SequenceByName("3_3"); err != ErrUnknownSequence {
		t.Fatal("Expected unknown sequence")
	}
	if len(Sequence16x16) != 16 {
		t.Fatal("16_16 must have 16 channels")
	}
	if (HoppingSequence{}).Channel(1, 1) != 0 {
		t.Fatal("Empty sequence should return 0")
	}
}

func TestLinkOptionsString(t *testing.T) {
	if s := MinimalOptions.String(); s != "TX|RX|SHARED|TK" {
		t.Fatalf("Got %s", s)
	}
	if s := LinkOptions(0).String(); s != "-" {
		t.Fatalf("Got %s", s)
	}
}
