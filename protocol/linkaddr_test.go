package protocol

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
import "testing"

func TestLinkAddrFromString(t *testing.T) {
	addrStr := "01-02-03-04-05-06-07-08"

	addr, err := LinkAddrFromString(addrStr)
	if err != nil {
		t.Error("Couldn't create address from string")
	}

	if addr.String() != addrStr {
		t.Error("Did not get the expected address string")
	}

	colon, err := LinkAddrFromString("01:02:03:04:05:06:07:08")
	if err != nil || colon != addr {
		t.Errorf("Colon separated address did not parse (%v)", err)
	}
}

func TestLinkAddrFromInvalidString(t *testing.T) {
	_, err := LinkAddrFromString("")
	if err == nil {
		t.Error("Expected error on empty string")
	}

	_, err = LinkAddrFromString("foof")
	if err == nil {
		t.Error("Expected error on invalid string")
	}

	_, err = LinkAddrFromString("01-02-03-04")
	if err == nil {
		t.Error("Expected error on too short string")
	}

	_, err = LinkAddrFromString("01-02-03-04-05-06-07-08-01-02-03-04-05-06-07-08")
	if err == nil {
		t.Error("Expected error on too long string")
	}
}

func TestLinkAddrToFromUint64(t *testing.T) {
	a1, _ := LinkAddrFromString("01-02-03-04-05-06-07-08")
	a2 := LinkAddrFromUint64(0x0102030405060708)
	if a1 != a2 {
		t.Fatal("Not what I'd expect")
	}
	a3 := LinkAddrFromUint64(a2.ToUint64())
	if a2 != a3 {
		t.Fatalf("Not what I'd expect (%+v != %+v)", a2, a3)
	}
	if !BroadcastAddr.IsBroadcast() || a1.IsBroadcast() {
		t.Fatal("Broadcast check is wrong")
	}
}

func TestLinkAddrWireOrder(t *testing.T) {
	addr := LinkAddrFromUint64(0x0102030405060708)
	buf := make([]byte, 8)
	pos := 0
	if err := addr.encode(buf, &pos); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0x08 || buf[7] != 0x01 {
		t.Fatalf("Address should be sent LSB first: %v", buf)
	}
	var decoded LinkAddr
	pos = 0
	if err := decoded.decode(buf, &pos); err != nil || decoded != addr {
		t.Fatalf("Decode mismatch: %v / %v", decoded, err)
	}
	pos = 1
	if err := decoded.decode(buf, &pos); err != ErrBufferTruncated {
		t.Fatalf("Expected truncated buffer error, got %v", err)
	}
}
