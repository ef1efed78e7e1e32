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
import (
	"encoding/hex"
	"fmt"
	"strings"
)

// LinkAddr is an IEEE 802.15.4 extended (EUI-64) link layer address.
type LinkAddr struct {
	Octets [8]byte
}

// LinkAddrLength is the encoded length of an extended address
const LinkAddrLength = 8

// BroadcastAddr is the link layer broadcast address. Cells bound to this
// address are used for broadcast and enhanced beacon traffic.
var BroadcastAddr = LinkAddr{Octets: [8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}}

// NullAddr is the unset address
var NullAddr = LinkAddr{}

// String returns a string representation of the address (XX-XX-XX-XX...)
func (a LinkAddr) String() string {
	return fmt.Sprintf("%02x-%02x-%02x-%02x-%02x-%02x-%02x-%02x",
		a.Octets[0], a.Octets[1], a.Octets[2], a.Octets[3],
		a.Octets[4], a.Octets[5], a.Octets[6], a.Octets[7])
}

// IsBroadcast returns true for the broadcast address
func (a LinkAddr) IsBroadcast() bool {
	return a == BroadcastAddr
}

// IsNull returns true if the address is unset
func (a LinkAddr) IsNull() bool {
	return a == NullAddr
}

// LinkAddrFromString converts a string on the format "xx-xx-xx..." in hex to
// an address. Colons are accepted as separators as well.
func LinkAddrFromString(addrStr string) (LinkAddr, error) {
	clean := strings.Replace(strings.Replace(addrStr, "-", "", -1), ":", "", -1)
	tmpBuf, err := hex.DecodeString(strings.TrimSpace(clean))
	if err != nil {
		return LinkAddr{}, err
	}
	if len(tmpBuf) != LinkAddrLength {
		return LinkAddr{}, ErrInvalidParameterFormat
	}
	ret := LinkAddr{}
	copy(ret.Octets[:], tmpBuf)
	return ret, nil
}

// LinkAddrFromUint64 converts an uint64 value to an address.
func LinkAddrFromUint64(val uint64) LinkAddr {
	ret := LinkAddr{}
	for i := 7; i >= 0; i-- {
		ret.Octets[i] = byte(val & 0xFF)
		val >>= 8
	}
	return ret
}

// ToUint64 returns the address as an uint64 integer
func (a LinkAddr) ToUint64() uint64 {
	ret := uint64(0)
	for i := 0; i < 8; i++ {
		ret <<= 8
		ret += uint64(a.Octets[i])
	}
	return ret
}

// Addresses are sent over the air least significant octet first
func (a *LinkAddr) encode(buffer []byte, pos *int) error {
	if pos == nil {
		return ErrNilError
	}
	if len(buffer) < *pos+LinkAddrLength {
		return ErrBufferTruncated
	}
	for i := 0; i < LinkAddrLength; i++ {
		buffer[*pos+i] = a.Octets[LinkAddrLength-1-i]
	}
	*pos += LinkAddrLength
	return nil
}

func (a *LinkAddr) decode(buffer []byte, pos *int) error {
	if pos == nil {
		return ErrNilError
	}
	if len(buffer) < *pos+LinkAddrLength {
		return ErrBufferTruncated
	}
	for i := 0; i < LinkAddrLength; i++ {
		a.Octets[LinkAddrLength-1-i] = buffer[*pos+i]
	}
	*pos += LinkAddrLength
	return nil
}
