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
import "fmt"

// ASN is the absolute slot number, the number of timeslots elapsed since the
// network was started. It is a 40-bit counter on the air.
type ASN uint64

// ASNLength is the encoded length of an ASN
const ASNLength = 5

// MaxASN is the largest value that fits in the 40-bit field
const MaxASN = ASN(1)<<40 - 1

// Mod returns the ASN modulo n. It's used to find the timeslot within a
// slotframe and the index into the hopping sequence.
func (a ASN) Mod(n uint16) uint16 {
	if n == 0 {
		return 0
	}
	return uint16(uint64(a) % uint64(n))
}

// Diff returns the signed slot distance a - b
func (a ASN) Diff(b ASN) int64 {
	return int64(a) - int64(b)
}

// String returns the ASN in the "msb.lsb" format used by the slot logs
func (a ASN) String() string {
	return fmt.Sprintf("%02x.%08x", uint8(a>>32), uint32(a))
}

func (a *ASN) encode(buffer []byte, pos *int) error {
	if pos == nil {
		return ErrNilError
	}
	if len(buffer) < *pos+ASNLength {
		return ErrBufferTruncated
	}
	if *a > MaxASN {
		return ErrParameterOutOfRange
	}
	v := uint64(*a)
	for i := 0; i < ASNLength; i++ {
		buffer[*pos+i] = byte(v >> (8 * uint(i)))
	}
	*pos += ASNLength
	return nil
}

func (a *ASN) decode(buffer []byte, pos *int) error {
	if pos == nil {
		return ErrNilError
	}
	if len(buffer) < *pos+ASNLength {
		return ErrBufferTruncated
	}
	v := uint64(0)
	for i := 0; i < ASNLength; i++ {
		v |= uint64(buffer[*pos+i]) << (8 * uint(i))
	}
	*a = ASN(v)
	*pos += ASNLength
	return nil
}
