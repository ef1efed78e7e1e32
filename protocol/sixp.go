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
	"encoding/binary"
	"fmt"
)

//
// 6top protocol (6P) messages, RFC 8480. The header is
//
//   byte 0: version (bits 0-3) | type (bits 4-5) | GEN (bits 6-7)
//   byte 1: code (command for requests, return code otherwise)
//   byte 2: SFID
//   byte 3: SeqNum
//
// followed by a body that depends on the command. All multi-byte fields are
// little endian. The two reserved header bits carry the schedule generation
// counter.
//

// SixPVersion is the only 6P version supported
const SixPVersion = 0

// SixPHeaderLength is the length of the 6P header
const SixPHeaderLength = 4

// SixPCellLength is the length of one encoded cell
const SixPCellLength = 4

// SixPType is the 6P message type [3.2.1]
type SixPType uint8

// 6P message types
const (
	SixPRequest      = SixPType(0)
	SixPResponse     = SixPType(1)
	SixPConfirmation = SixPType(2)
	sixpTypeReserved = SixPType(3)
)

// String returns the name of the type
func (t SixPType) String() string {
	switch t {
	case SixPRequest:
		return "Request"
	case SixPResponse:
		return "Response"
	case SixPConfirmation:
		return "Confirmation"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// SixPCommand is the command identifier carried in requests [3.2.2]
type SixPCommand uint8

// 6P commands
const (
	CmdAdd      = SixPCommand(1)
	CmdDelete   = SixPCommand(2)
	CmdRelocate = SixPCommand(3)
	CmdCount    = SixPCommand(4)
	CmdList     = SixPCommand(5)
	CmdSignal   = SixPCommand(6)
	CmdClear    = SixPCommand(7)
)

// IsValid returns true for a known command
func (c SixPCommand) IsValid() bool {
	return c >= CmdAdd && c <= CmdClear
}

// String returns the command name
func (c SixPCommand) String() string {
	switch c {
	case CmdAdd:
		return "ADD"
	case CmdDelete:
		return "DELETE"
	case CmdRelocate:
		return "RELOCATE"
	case CmdCount:
		return "COUNT"
	case CmdList:
		return "LIST"
	case CmdSignal:
		return "SIGNAL"
	case CmdClear:
		return "CLEAR"
	default:
		return fmt.Sprintf("CMD(%d)", uint8(c))
	}
}

// SixPReturnCode is the return code carried in responses and confirmations
// [3.2.4]
type SixPReturnCode uint8

// 6P return codes
const (
	RCSuccess     = SixPReturnCode(0)
	RCEOL         = SixPReturnCode(1)
	RCErr         = SixPReturnCode(2)
	RCReset       = SixPReturnCode(3)
	RCErrVersion  = SixPReturnCode(4)
	RCErrSFID     = SixPReturnCode(5)
	RCErrSeqNum   = SixPReturnCode(6)
	RCErrCellList = SixPReturnCode(7)
	RCErrBusy     = SixPReturnCode(8)
	RCErrLocked   = SixPReturnCode(9)
)

// IsValid returns true for a known return code
func (r SixPReturnCode) IsValid() bool {
	return r <= RCErrLocked
}

// IsSuccess returns true for the codes that carry a result (SUCCESS and EOL)
func (r SixPReturnCode) IsSuccess() bool {
	return r == RCSuccess || r == RCEOL
}

// String returns the return code name
func (r SixPReturnCode) String() string {
	names := []string{"RC_SUCCESS", "RC_EOL", "RC_ERR", "RC_RESET", "RC_ERR_VERSION",
		"RC_ERR_SFID", "RC_ERR_SEQNUM", "RC_ERR_CELLLIST", "RC_ERR_BUSY", "RC_ERR_LOCKED"}
	if int(r) < len(names) {
		return names[r]
	}
	return fmt.Sprintf("RC(%d)", uint8(r))
}

// CellOptions is the 6P cell options bitmap [3.2.3]
type CellOptions uint8

// Cell options
const (
	CellOptionTX     = CellOptions(0x01)
	CellOptionRX     = CellOptions(0x02)
	CellOptionShared = CellOptions(0x04)
)

// SixPCell is one cell in a 6P cell list
type SixPCell struct {
	SlotOffset    uint16
	ChannelOffset uint16
}

func (c *SixPCell) encode(buffer []byte, pos *int) error {
	if len(buffer) < *pos+SixPCellLength {
		return ErrBufferTruncated
	}
	binary.LittleEndian.PutUint16(buffer[*pos:], c.SlotOffset)
	binary.LittleEndian.PutUint16(buffer[*pos+2:], c.ChannelOffset)
	*pos += SixPCellLength
	return nil
}

func (c *SixPCell) decode(buffer []byte, pos *int) error {
	if len(buffer) < *pos+SixPCellLength {
		return ErrBufferTruncated
	}
	c.SlotOffset = binary.LittleEndian.Uint16(buffer[*pos:])
	c.ChannelOffset = binary.LittleEndian.Uint16(buffer[*pos+2:])
	*pos += SixPCellLength
	return nil
}

func encodeCellList(cells []SixPCell, buffer []byte, pos *int) error {
	for i := range cells {
		if err := cells[i].encode(buffer, pos); err != nil {
			return err
		}
	}
	return nil
}

func decodeCellList(buffer []byte, pos *int, end int) ([]SixPCell, error) {
	if (end-*pos)%SixPCellLength != 0 {
		return nil, ErrInvalidBody
	}
	var ret []SixPCell
	for *pos < end {
		c := SixPCell{}
		if err := c.decode(buffer[:end], pos); err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, nil
}

// SixPBody holds the decoded fields of a 6P body. Which fields are in use
// depends on the command and message type.
type SixPBody struct {
	Metadata       uint16
	CellOptions    CellOptions
	NumCells       uint8
	CellList       []SixPCell // Candidate list for ADD, cells for DELETE, responses
	RelocationList []SixPCell // RELOCATE only
	Offset         uint16     // LIST request
	MaxNumCells    uint16     // LIST request
	TotalNumCells  uint16     // COUNT response
	Payload        []byte     // SIGNAL
}

// SixPMessage is a 6P message
type SixPMessage struct {
	Version uint8
	Type    SixPType
	Gen     uint8 // schedule generation, 2 bits
	Code    uint8
	SFID    uint8
	SeqNum  uint8
	Body    SixPBody // Decoded body for requests
	Payload []byte   // Raw body. Responses are decoded with ResponseBody
}

// Command returns the command for a request
func (m *SixPMessage) Command() SixPCommand {
	return SixPCommand(m.Code)
}

// ReturnCode returns the return code for responses and confirmations
func (m *SixPMessage) ReturnCode() SixPReturnCode {
	return SixPReturnCode(m.Code)
}

// NewSixPRequest creates a new request
func NewSixPRequest(cmd SixPCommand, sfid uint8, seqNum uint8, body SixPBody) SixPMessage {
	return SixPMessage{
		Version: SixPVersion,
		Type:    SixPRequest,
		Code:    uint8(cmd),
		SFID:    sfid,
		SeqNum:  seqNum,
		Body:    body,
	}
}

// NewSixPResponse creates a response (or confirmation) for the given
// command. Bodies are only included for RC_SUCCESS and RC_EOL.
func NewSixPResponse(msgType SixPType, cmd SixPCommand, rc SixPReturnCode, sfid uint8, seqNum uint8, body SixPBody) (SixPMessage, error) {
	ret := SixPMessage{
		Version: SixPVersion,
		Type:    msgType,
		Code:    uint8(rc),
		SFID:    sfid,
		SeqNum:  seqNum,
		Body:    body,
	}
	if !rc.IsSuccess() {
		return ret, nil
	}
	payload, err := encodeResponseBody(cmd, &body)
	if err != nil {
		return SixPMessage{}, err
	}
	ret.Payload = payload
	return ret, nil
}

func requestBodyLength(cmd SixPCommand, b *SixPBody) (int, error) {
	switch cmd {
	case CmdAdd, CmdDelete:
		return 4 + len(b.CellList)*SixPCellLength, nil
	case CmdRelocate:
		return 4 + (len(b.RelocationList)+len(b.CellList))*SixPCellLength, nil
	case CmdCount:
		return 3, nil
	case CmdList:
		return 8, nil
	case CmdClear:
		return 2, nil
	case CmdSignal:
		return 2 + len(b.Payload), nil
	}
	return 0, ErrInvalidCode
}

func encodeRequestBody(cmd SixPCommand, b *SixPBody, buffer []byte, pos *int) error {
	if len(buffer) < *pos+2 {
		return ErrBufferTruncated
	}
	binary.LittleEndian.PutUint16(buffer[*pos:], b.Metadata)
	*pos += 2
	switch cmd {
	case CmdClear:
		return nil
	case CmdSignal:
		*pos += copy(buffer[*pos:], b.Payload)
		return nil
	}
	buffer[*pos] = byte(b.CellOptions)
	*pos++
	switch cmd {
	case CmdCount:
		return nil
	case CmdList:
		buffer[*pos] = 0 // reserved
		*pos++
		binary.LittleEndian.PutUint16(buffer[*pos:], b.Offset)
		binary.LittleEndian.PutUint16(buffer[*pos+2:], b.MaxNumCells)
		*pos += 4
		return nil
	case CmdRelocate:
		if int(b.NumCells) != len(b.RelocationList) {
			return ErrParameterOutOfRange
		}
		buffer[*pos] = b.NumCells
		*pos++
		if err := encodeCellList(b.RelocationList, buffer, pos); err != nil {
			return err
		}
		return encodeCellList(b.CellList, buffer, pos)
	default:
		if int(b.NumCells) > len(b.CellList) && cmd == CmdAdd {
			return ErrParameterOutOfRange
		}
		buffer[*pos] = b.NumCells
		*pos++
		return encodeCellList(b.CellList, buffer, pos)
	}
}

func decodeRequestBody(cmd SixPCommand, buffer []byte) (SixPBody, error) {
	b := SixPBody{}
	pos := 0
	expected := map[SixPCommand]int{CmdCount: 3, CmdList: 8, CmdClear: 2}
	if l, ok := expected[cmd]; ok && len(buffer) != l {
		return b, ErrInvalidBody
	}
	if len(buffer) < 2 {
		return b, ErrInvalidBody
	}
	b.Metadata = binary.LittleEndian.Uint16(buffer[pos:])
	pos += 2
	switch cmd {
	case CmdClear:
		return b, nil
	case CmdSignal:
		b.Payload = append([]byte{}, buffer[pos:]...)
		return b, nil
	}
	if len(buffer) < 3 {
		return b, ErrInvalidBody
	}
	b.CellOptions = CellOptions(buffer[pos])
	pos++
	switch cmd {
	case CmdCount:
		return b, nil
	case CmdList:
		pos++ // reserved
		b.Offset = binary.LittleEndian.Uint16(buffer[pos:])
		b.MaxNumCells = binary.LittleEndian.Uint16(buffer[pos+2:])
		return b, nil
	}
	if len(buffer) < 4 {
		return b, ErrInvalidBody
	}
	b.NumCells = buffer[pos]
	pos++
	var err error
	if cmd == CmdRelocate {
		end := pos + int(b.NumCells)*SixPCellLength
		if end > len(buffer) {
			return b, ErrInvalidBody
		}
		if b.RelocationList, err = decodeCellList(buffer, &pos, end); err != nil {
			return b, err
		}
	}
	if b.CellList, err = decodeCellList(buffer, &pos, len(buffer)); err != nil {
		return b, err
	}
	if cmd == CmdAdd && int(b.NumCells) > len(b.CellList) {
		return b, ErrInvalidBody
	}
	if cmd == CmdRelocate && int(b.NumCells) > len(b.CellList) {
		return b, ErrInvalidBody
	}
	return b, nil
}

func encodeResponseBody(cmd SixPCommand, b *SixPBody) ([]byte, error) {
	switch cmd {
	case CmdAdd, CmdDelete, CmdRelocate, CmdList:
		buf := make([]byte, len(b.CellList)*SixPCellLength)
		pos := 0
		if err := encodeCellList(b.CellList, buf, &pos); err != nil {
			return nil, err
		}
		return buf, nil
	case CmdCount:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, b.TotalNumCells)
		return buf, nil
	case CmdClear:
		return []byte{}, nil
	case CmdSignal:
		return append([]byte{}, b.Payload...), nil
	}
	return nil, ErrInvalidCode
}

// ResponseBody decodes the body of a response or confirmation. The command
// is taken from the transaction the response belongs to.
func (m *SixPMessage) ResponseBody(cmd SixPCommand) (SixPBody, error) {
	b := SixPBody{}
	if !m.ReturnCode().IsSuccess() {
		return b, nil
	}
	switch cmd {
	case CmdAdd, CmdDelete, CmdRelocate, CmdList:
		pos := 0
		var err error
		b.CellList, err = decodeCellList(m.Payload, &pos, len(m.Payload))
		return b, err
	case CmdCount:
		if len(m.Payload) != 2 {
			return b, ErrInvalidBody
		}
		b.TotalNumCells = binary.LittleEndian.Uint16(m.Payload)
		return b, nil
	case CmdClear:
		if len(m.Payload) != 0 {
			return b, ErrInvalidBody
		}
		return b, nil
	case CmdSignal:
		b.Payload = append([]byte{}, m.Payload...)
		return b, nil
	}
	return b, ErrInvalidCode
}

// MarshalBinary encodes the message
func (m *SixPMessage) MarshalBinary() ([]byte, error) {
	if m.Type >= sixpTypeReserved {
		return nil, ErrInvalidMessageType
	}
	if m.Version > 0x0f || m.Gen > 0x03 {
		return nil, ErrParameterOutOfRange
	}
	bodyLen := len(m.Payload)
	if m.Type == SixPRequest {
		var err error
		if bodyLen, err = requestBodyLength(m.Command(), &m.Body); err != nil {
			return nil, err
		}
	} else if !m.ReturnCode().IsValid() {
		return nil, ErrInvalidCode
	}
	buffer := make([]byte, SixPHeaderLength+bodyLen)
	buffer[0] = m.Version | byte(m.Type)<<4 | m.Gen<<6
	buffer[1] = m.Code
	buffer[2] = m.SFID
	buffer[3] = m.SeqNum
	pos := SixPHeaderLength
	if m.Type == SixPRequest {
		if err := encodeRequestBody(m.Command(), &m.Body, buffer, &pos); err != nil {
			return nil, err
		}
		return buffer[:pos], nil
	}
	copy(buffer[pos:], m.Payload)
	return buffer, nil
}

// UnmarshalBinary decodes a 6P message. The header fields are populated even
// when ErrInvalidVersion is returned.
func (m *SixPMessage) UnmarshalBinary(data []byte) error {
	if len(data) < SixPHeaderLength {
		return ErrBufferTruncated
	}
	m.Version = data[0] & 0x0f
	m.Type = SixPType((data[0] >> 4) & 0x03)
	m.Gen = data[0] >> 6
	m.Code = data[1]
	m.SFID = data[2]
	m.SeqNum = data[3]
	m.Payload = append([]byte{}, data[SixPHeaderLength:]...)
	m.Body = SixPBody{}
	if m.Version != SixPVersion {
		return ErrInvalidVersion
	}
	switch m.Type {
	case SixPRequest:
		if !m.Command().IsValid() {
			return ErrInvalidCode
		}
		body, err := decodeRequestBody(m.Command(), m.Payload)
		if err != nil {
			return err
		}
		m.Body = body
	case SixPResponse, SixPConfirmation:
		if !m.ReturnCode().IsValid() {
			return ErrInvalidCode
		}
	default:
		return ErrInvalidMessageType
	}
	return nil
}

// String returns a short description of the message for logs
func (m SixPMessage) String() string {
	if m.Type == SixPRequest {
		return fmt.Sprintf("6P %s %s sfid=%d seq=%d gen=%d", m.Type, m.Command(), m.SFID, m.SeqNum, m.Gen)
	}
	return fmt.Sprintf("6P %s %s sfid=%d seq=%d gen=%d", m.Type, m.ReturnCode(), m.SFID, m.SeqNum, m.Gen)
}
