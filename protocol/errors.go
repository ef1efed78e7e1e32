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
import "errors"

var (
	// ErrBufferTruncated is returned when the buffer is too short to encode or decode
	ErrBufferTruncated = errors.New("buffer too short")
	// ErrNilError is returned when one or more parameter is nil
	ErrNilError = errors.New("parameter is nil")
	// ErrParameterOutOfRange is returned when one of the parameters are out of range
	ErrParameterOutOfRange = errors.New("parameter out of range")
	// ErrInvalidParameterFormat is returned when a supplied parameter is invalid
	ErrInvalidParameterFormat = errors.New("invalid parameter format")
	// ErrInvalidSource is returned when the input buffer contains corrupted data
	ErrInvalidSource = errors.New("source buffer is corrupted")
	// ErrInvalidFrameType is returned when the 802.15.4 frame type isn't supported
	ErrInvalidFrameType = errors.New("invalid frame type")
	// ErrInvalidFCS is returned when the frame check sequence doesn't match
	ErrInvalidFCS = errors.New("invalid frame check sequence")
	// ErrInvalidVersion is returned when the 6P version is unsupported. The
	// packet header is still decoded so an RC_ERR_VERSION response can be sent.
	ErrInvalidVersion = errors.New("unsupported 6P version")
	// ErrInvalidMessageType is returned when the 6P message type is reserved
	ErrInvalidMessageType = errors.New("invalid 6P message type")
	// ErrInvalidCode is returned for unknown 6P commands or return codes
	ErrInvalidCode = errors.New("invalid 6P code")
	// ErrInvalidBody is returned when a 6P body doesn't match the command
	ErrInvalidBody = errors.New("invalid 6P body")
)
