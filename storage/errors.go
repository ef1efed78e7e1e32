package storage

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
	// ErrNotFound is returned when the item doesn't exist in the backend
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique constraint is violated
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidData is returned when stored data can't be converted back
	ErrInvalidData = errors.New("invalid stored data")
)
