// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prompts

import (
	"encoding/base64"
	"strings"
)

const cursorPrefix = "after:"

// EncodeCursor turns the last id of a page into an opaque list cursor.
func EncodeCursor(lastID string) string {
	if lastID == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + lastID))
}

// DecodeCursor returns the id a cursor resumes after. The empty cursor
// decodes to the empty id, meaning the first page.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", NewError(KindValidationFailed, "", "cursor: malformed")
	}
	after, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok || after == "" {
		return "", NewError(KindValidationFailed, "", "cursor: malformed")
	}
	return after, nil
}
