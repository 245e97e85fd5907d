// Copyright 2026 The go-classictag Authors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package classictag

import (
	"fmt"
	"io"
	"os"
)

// debugEnabled controls whether debug logging is active.
// It can be toggled via the environment or SetDebugEnabled.
var debugEnabled = false

// debugSink receives debug output. Defaults to stderr.
var debugSink io.Writer = os.Stderr

func init() {
	if os.Getenv("CLASSICTAG_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf prints debug information when debug mode is enabled.
func Debugf(format string, args ...any) {
	if debugEnabled {
		_, _ = fmt.Fprintf(debugSink, "DEBUG: "+format+"\n", args...)
	}
}

// Debugln prints debug information when debug mode is enabled.
func Debugln(args ...any) {
	if debugEnabled {
		_, _ = fmt.Fprint(debugSink, "DEBUG: ")
		_, _ = fmt.Fprintln(debugSink, args...)
	}
}

// SetDebugEnabled allows programmatic control of debug logging.
// Useful for testing or application-controlled debug modes.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// SetDebugOutput redirects debug output to the given sink.
// Passing nil restores the default of stderr.
func SetDebugOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	debugSink = w
}
