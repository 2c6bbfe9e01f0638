/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package supervisor

// Outcome classifies how one loop iteration ended.
// Outcome 表示一次循环迭代的结束方式。
type Outcome int

const (
	// OutcomeContinue means the loop goes on to the next iteration.
	OutcomeContinue Outcome = iota

	// OutcomeRestart means the periodic restart interval has elapsed.
	OutcomeRestart

	// OutcomeInterrupted means a cooperative interrupt was observed.
	OutcomeInterrupted

	// OutcomeCrashed means an unexpected failure ended the loop.
	OutcomeCrashed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeRestart:
		return "restart"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Result is what an iteration reports back to the loop.
type Result struct {
	Outcome Outcome
	Err     error

	// Stack is set when the failure was a recovered panic.
	Stack []byte
}
