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

// promptd is an MCP prompt management server.
//
// Usage:
//
//	promptd serve --port 8080 --storage file
//	promptd stdio
//
// MCP client configuration for the stdio mode:
//
//	{
//	  "mcpServers": {
//	    "prompts": {
//	      "command": "/path/to/promptd",
//	      "args": ["stdio", "--storage", "sqlite"]
//	    }
//	  }
//	}
package main

func main() {
	Execute()
}
