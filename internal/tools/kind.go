// Package tools provides the closed tool set exposed to agents and its dispatcher.
package tools

import (
	"fmt"
	"strings"
)

// Kind identifies a tool in the closed tool set.
type Kind int

const (
	KindUnknown Kind = iota
	KindListDir
	KindSeeFile
	KindReplaceCode
	KindInsertCode
	KindCreateFile
	KindSemanticQuery
	KindAskHuman
	KindFinal // agent-specific terminal signal
)

var kindNames = map[Kind]string{
	KindListDir:       "list_dir",
	KindSeeFile:       "see_file",
	KindReplaceCode:   "replace_code",
	KindInsertCode:    "insert_code",
	KindCreateFile:    "create_file",
	KindSemanticQuery: "semantic_query",
	KindAskHuman:      "ask_human",
	KindFinal:         "final_response",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsEdit reports whether the tool mutates an existing file.
func (k Kind) IsEdit() bool {
	return k == KindReplaceCode || k == KindInsertCode
}

// NotExecuted prefixes the content of any tool call that did not mutate state.
const NotExecuted = "Tool not executed: "

// IsNotExecuted reports whether tool output carries the not-executed marker.
func IsNotExecuted(content string) bool {
	return strings.HasPrefix(content, NotExecuted)
}

func notExecuted(format string, args ...interface{}) string {
	return NotExecuted + fmt.Sprintf(format, args...)
}

// ProtocolError reports a tool call the dispatcher cannot honor.
type ProtocolError struct {
	Tool   string
	CallID string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: tool %q (call %s): %s", e.Tool, e.CallID, e.Reason)
}
