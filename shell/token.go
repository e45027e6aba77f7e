package shell

import "strings"

// TokenType identifies the kind of token produced by the lexer.
type TokenType int

const (
	TokenEOF     TokenType = iota
	TokenIllegal           // unterminated string

	TokenWord   // bare word
	TokenString // single-quoted string

	TokenAt        // @
	TokenEq        // =
	TokenSemicolon // ;
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenIllegal:   "ILLEGAL",
	TokenWord:      "WORD",
	TokenString:    "STRING",
	TokenAt:        "@",
	TokenEq:        "=",
	TokenSemicolon: ";",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Token is a single lexical unit produced by the lexer.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset in the input
}

// CommandKind identifies a shell command.
type CommandKind int

const (
	CmdPut CommandKind = iota + 1
	CmdSet
	CmdGet
	CmdDel
	CmdMatch
	CmdValues
	CmdExplain
	CmdCount
	CmdClear
	CmdRebuild
	CmdSave
	CmdLoad
	CmdMem
	CmdStats
	CmdHelp
	CmdExit
)

var commands = map[string]CommandKind{
	"PUT":     CmdPut,
	"SET":     CmdSet,
	"GET":     CmdGet,
	"DEL":     CmdDel,
	"DELETE":  CmdDel,
	"MATCH":   CmdMatch,
	"VALUES":  CmdValues,
	"EXPLAIN": CmdExplain,
	"COUNT":   CmdCount,
	"CLEAR":   CmdClear,
	"REBUILD": CmdRebuild,
	"SAVE":    CmdSave,
	"LOAD":    CmdLoad,
	"MEM":     CmdMem,
	"STATS":   CmdStats,
	"HELP":    CmdHelp,
	"EXIT":    CmdExit,
	"QUIT":    CmdExit,
}

// LookupCommand returns the command named by word, case-insensitively.
func LookupCommand(word string) (CommandKind, bool) {
	k, ok := commands[strings.ToUpper(word)]
	return k, ok
}
