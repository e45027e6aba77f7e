package shell

import (
	"fmt"
	"strconv"
)

// Command is one parsed shell command.
type Command struct {
	Kind CommandKind
	// Key is the full key of put, set, get and del.
	Key   []string
	Value string
	// SubKeys and Positions are the constraints of match, values, explain
	// and count. Positions[i] is -1 for a free sub-key.
	SubKeys   []string
	Positions []int
	// Path is the optional file argument of save and load.
	Path string
}

// parser is the internal recursive-descent parser. Use the exported Parse
// function as the public entry point.
type parser struct {
	lexer *Lexer
	cur   Token
}

// Parse parses a line of input into commands separated by semicolons.
// Empty commands are skipped.
func Parse(input string) ([]Command, error) {
	p := &parser{lexer: NewLexer(input)}
	p.next()

	var cmds []Command
	for p.cur.Type != TokenEOF {
		if p.cur.Type == TokenSemicolon {
			p.next()
			continue
		}
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
		if p.cur.Type != TokenSemicolon && p.cur.Type != TokenEOF {
			return nil, fmt.Errorf("unexpected %q after command at position %d",
				p.cur.Literal, p.cur.Pos)
		}
	}
	return cmds, nil
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func (p *parser) next() {
	p.cur = p.lexer.NextToken()
}

func (p *parser) unexpected() error {
	switch p.cur.Type {
	case TokenEOF:
		return fmt.Errorf("unexpected end of input")
	case TokenIllegal:
		return fmt.Errorf("unterminated string at position %d", p.cur.Pos)
	}
	return fmt.Errorf("unexpected %q at position %d", p.cur.Literal, p.cur.Pos)
}

// atElement reports whether the current token can be a key element.
func (p *parser) atElement() bool {
	return p.cur.Type == TokenWord || p.cur.Type == TokenString
}

// parseElements reads one or more key elements.
func (p *parser) parseElements() ([]string, error) {
	if !p.atElement() {
		return nil, p.unexpected()
	}
	var elems []string
	for p.atElement() {
		elems = append(elems, p.cur.Literal)
		p.next()
	}
	return elems, nil
}

// parseConstraints reads one or more sub-keys, each optionally pinned with
// @position. With optional set, zero constraints are allowed.
func (p *parser) parseConstraints(optional bool) ([]string, []int, error) {
	if !optional && !p.atElement() {
		return nil, nil, p.unexpected()
	}
	var subKeys []string
	var positions []int
	for p.atElement() {
		subKeys = append(subKeys, p.cur.Literal)
		p.next()
		pos := -1
		if p.cur.Type == TokenAt {
			p.next()
			if p.cur.Type != TokenWord {
				return nil, nil, p.unexpected()
			}
			n, err := strconv.Atoi(p.cur.Literal)
			if err != nil || n < 0 {
				return nil, nil, fmt.Errorf("invalid position %q at position %d", p.cur.Literal, p.cur.Pos)
			}
			pos = n
			p.next()
		}
		positions = append(positions, pos)
	}
	return subKeys, positions, nil
}

// -------------------------------------------------------------------------
// Command parsing
// -------------------------------------------------------------------------

func (p *parser) parseCommand() (Command, error) {
	if p.cur.Type != TokenWord {
		return Command{}, p.unexpected()
	}
	kind, ok := LookupCommand(p.cur.Literal)
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", p.cur.Literal)
	}
	p.next()
	cmd := Command{Kind: kind}

	switch kind {
	case CmdPut, CmdSet:
		key, err := p.parseElements()
		if err != nil {
			return Command{}, err
		}
		if p.cur.Type != TokenEq {
			return Command{}, fmt.Errorf("expected = before value, got %q at position %d", p.cur.Literal, p.cur.Pos)
		}
		p.next()
		if !p.atElement() {
			return Command{}, p.unexpected()
		}
		cmd.Key, cmd.Value = key, p.cur.Literal
		p.next()

	case CmdGet, CmdDel:
		key, err := p.parseElements()
		if err != nil {
			return Command{}, err
		}
		cmd.Key = key

	case CmdMatch, CmdValues, CmdExplain, CmdCount:
		subKeys, positions, err := p.parseConstraints(kind == CmdCount)
		if err != nil {
			return Command{}, err
		}
		cmd.SubKeys, cmd.Positions = subKeys, positions

	case CmdSave, CmdLoad:
		if p.atElement() {
			cmd.Path = p.cur.Literal
			p.next()
		}
	}
	return cmd, nil
}
