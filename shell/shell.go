// Package shell implements the command language of the interactive
// multikey shell: a line is lexed, parsed into commands, and each command
// is executed against a storage.Map[string, string].
package shell

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"multikey/storage"
)

// ErrExit is returned by Exec when the input asked to leave the shell.
var ErrExit = errors.New("exit")

// Options configures a Shell.
type Options struct {
	// SnapshotPath is used by save and load when no path is given.
	SnapshotPath string
	Logger       *slog.Logger
}

// Shell executes commands against a map and writes results to out.
type Shell struct {
	m    *storage.Map[string, string]
	out  io.Writer
	opts Options
	log  *slog.Logger
}

// New creates a shell over m.
func New(m *storage.Map[string, string], out io.Writer, opts Options) *Shell {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Shell{m: m, out: out, opts: opts, log: log}
}

// Exec parses and runs one line of input. Commands run in order and stop
// at the first error. A command failing against the map is reported on out
// and does not abort the line; parse errors and I/O errors are returned.
func (s *Shell) Exec(line string) error {
	cmds, err := Parse(line)
	if err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := s.run(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) run(cmd Command) error {
	switch cmd.Kind {
	case CmdPut:
		if err := s.m.Put(cmd.Key, cmd.Value); err != nil {
			s.printf("error: %v\n", err)
			return nil
		}
		s.printf("OK\n")

	case CmdSet:
		if err := s.m.Set(cmd.Key, cmd.Value); err != nil {
			s.printf("error: %v\n", err)
			return nil
		}
		s.printf("OK\n")

	case CmdGet:
		if v, ok := s.m.Get(cmd.Key); ok {
			s.printf("%s\n", Quote(v))
		} else {
			s.printf("(not found)\n")
		}

	case CmdDel:
		if s.m.Remove(cmd.Key) {
			s.printf("deleted\n")
		} else {
			s.printf("(not found)\n")
		}

	case CmdMatch:
		entries, ok, err := s.m.EntriesByPartialKey(cmd.SubKeys, cmd.Positions)
		if err != nil {
			s.printf("error: %v\n", err)
			return nil
		}
		if !ok {
			s.printf("(no match)\n")
			return nil
		}
		for _, e := range entries {
			s.printf("%s = %s\n", FormatKey(e.Key), Quote(e.Value))
		}
		s.printf("(%d %s)\n", len(entries), plural(len(entries), "key", "keys"))

	case CmdValues:
		values, ok, err := s.m.ValuesByPartialKey(cmd.SubKeys, cmd.Positions)
		if err != nil {
			s.printf("error: %v\n", err)
			return nil
		}
		if !ok {
			s.printf("(no match)\n")
			return nil
		}
		for _, v := range values {
			s.printf("%s\n", Quote(v))
		}

	case CmdCount:
		if len(cmd.SubKeys) == 0 {
			s.printf("%d\n", s.m.Len())
			return nil
		}
		keys, _, err := s.m.FullKeysByPartialKey(cmd.SubKeys, cmd.Positions)
		if err != nil {
			s.printf("error: %v\n", err)
			return nil
		}
		s.printf("%d\n", len(keys))

	case CmdExplain:
		tr, err := s.m.Explain(cmd.SubKeys, cmd.Positions)
		if err != nil {
			s.printf("error: %v\n", err)
			return nil
		}
		s.printf("%s", tr)

	case CmdClear:
		s.m.Clear()
		s.printf("OK\n")

	case CmdRebuild:
		s.m.RebuildIndices()
		s.printf("OK (%d buckets)\n", s.m.Stats().Buckets)

	case CmdSave:
		path, err := s.path(cmd)
		if err != nil {
			return err
		}
		if err := storage.SaveSnapshotFile(path, s.m); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		s.log.Info("saved snapshot", "path", path, "entries", s.m.Len())
		s.printf("saved %d entries to %s\n", s.m.Len(), path)

	case CmdLoad:
		path, err := s.path(cmd)
		if err != nil {
			return err
		}
		if err := storage.LoadSnapshotFile(path, s.m); err != nil {
			return err
		}
		s.printf("loaded %d entries from %s\n", s.m.Len(), path)

	case CmdMem:
		u := s.m.MemoryUsage()
		s.printf("entries  %d\n", u.Entries)
		s.printf("store    %s\n", storage.HumanBytes(u.StoreBytes))
		s.printf("index    %s (%d buckets, %d masks)\n", storage.HumanBytes(u.IndexBytes), u.Index.Buckets, u.Index.Masks)
		s.printf("total    %s\n", storage.HumanBytes(u.Total()))

	case CmdStats:
		st := s.m.Stats()
		s.printf("variant   %s\n", s.m.Variant())
		s.printf("entries   %d\n", s.m.Len())
		s.printf("sub-keys  %d\n", st.SubKeys)
		s.printf("buckets   %d\n", st.Buckets)
		s.printf("masks     %d\n", st.Masks)
		s.printf("postings  %d\n", st.Postings)

	case CmdHelp:
		s.printf("%s", helpText)

	case CmdExit:
		return ErrExit

	default:
		return fmt.Errorf("unhandled command %d", cmd.Kind)
	}
	return nil
}

func (s *Shell) path(cmd Command) (string, error) {
	if cmd.Path != "" {
		return cmd.Path, nil
	}
	if s.opts.SnapshotPath != "" {
		return s.opts.SnapshotPath, nil
	}
	return "", errors.New("no snapshot path given and none configured")
}

// FormatKey renders a key in input syntax.
func FormatKey(key []string) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = Quote(k)
	}
	return strings.Join(parts, " ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

const helpText = `Commands:
  put K... = V        insert a key; fails if it exists
  set K... = V        insert or replace a key
  get K...            print the value of a key
  del K...            remove a key
  match S[@P]...      print entries containing every sub-key S
                      (at position P if given)
  values S[@P]...     print only the values of matching entries
  count [S[@P]...]    count matching entries, or all entries
  explain S[@P]...    show how a query is resolved
  clear               remove every entry
  rebuild             rebuild the index from the stored entries
  save [FILE]         write a snapshot
  load [FILE]         replace the contents with a snapshot
  mem                 estimate memory usage
  stats               show index statistics
  help                show this text
  exit                leave the shell

Elements are bare words or 'quoted strings'; '' inside quotes is a quote.
Separate commands with ';'. '#' starts a comment.
`
