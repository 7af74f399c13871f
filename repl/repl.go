// The searchsync console drives syncs interactively against the embedded
// index: load a definitions file, sync single tables, check checkpoints
// and store stats, or reset a pair for re-bootstrap.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ergochat/readline"

	"github.com/Hobby-Box/api-search-sync/bulkindex"
	"github.com/Hobby-Box/api-search-sync/checkpoint"
	"github.com/Hobby-Box/api-search-sync/config"
	"github.com/Hobby-Box/api-search-sync/utils"
)

type REPL struct {
	rl    *readline.Instance
	log   utils.Logger
	level slog.Level

	store *checkpoint.Store
	index *bulkindex.Pebble
	defs  []config.Definition
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("open"),
	readline.PcItem("ls"),
	readline.PcItem("sync"),
	readline.PcItem("reset"),
	readline.PcItem("stats"),

	readline.PcItem("verbose"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open(dir string) (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".searchsync_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()

	repl.level = slog.LevelInfo
	repl.log = utils.NewWriterLogger(os.Stdout, repl.level)
	repl.store = checkpoint.NewStore(os.Getenv("CHECKPOINT_PATH"))
	repl.index, err = bulkindex.OpenPebble(dir)
	return
}

func (repl *REPL) Close() error {
	var err error
	if repl.index != nil {
		err = repl.index.Close()
		repl.index = nil
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return err
}

func (repl *REPL) REPL() error {
	line, err := repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, arg := line, ""
	if ws := strings.IndexAny(line, " \t"); ws > 0 {
		cmd, arg = line[:ws], strings.TrimSpace(line[ws:])
	}

	switch cmd {
	case "open":
		err = repl.CommandOpen(arg)
	case "ls", "list":
		err = repl.CommandList()
	case "sync":
		err = repl.CommandSync(arg)
	case "reset":
		err = repl.CommandReset(arg)
	case "stats":
		err = repl.CommandStats()
	case "verbose":
		repl.CommandVerbose()
	case "help":
		repl.CommandHelp()
	case "exit", "quit":
		return io.EOF
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return err
}

func main() {
	dir := "searchsync.db"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	repl := &REPL{}
	if err := repl.Open(dir); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer repl.Close()

	for {
		err := repl.REPL()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Println(errStyle.Render(err.Error()))
		}
	}
}
