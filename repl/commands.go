package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	searchsync "github.com/Hobby-Box/api-search-sync"
	"github.com/Hobby-Box/api-search-sync/checkpoint"
	"github.com/Hobby-Box/api-search-sync/config"
	"github.com/Hobby-Box/api-search-sync/snapshot"
	"github.com/Hobby-Box/api-search-sync/utils"
)

var HelpOpen = errors.New("open sync.json")

func (repl *REPL) CommandOpen(arg string) error {
	if arg == "" {
		return HelpOpen
	}
	defs, err := config.Load(arg)
	if err != nil {
		return err
	}
	repl.defs = defs
	fmt.Printf("%d definitions loaded\n", len(defs))
	return nil
}

func (repl *REPL) CommandList() error {
	if len(repl.defs) == 0 {
		return errors.New("no definitions, try: open sync.json")
	}
	rows := make([][]string, 0, len(repl.defs))
	for _, def := range repl.defs {
		name := checkpoint.Name(def.Name, def.Index)

		ckpt := "fresh"
		pos, ok, err := repl.store.Read(name)
		if err != nil {
			ckpt = "corrupt"
		} else if ok {
			ckpt = pos.String()
		}

		tx := "-"
		txid, ok, err := repl.store.ReadTxID(name)
		if err == nil && ok {
			tx = fmt.Sprintf("%d", txid)
		}

		rows = append(rows, []string{def.Name, def.Schema + "." + def.Table, def.Index, ckpt, tx})
	}
	fmt.Print(renderTable([]string{"database", "table", "index", "checkpoint", "txid"}, rows))
	return nil
}

var HelpSync = errors.New("sync <database|index> [mode]")

func (repl *REPL) CommandSync(arg string) error {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return HelpSync
	}
	def, err := repl.findDef(fields[0])
	if err != nil {
		return err
	}
	var md snapshot.Mode
	if len(fields) > 1 {
		if md, err = snapshot.ParseMode(fields[1]); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := &searchsync.Job{
		Def:    def,
		Target: repl.index,
		Store:  repl.store,
		Mode:   md,
		Log:    repl.log,
	}
	rep, err := job.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("%s: %s docs in %d units, checkpoint %s, %s",
		rep.Mode, humanize.Comma(int64(rep.Docs)), rep.Units, rep.Checkpoint,
		rep.Elapsed.Round(time.Millisecond))))
	for _, ue := range rep.Failed {
		fmt.Println(errStyle.Render(fmt.Sprintf("unit %d (%d rows): %s", ue.Seq, ue.Rows, ue.Err)))
	}
	return nil
}

var HelpReset = errors.New("reset <database|index>")

func (repl *REPL) CommandReset(arg string) error {
	if arg == "" {
		return HelpReset
	}
	def, err := repl.findDef(arg)
	if err != nil {
		return err
	}
	name := checkpoint.Name(def.Name, def.Index)
	if err := repl.store.Clear(name); err != nil {
		return err
	}
	fmt.Printf("checkpoint %s cleared, the next sync starts from scratch\n", name)
	return nil
}

func (repl *REPL) CommandStats() error {
	if len(repl.defs) == 0 {
		return errors.New("no definitions, try: open sync.json")
	}
	seen := map[string]bool{}
	var rows [][]string
	for _, def := range repl.defs {
		if seen[def.Index] {
			continue
		}
		seen[def.Index] = true
		n, err := repl.index.Count(def.Index)
		if err != nil {
			return err
		}
		rows = append(rows, []string{def.Index, humanize.Comma(int64(n))})
	}
	fmt.Print(renderTable([]string{"index", "docs"}, rows))
	fmt.Printf("written %s, skipped %s, %s on disk\n",
		humanize.Comma(int64(repl.index.Written())),
		humanize.Comma(int64(repl.index.Skipped())),
		humanize.Bytes(repl.index.DiskUsage()))
	return nil
}

func (repl *REPL) CommandVerbose() {
	if repl.level == slog.LevelDebug {
		repl.level = slog.LevelInfo
		fmt.Println("debug logging off")
	} else {
		repl.level = slog.LevelDebug
		fmt.Println("debug logging on")
	}
	repl.log = utils.NewWriterLogger(os.Stdout, repl.level)
}

func (repl *REPL) CommandHelp() {
	fmt.Print(`open <file>        load sync definitions
ls                 definitions with checkpoint positions
sync <def> [mode]  run one definition into the embedded index
reset <def>        clear a checkpoint for re-bootstrap
stats              index doc counts and store footprint
verbose            toggle debug logging
exit               leave
`)
}

func (repl *REPL) findDef(key string) (config.Definition, error) {
	for _, def := range repl.defs {
		if def.Name == key || def.Index == key || def.Name+"/"+def.Index == key {
			return def, nil
		}
	}
	return config.Definition{}, fmt.Errorf("no definition %q, try: ls", key)
}
