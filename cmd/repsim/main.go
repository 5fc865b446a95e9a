// Command repsim drives the replicated concurrency-control simulator
// from a script file or interactively from stdin, mirroring
// original_source/main.py's --file/--std modes and the teacher's
// cmd/mantisDB/main.go config-then-run shape.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"repsim/config"
	simerrors "repsim/internal/errors"
	"repsim/internal/tracelog"
	"repsim/transaction"
)

func main() {
	file := flag.String("file", "", "path to a script of commands to execute")
	std := flag.Bool("std", false, "read commands interactively from stdin")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if (*file == "") == !*std {
		log.Fatalf("repsim: exactly one of -file or -std must be given")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("repsim: %v", err)
	}
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("repsim: %v", err)
	}

	logger := tracelog.NewLogger(os.Stdout)
	if cfg.Trace.Path != "" {
		f, err := os.Create(cfg.Trace.Path)
		if err != nil {
			log.Fatalf("repsim: open trace file: %v", err)
		}
		defer f.Close()
		sink, err := tracelog.NewSink(f, tracelog.Codec(cfg.Trace.Codec))
		if err != nil {
			log.Fatalf("repsim: %v", err)
		}
		logger = logger.WithSink(sink)
	}
	defer logger.Close()

	tm := transaction.NewTransactionManager(logger, cfg.Logging.LogDeadlocks, cfg.Logging.LogDrainNoops)

	if *std {
		runInteractive(tm)
		return
	}
	runFile(tm, *file)
}

// runFile replays a script one line per tick, then (matching
// original_source/main.py's --file loop) asks whether to continue and,
// if so, prompts for the path of the next script to run.
func runFile(tm *transaction.TransactionManager, path string) {
	in := bufio.NewReader(os.Stdin)
	for {
		lines, err := readLines(path)
		if err != nil {
			log.Fatalf("repsim: %v", err)
		}
		for _, line := range lines {
			executeLine(tm, line)
		}
		fmt.Print("Continue[y/n]? ")
		reply, err := in.ReadString('\n')
		if err != nil || !startsWithY(reply) {
			return
		}
		fmt.Print("File path: ")
		next, err := in.ReadString('\n')
		if err != nil {
			return
		}
		path = strings.TrimSpace(next)
	}
}

// runInteractive reads commands from stdin until "exit", matching
// original_source/main.py's --std loop.
func runInteractive(tm *transaction.TransactionManager) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "exit" {
			return
		}
		executeLine(tm, line)
	}
}

// executeLine parses and runs one command. A parse error or a
// comment/blank line does not advance the tick (spec.md §7 "tick does
// not advance for empty/comment lines"); a recognized command always
// does, via TransactionManager.Step. A fatal error (LockError/DataError,
// spec.md §7 "invariant violations are fatal") stops the driver instead
// of being reported and skipped like a recoverable TransactionError.
func executeLine(tm *transaction.TransactionManager, line string) {
	cmd, ok, err := transaction.Parse(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repsim: %v\n", err)
		return
	}
	if !ok {
		return
	}

	dump, err := tm.Step(cmd)
	if err != nil {
		if simerrors.IsFatal(err) {
			log.Fatalf("repsim: %v", err)
		}
		fmt.Fprintf(os.Stderr, "repsim: %v\n", err)
	}
	for _, line := range dump {
		fmt.Println(line)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func startsWithY(s string) bool {
	return len(s) > 0 && (s[0] == 'y' || s[0] == 'Y')
}
