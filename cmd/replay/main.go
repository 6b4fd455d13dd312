// Command replay is the host driver stand-in: it reads a newline
// delimited action log, applies each action against a fresh engine in
// order, and prints the resulting state digest. It is deliberately not
// an HTTP server — the engine's host surface is "whatever feeds it
// actions and reads back events," and a sequential replay is the
// simplest thing that exercises exactly that contract.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zkspot/matchcore/internal/engine"
	"github.com/zkspot/matchcore/internal/types"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start logger: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// A fresh id per run ties every log line below back to one replay
	// invocation, the way the teacher's API handlers tag each request —
	// it never enters engine state, so it has no bearing on the digest.
	runID := uuid.New().String()
	logger = logger.With(zap.String("run_id", runID))

	var in *os.File
	if len(os.Args) > 1 {
		in, err = os.Open(os.Args[1])
		if err != nil {
			logger.Fatal("could not open action log", zap.Error(err))
		}
		defer in.Close()
	} else {
		in = os.Stdin
	}

	eng := engine.New(engine.DefaultConfig())

	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		caller, raw, err := parseLine(line)
		if err != nil {
			logger.Fatal("malformed action log line", zap.Int("line", lineNo), zap.Error(err))
		}

		events, err := eng.ApplyBytes(caller, raw)
		if err != nil {
			logger.Error("step rejected",
				zap.Int("line", lineNo),
				zap.String("caller", string(caller)),
				zap.Error(err),
			)
			continue
		}
		logger.Info("step applied",
			zap.Int("line", lineNo),
			zap.String("caller", string(caller)),
			zap.Int("events", len(events)),
		)
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal("reading action log", zap.Error(err))
	}

	digest := eng.State().Digest()
	fmt.Printf("%s\n", hex.EncodeToString(digest[:]))
}

// parseLine splits a "caller\thex(action)" line into its caller and raw
// action bytes.
func parseLine(line string) (types.User, []byte, error) {
	parts := strings.SplitN(line, "\t", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("expected \"caller<TAB>hex(action)\", got %q", line)
	}
	raw, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("decoding hex action: %w", err)
	}
	return types.User(parts[0]), raw, nil
}
