package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarityops/clarity/internal/render"
	"github.com/clarityops/clarity/internal/session"
)

var (
	chatSources []string
	chatExport  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Analyze the sources, then answer questions about the incident",
	Long: `Chat runs one analysis over the declared sources and opens an
interactive question loop grounded in the merged timeline and verdict.
Type exit or quit (or press Ctrl-D) to leave. Answers fall back to local
heuristics when the oracle is unreachable.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringArrayVar(&chatSources, "source", nil, "log source as path[:format], repeatable")
	chatCmd.Flags().StringVar(&chatExport, "export", "", "write the session transcript to this JSON file on exit")
	_ = chatCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	sources, err := parseSourceArgs(chatSources)
	if err != nil {
		return err
	}

	oracleClient, closeOracle := newOracleClient()
	defer closeOracle()

	orch, cleanup, err := newOrchestrator("", false, oracleClient)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	report, err := orch.Analyze(ctx, sources)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, render.Report(report))
	fmt.Fprintln(out, "Ask about the incident. Type exit or quit to leave.")

	sess := session.New(report, oracleClient, deps.Logger)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "exit", "quit":
			return finishChat(sess)
		}

		exchange, err := sess.Ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(out, "error: %v\n> ", err)
			continue
		}
		fmt.Fprintln(out, render.Answer(exchange))
		fmt.Fprint(out, "> ")
	}
	if err := scanner.Err(); err != nil {
		deps.Logger.Warn("Chat input closed unexpectedly", zap.Error(err))
	}
	return finishChat(sess)
}

func finishChat(sess *session.Session) error {
	deps.Logger.Info("Chat session ended", zap.Any("stats", sess.Stats()))
	if chatExport == "" {
		return nil
	}

	data, err := json.MarshalIndent(sess.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := os.WriteFile(chatExport, data, 0o600); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	deps.Logger.Info("Transcript exported", zap.String("path", chatExport))
	return nil
}
