package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	configx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/config"
	logx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/logger"
)

var (
	envFile   string
	sessionID string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "desktop-agent",
	Short: "Privacy-preserving task orchestrator",
	Long: `desktop-agent plans and runs multi-step tasks over local calendar, email and
document tools. Personal names and identifiers are replaced with placeholders
before any text reaches the language model.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRunE = loadAmbient
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file (defaults to $"+configx.EnvFileVar+" or ./.env)")
	chatCmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")
	onceCmd.Flags().StringVar(&sessionID, "session", "", "session id to run the turn in")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(onceCmd)
}

// loadAmbient resolves the env file and configures logging before any command.
func loadAmbient(*cobra.Command, []string) error {
	configx.SetEnvFile(envFile)
	logCfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		return fmt.Errorf("load log config: %w", err)
	}
	logx.Init(*logCfg)
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat in the terminal",
	Long: `Start an interactive session. Commands:
  /privacy on|off   toggle redaction for this session
  /reset            forget this session
  /quit             exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var onceCmd = &cobra.Command{
	Use:   "once <query>",
	Short: "Run a single turn and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOnce,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.server()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	resp, err := a.orchestrator.HandleMessage(ctx, id, strings.Join(args, " "))
	if err != nil {
		return err
	}
	printResponse(cmd.OutOrStdout(), resp)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s (type /quit to exit)\n", id)

	sc := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			if err := a.orchestrator.ResetSession(ctx, id); err != nil {
				fmt.Fprintf(out, "reset failed: %v\n", err)
			}
			continue
		case strings.HasPrefix(line, "/privacy"):
			enabled := strings.TrimSpace(strings.TrimPrefix(line, "/privacy")) != "off"
			if _, err := a.orchestrator.SetPrivacy(ctx, id, enabled); err != nil {
				fmt.Fprintf(out, "privacy toggle failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "privacy redaction: %v\n", enabled)
			continue
		}

		resp, err := a.orchestrator.HandleMessage(ctx, id, line)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("chat: turn failed")
			fmt.Fprintln(out, "Sorry, something went wrong handling that request.")
			continue
		}
		printResponse(out, resp)
	}
}

func printResponse(w io.Writer, resp contractx.FinalResponse) {
	if resp.RedactedInput != "" {
		fmt.Fprintf(w, "[model saw] %s\n", resp.RedactedInput)
	}
	fmt.Fprintln(w, resp.Text)
	for _, f := range resp.Files {
		fmt.Fprintf(w, "  [%s] %s -> %s\n", f.Type, f.Label, f.Path)
	}
}
