package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/tally/internal/api"
	"github.com/JaimeStill/tally/internal/auth"
	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/infrastructure"
)

type globals struct {
	tenant string
	actor  string
}

func rootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "tally",
		Short:         "Batch operations for the account mapping and review engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.tenant, "tenant", "", "Organization ID the command acts for")
	root.PersistentFlags().StringVar(&g.actor, "actor", "", "Actor recorded on reviews and audit events")

	root.AddCommand(
		dealsCommand(g),
		aggregateCommand(g),
		classifyCommand(g),
		bulkApproveCommand(g),
		detectCommand(g),
		reconcileCommand(g),
		auditCommand(g),
		bridgeCommand(g),
		goldenCommand(),
	)

	return root
}

func (g *globals) scope() (auth.Scope, error) {
	tenant, err := uuid.Parse(g.tenant)
	if err != nil {
		return auth.Scope{}, fmt.Errorf("--tenant must be a UUID: %w", err)
	}
	s := auth.Scope{TenantID: tenant, ActorID: g.actor}
	if err := s.Validate(); err != nil {
		return auth.Scope{}, fmt.Errorf("--tenant and --actor are required: %w", err)
	}
	return s, nil
}

// session is a started infrastructure plus the domain systems built on it.
type session struct {
	cfg    *config.Config
	infra  *infrastructure.Infrastructure
	domain *api.Domain
}

func open() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build infrastructure: %w", err)
	}

	if err := infra.Start(); err != nil {
		return nil, err
	}

	domain := newDomain(cfg, infra)
	infra.Lifecycle.WaitForStartup()

	if !infra.Database.Ready() {
		_ = infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())
		return nil, fmt.Errorf("database unavailable")
	}

	return &session{cfg: cfg, infra: infra, domain: domain}, nil
}

// newDomain builds the domain without the background embedding queue;
// commands that need embeddings run them before exiting.
func newDomain(cfg *config.Config, infra *infrastructure.Infrastructure) *api.Domain {
	runtime := api.NewRuntime(cfg, infra)
	runtime.BackgroundEmbedding = false
	return api.NewDomain(runtime)
}

func (s *session) close() {
	if err := s.infra.Lifecycle.Shutdown(s.cfg.ShutdownTimeoutDuration()); err != nil {
		s.infra.Logger.Error("shutdown incomplete", "error", err)
	}
}

// withSession runs fn against a fresh session and prints its result as JSON.
func withSession[T any](cmd *cobra.Command, fn func(*session) (T, error)) error {
	s, err := open()
	if err != nil {
		return err
	}
	defer s.close()

	out, err := fn(s)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
