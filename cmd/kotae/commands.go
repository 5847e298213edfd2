package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/policy"
	"github.com/hyperjump/kotae/internal/storage"
)

const closeTimeout = 5 * time.Second

// withApp runs fn against an initialized app and releases it afterwards.
func withApp(g *globalFlags, full bool, fn func(a *app) error) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	build := newStoreApp
	if full {
		build = newApp
	}
	a, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		a.Close(ctx)
	}()
	return fn(a)
}

func newAskCmd(g *globalFlags) *cobra.Command {
	var (
		tenant, user, role, conversation, output string
		topK                                     int
	)
	cmd := &cobra.Command{
		Use:   "ask [flags] <question>",
		Short: "Ask a question as a tenant user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			return withApp(g, true, func(a *app) error {
				who := models.Account{
					UserID:      user,
					Tenant:      tenant,
					UserRole:    role,
					CompanyName: a.cfg.Persona.CompanyName,
					BotName:     a.cfg.Persona.BotName,
				}
				resp, err := a.pipeline.Ask(cmd.Context(), who, models.AskRequest{
					Question:       strings.Join(args, " "),
					TopK:           topK,
					ConversationID: conversation,
				})
				if err != nil {
					return err
				}
				if !a.cfg.Server.ExposeSourcesOrDefault() {
					resp.Sources = nil
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), resp, format)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenant, "tenant", "", "tenant id")
	f.StringVar(&user, "user", "cli", "requester id")
	f.StringVar(&role, "role", "", "requester role")
	f.StringVar(&conversation, "conversation", "", "continue an existing conversation")
	f.IntVar(&topK, "top-k", 0, "number of chunks to retrieve (default from config)")
	f.StringVar(&output, "output", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newIngestCmd(g *globalFlags) *cobra.Command {
	var (
		tenant, visibility string
		tags               []string
	)
	cmd := &cobra.Command{
		Use:   "ingest [flags] <file-or-directory>",
		Short: "Ingest a file or every supported file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("failed to stat path: %w", err)
			}
			return withApp(g, false, func(a *app) error {
				out := cmd.OutOrStdout()
				if info.IsDir() {
					n, err := a.indexer.IngestDirectory(cmd.Context(), tenant, path, a.cfg.Watch.Extensions)
					fmt.Fprintf(out, "Ingested %d file(s) from %s\n", n, path)
					return err
				}
				doc, err := ingestFile(cmd.Context(), a, tenant, path, visibility, tags)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Document ingested: %s (%s, %s)\n", doc.ID, doc.Filename, doc.Visibility)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenant, "tenant", "", "tenant id")
	f.StringVar(&visibility, "visibility", models.VisibilityPublic, "public or internal_only")
	f.StringSliceVar(&tags, "tags", nil, "comma-separated document tags")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// ingestFile replaces any document stored under the same filename with path's content.
func ingestFile(ctx context.Context, a *app, tenant, path, visibility string, tags []string) (*models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	filename := filepath.Base(path)
	if err := a.indexer.DeleteByFilename(ctx, tenant, filename); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return a.indexer.Ingest(ctx, tenant, models.DocumentUpload{
		Filename:   filename,
		Content:    content,
		Visibility: visibility,
		Tags:       tags,
	})
}

func newPolicyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage tenant question policies",
	}
	cmd.AddCommand(newPolicyExtractCmd(g), newPolicySetCmd(g), newPolicyShowCmd(g))
	return cmd
}

func newPolicyExtractCmd(g *globalFlags) *cobra.Command {
	var (
		tenant string
		apply  bool
	)
	cmd := &cobra.Command{
		Use:   "extract [flags] <policy-document>",
		Short: "Build a policy from a policy document (txt, md, pdf, docx, ...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, text, err := extract.NewExtractor().ExtractFile(args[0])
			if err != nil {
				return err
			}
			p := policy.ExtractFromText(text)
			if apply {
				if tenant == "" {
					return errors.New("--apply requires --tenant")
				}
				err := withApp(g, false, func(a *app) error {
					return a.store.UpsertTenantPolicy(cmd.Context(), tenant, &p)
				})
				if err != nil {
					return err
				}
			}
			return writeYAML(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().BoolVar(&apply, "apply", false, "store the extracted policy for the tenant")
	return cmd
}

func newPolicySetCmd(g *globalFlags) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "set [flags] <policy.yaml>",
		Short: "Replace a tenant policy with a YAML or JSON policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readPolicyFile(args[0])
			if err != nil {
				return err
			}
			return withApp(g, false, func(a *app) error {
				if err := a.store.UpsertTenantPolicy(cmd.Context(), tenant, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Policy stored for %s: %d rule(s)\n", tenant, len(p.Rules))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// readPolicyFile parses and validates a policy file. JSON parses as YAML.
func readPolicyFile(path string) (*models.TenantPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	var p models.TenantPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := policy.Validate(p); err != nil {
		return nil, err
	}
	if p.Rules == nil {
		p.Rules = []models.PolicyRule{}
	}
	return &p, nil
}

func newPolicyShowCmd(g *globalFlags) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a tenant policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(g, false, func(a *app) error {
				p, err := a.store.GetTenantPolicy(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if p == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "No policy stored for %s\n", tenant)
					return nil
				}
				return writeYAML(cmd.OutOrStdout(), p)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newUsageCmd(g *globalFlags) *cobra.Command {
	var (
		tenant, output string
		days           int
	)
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize a tenant's usage and quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			if days < 1 || days > 365 {
				return errors.New("--days must be between 1 and 365")
			}
			return withApp(g, false, func(a *app) error {
				summary, err := a.store.SummarizeUsage(cmd.Context(), tenant, days)
				if err != nil {
					return err
				}
				status, err := a.quota.Check(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				return cli.WriteUsage(cmd.OutOrStdout(), summary, &status, format)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenant, "tenant", "", "tenant id")
	f.IntVar(&days, "days", 30, "window in days (1-365)")
	f.StringVar(&output, "output", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.AddCommand(newUsageLimitCmd(g))
	return cmd
}

func newUsageLimitCmd(g *globalFlags) *cobra.Command {
	var (
		tenant  string
		daily   int
		monthly int64
	)
	cmd := &cobra.Command{
		Use:   "limit",
		Short: "Set a tenant's daily request and monthly token limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daily < 0 || monthly < 0 {
				return errors.New("limits must not be negative")
			}
			return withApp(g, false, func(a *app) error {
				err := a.store.SetUsageLimit(cmd.Context(), &models.UsageLimit{
					TenantID:          tenant,
					DailyRequestLimit: daily,
					MonthlyTokenLimit: monthly,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Limits for %s: %d request(s)/day, %d token(s)/month\n", tenant, daily, monthly)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenant, "tenant", "", "tenant id")
	f.IntVar(&daily, "daily", 0, "daily request limit")
	f.Int64Var(&monthly, "monthly", 0, "monthly token limit")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("daily")
	_ = cmd.MarkFlagRequired("monthly")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init <config.yaml>",
		Short: "Write a config file populated with defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			var cfg config.Config
			config.ApplyDefaults(&cfg)
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
