package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/internal/repository"
	"github.com/noah-isme/attendance-correction-api/internal/service"
	"github.com/noah-isme/attendance-correction-api/pkg/cache"
	"github.com/noah-isme/attendance-correction-api/pkg/config"
	"github.com/noah-isme/attendance-correction-api/pkg/database"
	"github.com/noah-isme/attendance-correction-api/pkg/logger"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// bulkDecider is satisfied by *service.CorrectionBulkService.
type bulkDecider interface {
	BulkApprove(ctx context.Context, req dto.BulkApproveRequest, approverID string) (*dto.BulkResult, error)
	BulkReject(ctx context.Context, req dto.BulkRejectRequest, rejecterID string) (*dto.BulkResult, error)
}

type cli struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	bulk func(ctx context.Context) (bulkDecider, func(), error)
}

func newRootCommand(out io.Writer) *cobra.Command {
	rt := &cli{out: out}
	rt.bulk = rt.postgresBulk
	return rt.rootCommand()
}

func (rt *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "correctionctl",
		Short:         "Operator tooling for the attendance correction API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logr, err := logger.New(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt.cfg, rt.logger = cfg, logr
			return nil
		},
	}
	root.SetOut(rt.out)
	root.AddCommand(rt.migrateCommand(), rt.tokenCommand(), rt.bulkCommand())
	return root
}

func (rt *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.NewPostgres(cmd.Context(), rt.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := repository.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(rt.out, "applied", name)
			}
			return nil
		},
	}
}

func (rt *cli) tokenCommand() *cobra.Command {
	var userID, role, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := service.NewTokenService(service.TokenConfig{
				Secret:     rt.cfg.JWT.Secret,
				Issuer:     rt.cfg.JWT.Issuer,
				Expiration: rt.cfg.JWT.Expiration,
			})
			token, expiresAt, err := tokens.IssueToken(userID, models.UserRole(strings.ToUpper(role)), name)
			if err != nil {
				return err
			}
			rt.logger.Debug("token issued", zap.String("user_id", userID), zap.Time("expires_at", expiresAt))
			fmt.Fprintln(rt.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id carried by the token")
	cmd.Flags().StringVar(&role, "role", string(models.RoleEmployee), "EMPLOYEE, ADMIN or SUPERADMIN")
	cmd.Flags().StringVar(&name, "name", "", "display name used as the employee name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (rt *cli) bulkCommand() *cobra.Command {
	var (
		ids    []string
		actor  string
		text   string
		output string
	)
	bulk := &cobra.Command{
		Use:   "bulk",
		Short: "Decide on several correction requests at once",
	}
	bulk.PersistentFlags().StringSliceVar(&ids, "ids", nil, "comma separated correction request ids")
	bulk.PersistentFlags().StringVar(&actor, "actor", "", "administrator id recorded on each decision")
	bulk.PersistentFlags().StringVarP(&output, "output", "o", outputJSON, "json or yaml")

	run := func(cmd *cobra.Command, decide func(ctx context.Context, svc bulkDecider, ptrs []*string) (*dto.BulkResult, error)) error {
		if output != outputJSON && output != outputYAML {
			return fmt.Errorf("unsupported output %q", output)
		}
		svc, closeFn, err := rt.bulk(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		ptrs := make([]*string, len(ids))
		for i := range ids {
			ptrs[i] = &ids[i]
		}
		result, err := decide(cmd.Context(), svc, ptrs)
		if err != nil {
			return err
		}
		return writeResult(rt.out, output, result)
	}

	approve := &cobra.Command{
		Use:   "approve",
		Short: "Approve the listed requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc bulkDecider, ptrs []*string) (*dto.BulkResult, error) {
				return svc.BulkApprove(ctx, dto.BulkApproveRequest{IDs: ptrs, Note: text}, actor)
			})
		},
	}
	approve.Flags().StringVar(&text, "note", "", "optional note stored on each approval")

	reject := &cobra.Command{
		Use:   "reject",
		Short: "Reject the listed requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc bulkDecider, ptrs []*string) (*dto.BulkResult, error) {
				return svc.BulkReject(ctx, dto.BulkRejectRequest{IDs: ptrs, Reason: text}, actor)
			})
		},
	}
	reject.Flags().StringVar(&text, "reason", "", "reason stored on each rejection")

	bulk.AddCommand(approve, reject)
	return bulk
}

// postgresBulk wires the bulk service against the configured database. Audit entries
// are written synchronously and, when caching is enabled, the pending queue cache the
// API serves from is invalidated after each decision.
func (rt *cli) postgresBulk(ctx context.Context) (bulkDecider, func(), error) {
	db, err := database.NewPostgres(ctx, rt.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{db.Close}
	opts := []service.CorrectionServiceOption{service.WithCorrectionAudit(repository.NewAuditRepository(db))}
	if rt.cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, rt.cfg.Redis)
		if err != nil {
			rt.logger.Warn("redis unavailable, pending queue cache not invalidated", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, repository.CacheNamespace)
			closers = append(closers, cacheRepo.Close)
			opts = append(opts, service.WithCorrectionCache(service.NewCacheService(cacheRepo, nil, rt.cfg.Cache.TTL, rt.logger, true)))
		}
	}

	store := repository.NewCorrectionRequestRepository(db)
	attendance := repository.NewAttendanceRecordRepository(db)
	policy := service.NewCorrectionPolicy(rt.cfg.Corrections)
	approval := service.NewCorrectionApprovalService(store, attendance, policy, rt.logger, opts...)
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	return service.NewCorrectionBulkService(approval, policy, rt.logger), release, nil
}

func writeResult(out io.Writer, format string, result *dto.BulkResult) error {
	if format == outputYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
