package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agrivia/accounts/internal/server"
	"github.com/agrivia/accounts/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agrivia server",
		Long: `Start the HTTP server: the JSON API under /api, the admin console under
/admin, and /healthz, /readyz, /metrics and /openapi.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode: debug logging, insecure cookies, ephemeral secrets")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dev {
		if err := cfg.ApplyDev(); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	if dev {
		logger.Warn("development mode: secrets are ephemeral and cookies are not marked Secure")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store initialized", "driver", string(st.Dialect()))

	svc := newServices(st, cfg, logger)

	hasAdmin, err := svc.accounts.HasAnyAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	} else if !hasAdmin {
		logger.Warn("no admin account found - run: agrivia user create --admin")
	}

	srv, err := server.New(cfg, server.Deps{
		Store:    st,
		Accounts: svc.accounts,
		Guard:    svc.guard,
		Sessions: svc.sessions,
		Metrics:  telemetry.New(),
		Version:  versionString(),
	}, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	base := "http://" + cfg.Server.Addr()
	fmt.Fprintf(out, "→ agrivia %s\n", versionString())
	fmt.Fprintf(out, "→ Listening on %s\n", base)
	fmt.Fprintf(out, "→ Admin:   %s/admin\n", base)
	fmt.Fprintf(out, "→ OpenAPI: %s/openapi.json\n", base)
	fmt.Fprintf(out, "→ Metrics: %s/metrics\n", base)
	fmt.Fprintln(out)

	return srv.ListenAndServe()
}
