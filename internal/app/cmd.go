package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は督促・クリーンアップのワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeedLibrarian は司書アカウントを作成することを示す。
	CommandSeedLibrarian Command = "seed-librarian"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// seedOptions はseed-librarianコマンドのフラグ。
type seedOptions struct {
	name     string
	email    string
	password string
}

// NewRootCommand はbookmanのルートコマンドを生成する。
// サブコマンド省略時はserveとして動作する。
// wはログの出力先、stdinはパスワード入力の読み取り元。
func NewRootCommand(w io.Writer, stdin *os.File) *cobra.Command {
	root := &cobra.Command{
		Use:           "bookman",
		Short:         "Library lending backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, CommandServe, runServe)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   string(CommandServe),
		Short: "Run the HTTP API server and the event router",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, CommandServe, runServe)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   string(CommandWorker),
		Short: "Run the overdue reminder and notification cleanup jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, CommandWorker, runWorker)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply all pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd, w, CommandMigrate, runMigrate)
		},
	})

	var seed seedOptions
	seedCmd := &cobra.Command{
		Use:   string(CommandSeedLibrarian),
		Short: "Create a librarian account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed.password == "" {
				pw, err := readPassword(stdin, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				seed.password = pw
			}
			return withConfig(cmd, w, CommandSeedLibrarian, func(cmd *cobra.Command, env *runtimeEnv) error {
				return runSeedLibrarian(cmd, env, seed)
			})
		},
	}
	seedCmd.Flags().StringVar(&seed.name, "name", "Librarian", "display name of the librarian")
	seedCmd.Flags().StringVar(&seed.email, "email", "", "login email of the librarian")
	seedCmd.Flags().StringVar(&seed.password, "password", "", "password (prompted when omitted)")
	_ = seedCmd.MarkFlagRequired("email")
	root.AddCommand(seedCmd)

	var port string
	healthCmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe /health of a local server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 軽量サブコマンドのため設定の読み込みはスキップする
			return runHealthcheck(cmd.Context(), port)
		},
	}
	healthCmd.Flags().StringVar(&port, "port", envOr("SERVER_PORT", "8080"), "port of the local server")
	root.AddCommand(healthCmd)

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// withConfig は設定を読み込んでからサブコマンド本体を実行する。
func withConfig(cmd *cobra.Command, w io.Writer, name Command, run func(*cobra.Command, *runtimeEnv) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	env := &runtimeEnv{cfg: cfg, logger: slog.Default()}
	env.logger.Info("starting application",
		slog.String("command", string(name)),
		slog.String("port", cfg.ServerPort),
	)
	return run(cmd, env)
}
