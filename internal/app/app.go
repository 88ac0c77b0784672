// Package app はbookmanのサブコマンドと依存関係のワイヤリングを提供する。
package app

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hitoshi/bookman/internal/config"
	"github.com/hitoshi/bookman/internal/database"
	"github.com/hitoshi/bookman/internal/logger"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
	"github.com/hitoshi/bookman/internal/supervisor"
	"github.com/hitoshi/bookman/internal/user"
)

// eventBusReadyTimeout はAPIサーバー起動前にイベントルーターの起動を待つ上限。
const eventBusReadyTimeout = 10 * time.Second

// runtimeEnv はサブコマンドが共有する設定とロガー。
type runtimeEnv struct {
	cfg    *config.Config
	logger *slog.Logger
}

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから設定を読み込み、LOG_LEVELを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := logger.SetupDefault(w)

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lv, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	level.Set(lv)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// SIGINTまたはSIGTERMでキャンセルされるコンテキストでサブコマンドを実行する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w, os.Stdin)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// HTTPサーバーとイベントルーターを監視ツリーの下で起動し、
// シグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cmd *cobra.Command, env *runtimeEnv) error {
	ctx := cmd.Context()

	db, err := openDB(ctx, env.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	env.logger.Info("database connection established")

	srv, err := buildServer(db, env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         ":" + env.cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(env.logger, supervisor.DefaultTreeConfig())
	tree.AddBackground(supervisor.NewEventBusService(srv.bus))

	env.logger.Info("API server starting",
		slog.String("addr", httpServer.Addr),
		slog.Bool("payments_enabled", env.cfg.PaymentEnabled()),
	)
	// 返却イベントの購読が始まってからリクエストを受け付ける
	err = tree.ServeAfter(ctx, srv.bus.Running(), eventBusReadyTimeout,
		supervisor.NewHTTPServerService(httpServer, 30*time.Second))
	if err = treeResult(err); err != nil {
		return err
	}
	env.logger.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 延滞督促と既読通知のクリーンアップを定期実行する。
func runWorker(cmd *cobra.Command, env *runtimeEnv) error {
	ctx := cmd.Context()

	db, err := openDB(ctx, env.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	env.logger.Info("database connection established (worker)")

	tree := supervisor.NewTree(env.logger, supervisor.DefaultTreeConfig())
	for _, svc := range buildWorkerServices(db, env.cfg, env.logger) {
		tree.AddBackground(svc)
	}

	env.logger.Info("worker starting",
		slog.Duration("reminder_interval", env.cfg.OverdueReminderInterval),
		slog.Int("max_concurrent", env.cfg.OverdueMaxConcurrent),
	)
	if err := serveTree(ctx, tree); err != nil {
		return err
	}
	env.logger.Info("worker stopped gracefully")
	return nil
}

// serveTree は監視ツリーを実行し、シグナルによる停止はエラーとして扱わない。
func serveTree(ctx context.Context, tree *supervisor.Tree) error {
	return treeResult(tree.Serve(ctx))
}

func treeResult(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("supervisor stopped: %w", err)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cmd *cobra.Command, env *runtimeEnv) error {
	env.logger.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(env.cfg.DatabaseURL)),
	)

	latest, err := database.LatestVersion()
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, err := database.RunMigrations(env.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	env.logger.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Uint64("latest_version", uint64(latest)),
	)
	return nil
}

// runSeedLibrarian は司書アカウントを作成する。
// 司書は登録APIから作成できないため、初回の司書はこのコマンドで作成する。
func runSeedLibrarian(cmd *cobra.Command, env *runtimeEnv, opts seedOptions) error {
	ctx := cmd.Context()

	db, err := openDB(ctx, env.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	users := user.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresLoanRepo(db),
		security.NewTextSanitizer(),
	)
	created, err := users.Create(ctx, user.CreateInput{
		Name:     opts.name,
		Email:    opts.email,
		Password: opts.password,
		Role:     "LIBRARIAN",
	})
	if err != nil {
		return fmt.Errorf("司書アカウントの作成に失敗しました: %w", err)
	}

	env.logger.Info("librarian account created",
		slog.String("user_id", created.ID),
		slog.String("email", created.Email),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "created librarian %s (%s)\n", created.Email, created.ID)
	return nil
}

// readPassword はパスワードを読み取る。端末の場合はエコーせずに入力を受け付ける。
func readPassword(in *os.File, prompt io.Writer) (string, error) {
	if in == nil {
		return "", errors.New("--password is required when stdin is unavailable")
	}
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
