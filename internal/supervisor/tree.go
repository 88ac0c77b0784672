// Package supervisor はsutureによるプロセス内サービスの監視ツリーを提供する。
// HTTPサーバー、イベントルーター、定期ジョブをそれぞれ独立したサービスとして起動し、
// 異常終了したサービスだけを再起動する。
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// ErrNotReady はapi層の起動条件がタイムアウト内に満たされなかったことを示す。
var ErrNotReady = errors.New("background services did not become ready")

// TreeConfig は監視ツリーの再起動ポリシー。
type TreeConfig struct {
	// FailureThreshold はバックオフに入るまでの失敗回数。
	FailureThreshold float64
	// FailureDecay は失敗回数が減衰する秒数。
	FailureDecay float64
	// FailureBackoff は閾値を超えたときの待機時間。
	FailureBackoff time.Duration
	// ShutdownTimeout は各サービスの停止を待つ上限。
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig はsutureの既定値と同じ設定を返す。
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree は2層の監視ツリー。
//   - background: イベントルーター、督促・クリーンアップの定期ジョブ
//   - api: HTTPサーバー
//
// background層の障害がAPIの応答を止めないように層を分けている。
type Tree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	api        *suture.Supervisor
	logger     *slog.Logger
}

// NewTree は監視ツリーを生成する。ゼロ値の項目は既定値で補う。
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = hook

	root := suture.New("bookman", rootSpec)
	background := suture.New("background", childSpec)
	api := suture.New("api", childSpec)
	root.Add(background)
	root.Add(api)

	return &Tree{root: root, background: background, api: api, logger: logger}
}

// AddBackground はbackground層にサービスを追加する。
func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

// AddAPI はapi層にサービスを追加する。
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve はctxがキャンセルされるか、いずれかのサービスがツリー全体の停止を要求するまでブロックする。
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground はツリーをバックグラウンドで起動し、終了時のエラーを返すチャネルを返す。
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// ServeAfter はツリーを起動し、readyがクローズされてからapi層にサービスを追加する。
// イベントの購読開始前にリクエストを受け付けないようにするために使う。
// timeout内にreadyとならない場合はツリーを停止してErrNotReadyを返す。
func (t *Tree) ServeAfter(ctx context.Context, ready <-chan struct{}, timeout time.Duration, api ...suture.Service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := t.root.ServeBackground(ctx)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
	case err := <-errCh:
		return err
	case <-timer.C:
		t.logger.Error("background services not ready", slog.Duration("timeout", timeout))
		cancel()
		<-errCh
		return ErrNotReady
	}

	for _, svc := range api {
		t.api.Add(svc)
	}
	return <-errCh
}

// UnstoppedServiceReport はタイムアウト内に停止しなかったサービスを返す。
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
