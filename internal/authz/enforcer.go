// Package authz はRoleとリクエスト経路に基づくアクセス制御を提供する。
// モデルとポリシーはバイナリに埋め込まれ、casbinで評価する。
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Enforcer はcasbinのSyncedEnforcerをラップする。
// 複数のリクエストから同時に呼び出して良い。
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer は埋め込みのモデルとポリシーでEnforcerを生成する。
func NewEnforcer() (*Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: enforcer}, nil
}

// Allowed はRoleがpathに対してmethodを実行できるかどうかを返す。
func (e *Enforcer) Allowed(role, path, method string) (bool, error) {
	ok, err := e.enforcer.Enforce(role, path, method)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	return ok, nil
}

// loadPolicy はCSV形式のポリシーを1行ずつ読み込む。
// 空行と#で始まる行は無視する。
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) != 4 {
				return fmt.Errorf("invalid policy line: %q", line)
			}
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case "g":
			if len(parts) != 3 {
				return fmt.Errorf("invalid grouping line: %q", line)
			}
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("unknown policy type %q", parts[0])
		}
	}
	return nil
}
