package catalog

import (
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/hitoshi/bookman/internal/model"
)

// DefaultCacheMaxCost はキャッシュに保持する書籍の最大件数のデフォルト値。
const DefaultCacheMaxCost = 10_000

// DefaultCacheTTL はキャッシュした書籍の有効期間。無効化漏れがあってもこの期間で失効する。
const DefaultCacheTTL = 5 * time.Minute

// BookCache は書籍IDをキーとした読み取りキャッシュのインターフェース。
// 永続ストアが正であり、キャッシュは更新のたびに無効化される。
type BookCache interface {
	Get(id string) (*model.Book, bool)
	Set(book *model.Book)
	Invalidate(id string)
	Close()
}

// RistrettoCache はristrettoを使用したBookCacheの実装。
// 呼び出し側による書き換えの影響を受けないよう、値のコピーを保持する。
type RistrettoCache struct {
	cache *ristretto.Cache[string, model.Book]
	ttl   time.Duration
}

// NewRistrettoCache はRistrettoCacheを生成する。maxCostは保持する件数の上限。
func NewRistrettoCache(maxCost int64) (*RistrettoCache, error) {
	if maxCost <= 0 {
		maxCost = DefaultCacheMaxCost
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, model.Book]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{cache: cache, ttl: DefaultCacheTTL}, nil
}

// Get はキャッシュから書籍を取得する。
func (c *RistrettoCache) Get(id string) (*model.Book, bool) {
	book, ok := c.cache.Get(id)
	if !ok {
		return nil, false
	}
	return &book, true
}

// Set は書籍をキャッシュに保存し、反映を待つ。
func (c *RistrettoCache) Set(book *model.Book) {
	if book == nil {
		return
	}
	if !c.cache.SetWithTTL(book.ID, *book, 1, c.ttl) {
		slog.Debug("書籍キャッシュへの保存が破棄されました", slog.String("book_id", book.ID))
		return
	}
	c.cache.Wait()
}

// Invalidate は書籍をキャッシュから削除する。
func (c *RistrettoCache) Invalidate(id string) {
	c.cache.Del(id)
}

// Close はキャッシュを停止する。
func (c *RistrettoCache) Close() {
	c.cache.Close()
}

// compile-time interface check
var _ BookCache = (*RistrettoCache)(nil)
