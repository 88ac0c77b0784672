package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultSignatureTolerance はWebhook署名のタイムスタンプの許容誤差。
const DefaultSignatureTolerance = 5 * time.Minute

// EventCheckoutCompleted はCheckoutの支払い完了イベントの種別。
const EventCheckoutCompleted = "checkout.session.completed"

var (
	// ErrMissingSignature は署名ヘッダが無い、または形式が不正な場合に返される。
	ErrMissingSignature = errors.New("missing or malformed signature header")
	// ErrSignatureMismatch はどの署名も一致しない場合に返される。
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrTimestampOutOfRange は署名のタイムスタンプが許容範囲外の場合に返される。
	ErrTimestampOutOfRange = errors.New("signature timestamp outside tolerance")
)

// WebhookEvent は決済プロバイダから届くWebhookイベント。
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// ConstructEvent は署名ヘッダ（t=<unix>,v1=<hex>）を検証し、イベントを復元する。
// 署名対象は "<t>.<body>" で、秘密鍵によるHMAC-SHA256のいずれかのv1と一致する必要がある。
func ConstructEvent(body []byte, header, secret string, tolerance time.Duration, now time.Time) (*WebhookEvent, error) {
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	if tolerance > 0 {
		diff := now.Sub(time.Unix(timestamp, 0))
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return nil, ErrTimestampOutOfRange
		}
	}

	expected := computeSignature(timestamp, body, secret)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrSignatureMismatch
	}

	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}
	return &evt, nil
}

// SignPayload はConstructEventで検証できる署名ヘッダを生成する。
func SignPayload(body []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(ts, body, secret)))
}

func computeSignature(timestamp int64, body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	if header == "" {
		return 0, nil, ErrMissingSignature
	}

	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
	)
	for _, pair := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMissingSignature
			}
			timestamp, haveTime = ts, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTime || len(signatures) == 0 {
		return 0, nil, ErrMissingSignature
	}
	return timestamp, signatures, nil
}
