package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendWatch/internal/model"
	"TrendWatch/internal/tracker"
)

func newTestNotifier(t *testing.T, h http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	log, _ := test.NewNullLogger()
	n := NewTelegramNotifier("TOKEN", "42", nil, log)
	n.BaseURL = srv.URL
	n.Backoff = time.Millisecond
	return n
}

func TestSendPostsMessage(t *testing.T) {
	var got map[string]any
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, n.Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>hi</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestSendWithRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, n.SendWithRetry(context.Background(), "x", 3))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendWithRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	})

	err := n.SendWithRetry(context.Background(), "x", 2)
	assert.ErrorContains(t, err, "all 3 retries exhausted")
	assert.ErrorContains(t, err, "status 401")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendWithRetryCancelled(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	n.Backoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := n.SendWithRetry(ctx, "x", 3)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)
}

func TestFormatRunSummary(t *testing.T) {
	up, down := 2, -1
	res := &tracker.Result{
		RecordDate: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Total:      5,
		Failed:     1,
		Groups: []tracker.GroupResult{
			{Name: tracker.GroupMajor, Snapshots: []model.Snapshot{
				{Code: "BTC", Name: "比特币", Status: model.StatusAbove, DeviationPct: 12.5, Rank: 1, RankChange: &up},
				{Code: "000300", Name: "沪深300", Status: model.StatusAbove, DeviationPct: 1.25, Rank: 2, RankChange: &down},
				{Code: "HSI", Name: "恒生指数", Status: model.StatusBelow, DeviationPct: -3, Rank: 3},
			}},
			{Name: tracker.GroupSector, Snapshots: []model.Snapshot{
				{Code: "BK0477", Name: "酿酒<行业>", Status: model.StatusBelow, DeviationPct: -0.5, Rank: 1},
				{Code: "BK1036", Rank: 2, Error: "data unavailable"},
			}},
		},
	}

	msg := FormatRunSummary("evening", res)
	assert.Contains(t, msg, "收盘")
	assert.Contains(t, msg, "2024-03-08")
	assert.Contains(t, msg, "成功 4/5")
	assert.Contains(t, msg, "主要指数</b> 站上MA20: 2/3")
	assert.Contains(t, msg, "1. 比特币 +12.50% ↑2")
	assert.Contains(t, msg, "2. 沪深300 +1.25% ↓1")
	assert.Contains(t, msg, "3. 恒生指数 -3.00%\n")
	assert.Contains(t, msg, "行业板块</b> 站上MA20: 0/1")
	assert.Contains(t, msg, "酿酒&lt;行业&gt;")
	assert.NotContains(t, msg, "2. BK1036")
	assert.Contains(t, msg, "失败: BK1036")
}

func TestFormatRunFailure(t *testing.T) {
	msg := FormatRunFailure("morning", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), errors.New("systemic failure: 4/10 failed"))
	assert.Contains(t, msg, "早盘")
	assert.Contains(t, msg, "2024-03-07")
	assert.Contains(t, msg, "systemic failure: 4/10 failed")
}
