package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"TrendWatch/internal/model"
	"TrendWatch/internal/tracker"
)

// topN is how many leaders each group lists in a summary.
const topN = 3

var groupTitles = map[string]string{
	tracker.GroupMajor:  "主要指数",
	tracker.GroupSector: "行业板块",
}

// FormatRunSummary formats a completed run into a Telegram message.
func FormatRunSummary(mode string, res *tracker.Result) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>TrendWatch %s</b> | %s\n", modeLabel(mode), res.RecordDate.Format(time.DateOnly)))
	b.WriteString(fmt.Sprintf("成功 %d/%d\n", res.Total-res.Failed, res.Total))

	for _, g := range res.Groups {
		above, valid := 0, 0
		for _, s := range g.Snapshots {
			if !s.Valid() {
				continue
			}
			valid++
			if s.Status == model.StatusAbove {
				above++
			}
		}
		b.WriteString(fmt.Sprintf("\n<b>%s</b> 站上MA20: %d/%d\n", groupTitle(g.Name), above, valid))
		for i, s := range g.Snapshots {
			if i >= topN || !s.Valid() {
				break
			}
			b.WriteString(fmt.Sprintf("  %d. %s %+.2f%%%s\n", s.Rank, html.EscapeString(displayName(s)), s.DeviationPct, rankArrow(s.RankChange)))
		}
	}

	if failed := res.FailedCodes(); len(failed) > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ 失败: %s\n", html.EscapeString(strings.Join(failed, ", "))))
	}
	return b.String()
}

// FormatRunFailure formats an aborted run.
func FormatRunFailure(mode string, date time.Time, err error) string {
	return fmt.Sprintf("❌ <b>TrendWatch %s</b> | %s\n\n更新已中止: %s",
		modeLabel(mode), date.Format(time.DateOnly), html.EscapeString(err.Error()))
}

func modeLabel(mode string) string {
	switch mode {
	case "morning":
		return "早盘"
	case "evening":
		return "收盘"
	default:
		return mode
	}
}

func groupTitle(name string) string {
	if t, ok := groupTitles[name]; ok {
		return t
	}
	return name
}

func displayName(s model.Snapshot) string {
	if s.Name != "" {
		return s.Name
	}
	return s.Code
}

func rankArrow(change *int) string {
	switch {
	case change == nil:
		return ""
	case *change > 0:
		return fmt.Sprintf(" ↑%d", *change)
	case *change < 0:
		return fmt.Sprintf(" ↓%d", -*change)
	default:
		return " ="
	}
}
