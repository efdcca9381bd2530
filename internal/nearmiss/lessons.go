package nearmiss

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RuleLesson 是单条规则的复盘结论。
type RuleLesson struct {
	Rule            string
	Resolved        int
	WouldHaveWon    int
	RightToSkipRate float64
}

// LessonsReport 汇总所有规则的拦截正确率，供运维定期查看。
type LessonsReport struct {
	GeneratedAt time.Time
	Rules       []RuleLesson
}

// Lessons 聚合当前结算结果。拦截一个本会亏损的信号算"拦对了"。
func (r *Recorder) Lessons() LessonsReport {
	type agg struct{ resolved, won int }
	byRule := make(map[string]*agg)
	for _, o := range r.Outcomes() {
		a := byRule[o.Rule]
		if a == nil {
			a = &agg{}
			byRule[o.Rule] = a
		}
		a.resolved++
		if o.WouldHaveWon {
			a.won++
		}
	}
	report := LessonsReport{GeneratedAt: r.clock()}
	for rule, a := range byRule {
		lesson := RuleLesson{Rule: rule, Resolved: a.resolved, WouldHaveWon: a.won}
		if a.resolved > 0 {
			lesson.RightToSkipRate = float64(a.resolved-a.won) / float64(a.resolved) * 100
		}
		report.Rules = append(report.Rules, lesson)
	}
	sort.Slice(report.Rules, func(i, j int) bool { return report.Rules[i].Rule < report.Rules[j].Rule })
	return report
}

// Render 输出文本报告。
func (rep LessonsReport) Render() string {
	if len(rep.Rules) == 0 {
		return "暂无已结算的近失信号"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "近失复盘 @ %s\n", rep.GeneratedAt.Format(time.RFC3339))
	for _, l := range rep.Rules {
		verdict := "过滤器判断合理"
		if l.RightToSkipRate < 50 {
			verdict = "过滤器可能过严"
		}
		fmt.Fprintf(&b, "  %-22s 结算=%d 假设盈利=%d 拦截正确率=%.1f%% → %s\n",
			l.Rule, l.Resolved, l.WouldHaveWon, l.RightToSkipRate, verdict)
	}
	return b.String()
}
