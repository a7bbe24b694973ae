package channel

import (
	"testing"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

var now = time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)

func newPrioritizer() *Prioritizer {
	return New(lexicon.Default(), config.DefaultConfig().Languages)
}

func TestThreatActorChannelIsTier1(t *testing.T) {
	p := newPrioritizer()
	ch := model.Channel{
		Username:  "sabotage_ops",
		Title:     "Ops",
		CreatedAt: now.AddDate(-5, 0, 0),
		Verified:  true,
		Hops:      model.HopCount(1),
	}

	got := p.Prioritize(ch, now)
	if got.Factors.CategoryRisk != 40 {
		t.Errorf("CategoryRisk = %d, want 40", got.Factors.CategoryRisk)
	}
	if got.Factors.Age != 15 {
		t.Errorf("Age = %d, want 15", got.Factors.Age)
	}
	if got.Factors.Verification != 10 {
		t.Errorf("Verification = %d, want 10", got.Factors.Verification)
	}
	if got.Score < 75 || got.Tier != model.Tier1 {
		t.Errorf("Score/Tier = %d/%s, want >=75/TIER1", got.Score, got.Tier)
	}
	if got.Category != model.ChannelThreatActor {
		t.Errorf("Category = %s", got.Category)
	}
	if got.Cadence != model.CadenceHourly {
		t.Errorf("Cadence = %s, want 1h", got.Cadence)
	}
}

func TestClassify(t *testing.T) {
	p := newPrioritizer()
	tests := []struct {
		name string
		ch   model.Channel
		cat  model.ChannelCategory
		risk int
	}{
		{"declared category", model.Channel{Username: "x", Category: model.ChannelPropaganda}, model.ChannelPropaganda, 25},
		{"username term", model.Channel{Username: "quick_job_nl"}, model.ChannelRecruitment, 35},
		{"cyrillic title", model.Channel{Username: "c1", Title: "Работа в Европе"}, model.ChannelRecruitment, 35},
		{"highest risk wins", model.Channel{Username: "sabotage_jobs"}, model.ChannelThreatActor, 40},
		{"title term", model.Channel{Username: "c2", Title: "Daily Nieuws"}, model.ChannelNews, 5},
		{"unknown is derived", model.Channel{Username: "osint_tracker", Category: model.ChannelUnknown}, model.ChannelOSINT, 10},
		{"no match", model.Channel{Username: "cats", Title: "Photos of cats"}, model.ChannelUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, risk := p.Classify(tt.ch)
			if cat != tt.cat || risk != tt.risk {
				t.Errorf("Classify() = %s/%d, want %s/%d", cat, risk, tt.cat, tt.risk)
			}
		})
	}
}

func yearsAgo(y float64) time.Time {
	return now.Add(-time.Duration(y * 365.25 * 24 * float64(time.Hour)))
}

func TestFactors(t *testing.T) {
	p := newPrioritizer()
	tests := []struct {
		name  string
		ch    model.Channel
		check func(model.Factors) bool
	}{
		{"seed gets proximity", model.Channel{Username: "a", Hops: model.HopCount(0)}, func(f model.Factors) bool { return f.GraphProximity == 30 }},
		{"two hops gets none", model.Channel{Username: "a", Hops: model.HopCount(2)}, func(f model.Factors) bool { return f.GraphProximity == 0 }},
		{"unknown hops gets none", model.Channel{Username: "a"}, func(f model.Factors) bool { return f.GraphProximity == 0 }},
		{"age capped", model.Channel{Username: "a", CreatedAt: now.AddDate(-12, 0, 0)}, func(f model.Factors) bool { return f.Age == 15 }},
		{"two years", model.Channel{Username: "a", CreatedAt: now.AddDate(-2, 0, 0)}, func(f model.Factors) bool { return f.Age == 6 }},
		{"age rounds to nearest point", model.Channel{Username: "a", CreatedAt: yearsAgo(4.9)}, func(f model.Factors) bool { return f.Age == 15 }},
		{"age rounds down below half", model.Channel{Username: "a", CreatedAt: yearsAgo(4.6)}, func(f model.Factors) bool { return f.Age == 14 }},
		{"future creation", model.Channel{Username: "a", CreatedAt: now.AddDate(1, 0, 0)}, func(f model.Factors) bool { return f.Age == 0 }},
		{"no creation date", model.Channel{Username: "a"}, func(f model.Factors) bool { return f.Age == 0 }},
		{"declared language", model.Channel{Username: "a", Language: "NL"}, func(f model.Factors) bool { return f.Language == 3 }},
		{"cyrillic implies ru", model.Channel{Username: "a", Title: "Новости"}, func(f model.Factors) bool { return f.Language == 5 }},
		{"unlisted language", model.Channel{Username: "a", Language: "pt"}, func(f model.Factors) bool { return f.Language == 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Prioritize(tt.ch, now)
			if !tt.check(got.Factors) {
				t.Errorf("Factors = %+v", got.Factors)
			}
		})
	}
}

func TestScoreClampedAndDeterministic(t *testing.T) {
	p := newPrioritizer()
	ch := model.Channel{
		Username:  "wagner_work",
		Title:     "Работа",
		CreatedAt: now.AddDate(-9, 0, 0),
		Verified:  true,
		Hops:      model.HopCount(0),
	}
	first := p.Prioritize(ch, now)
	if first.Score != 100 {
		t.Errorf("Score = %d, want clamp at 100", first.Score)
	}
	for i := 0; i < 5; i++ {
		if got := p.Prioritize(ch, now); got != first {
			t.Fatalf("run %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		want  model.MonitorTier
	}{
		{100, model.Tier1},
		{75, model.Tier1},
		{74, model.Tier2},
		{60, model.Tier2},
		{59, model.Tier3},
		{45, model.Tier3},
		{44, model.Tier4},
		{0, model.Tier4},
	}
	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestBatchOrder(t *testing.T) {
	p := newPrioritizer()
	got := p.Batch([]model.Channel{
		{Username: "b_cats"},
		{Username: "a_cats"},
		{Username: "sabotage", Hops: model.HopCount(1), Verified: true},
	}, now)
	want := []string{"sabotage", "a_cats", "b_cats"}
	for i, w := range want {
		if got[i].Username != w {
			t.Errorf("[%d] = %s, want %s", i, got[i].Username, w)
		}
	}
}
