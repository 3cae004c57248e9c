package textextract

import "testing"

func TestCategory(t *testing.T) {
	e := New()

	cases := []struct {
		name string
		text string
		want string
	}{
		{"streaming chinese", "串流平台最高 10% 回饋", CategoryStreaming},
		{"streaming netflix", "Netflix 訂閱享 5% 回饋", CategoryStreaming},
		{"streaming spotify", "Spotify 消費回饋加碼", CategoryStreaming},
		{"new cardholder", "新戶首刷禮最高 500 元", CategoryNewCardholder},
		{"first swipe", "首刷滿 3000 送行李箱", CategoryNewCardholder},
		{"installment", "12 期零利率優惠", CategoryInstallment},
		{"installment zero", "分期 0利率 消費滿額", CategoryInstallment},
		{"dining", "餐飲消費最高 5% 回饋", CategoryDining},
		{"online shopping", "蝦皮購物 8% 回饋", CategoryOnlineShopping},
		{"transport", "加油滿額回饋", CategoryTransport},
		{"overseas", "日本旅遊消費加碼", CategoryOverseas},
		{"convenience store", "全家消費 10% 回饋", CategoryConvenienceStore},
		{"department store", "百貨週年慶滿額禮", CategoryDepartmentStore},
		{"unclassified", "一般消費回饋", CategoryOthers},
		{"empty", "", CategoryOthers},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.Category(tc.text); got != tc.want {
				t.Fatalf("Category(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

// A text matching two keyword sets must resolve to the earlier rule, so the
// table order is the documented priority order.
func TestCategoryPriority(t *testing.T) {
	e := New()

	// dining sits before online_shopping in the default table.
	got := e.Category("指定餐廳線上訂位享優惠")
	if got != CategoryDining {
		t.Fatalf("dining/online_shopping overlap resolved to %q, want %q", got, CategoryDining)
	}

	// streaming sits before online_shopping.
	got = e.Category("Netflix 線上訂閱回饋")
	if got != CategoryStreaming {
		t.Fatalf("streaming/online_shopping overlap resolved to %q, want %q", got, CategoryStreaming)
	}
}

func TestRewardType(t *testing.T) {
	e := New()

	cases := []struct {
		text string
		want string
	}{
		{"現金回饋 3%", RewardCashback},
		{"刷卡金回饋 500 元", RewardCashback},
		{"每消費 30 元累積 1 哩程", RewardMiles},
		{"航空里程累積加碼", RewardMiles},
		{"紅利點數 10 倍送", RewardPoints},
		{"", RewardPoints},
	}
	for _, tc := range cases {
		if got := e.RewardType(tc.text); got != tc.want {
			t.Errorf("RewardType(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestRewardLimit(t *testing.T) {
	e := New()

	cases := []struct {
		text string
		want int
		none bool
	}{
		{text: "每月回饋上限 500 元", want: 500},
		{text: "上限 NT$1,000 元", want: 1000},
		{text: "最高回饋 2,000 元", want: 2000},
		{text: "無上限回饋", none: true},
		{text: "", none: true},
	}
	for _, tc := range cases {
		got := e.RewardLimit(tc.text)
		if tc.none {
			if got != nil {
				t.Errorf("RewardLimit(%q) = %d, want nil", tc.text, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Errorf("RewardLimit(%q) = %v, want %d", tc.text, got, tc.want)
		}
	}
}

func TestMinSpend(t *testing.T) {
	e := New()

	cases := []struct {
		text string
		want int
		none bool
	}{
		{text: "消費滿 3,000 元享回饋", want: 3000},
		{text: "單筆滿 NT$5000 即享優惠", want: 5000},
		{text: "刷卡滿 10,000 元以上", want: 10000},
		{text: "所有消費皆享回饋", none: true},
		{text: "", none: true},
	}
	for _, tc := range cases {
		got := e.MinSpend(tc.text)
		if tc.none {
			if got != nil {
				t.Errorf("MinSpend(%q) = %d, want nil", tc.text, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Errorf("MinSpend(%q) = %v, want %d", tc.text, got, tc.want)
		}
	}
}

func TestFeatures(t *testing.T) {
	e := New()

	t.Run("cashback with mobile pay", func(t *testing.T) {
		features := e.Features("現金回饋最高 5%，行動支付加碼")
		if features.String("reward_type") != RewardCashback {
			t.Errorf("reward_type = %q, want cashback", features.String("reward_type"))
		}
		if !features.Bool("mobile_pay") {
			t.Error("mobile_pay flag not set")
		}
	})

	t.Run("miles with airport perks", func(t *testing.T) {
		features := e.Features("每消費 30 元累積 1 哩程，機場接送、貴賓室")
		if features.String("reward_type") != RewardMiles {
			t.Errorf("reward_type = %q, want miles", features.String("reward_type"))
		}
		for _, key := range []string{"mileage", "airport_transfer", "lounge_access"} {
			if !features.Bool(key) {
				t.Errorf("%s flag not set", key)
			}
		}
	})

	t.Run("lounge_access key name", func(t *testing.T) {
		features := e.Features("機場貴賓室免費使用")
		if _, ok := features["lounge_access"]; !ok {
			t.Error("expected lounge_access key")
		}
		if _, ok := features["lounge"]; ok {
			t.Error("unexpected lounge key")
		}
	})

	t.Run("new cardholder bonus", func(t *testing.T) {
		features := e.Features("新戶首刷禮最高 500 元刷卡金")
		if !features.Bool("new_cardholder_bonus") {
			t.Error("new_cardholder_bonus flag not set")
		}
		if features.String("reward_type") != RewardCashback {
			t.Errorf("reward_type = %q, want cashback", features.String("reward_type"))
		}
	})

	t.Run("installment with online shopping", func(t *testing.T) {
		features := e.Features("分期零利率，網購消費回饋加碼")
		if !features.Bool("installment") || !features.Bool("online_shopping") {
			t.Errorf("flags = %v, want installment and online_shopping", features)
		}
	})

	t.Run("travel insurance and overseas", func(t *testing.T) {
		features := e.Features("旅遊保險最高 2000 萬，海外消費回饋加碼")
		if !features.Bool("travel_insurance") || !features.Bool("overseas") {
			t.Errorf("flags = %v, want travel_insurance and overseas", features)
		}
	})

	t.Run("empty input yields empty map", func(t *testing.T) {
		features := e.Features("")
		if len(features) != 0 {
			t.Fatalf("Features(\"\") = %v, want empty map", features)
		}
	})
}

func TestExtractorOverrides(t *testing.T) {
	e := New(
		WithCategoryRules([]CategoryRule{{Tag: CategoryDining, Keywords: []string{"特選餐廳"}}}),
		WithMinSpendKeywords([]string{"消費達"}),
	)

	if got := e.Category("特選餐廳優惠"); got != CategoryDining {
		t.Errorf("override category = %q, want dining", got)
	}
	// The default 滿 keyword must be gone.
	if got := e.MinSpend("消費滿 3,000 元"); got != nil {
		t.Errorf("overridden MinSpend matched default keyword: %d", *got)
	}
	if got := e.MinSpend("消費達 3,000 元"); got == nil || *got != 3000 {
		t.Errorf("MinSpend with override = %v, want 3000", got)
	}
}
