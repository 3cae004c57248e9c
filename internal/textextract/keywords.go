package textextract

// Category tags assigned by the extractor.
const (
	CategoryStreaming        = "streaming"
	CategoryNewCardholder    = "new_cardholder"
	CategoryInstallment      = "installment"
	CategoryDining           = "dining"
	CategoryOnlineShopping   = "online_shopping"
	CategoryTransport        = "transport"
	CategoryOverseas         = "overseas"
	CategoryConvenienceStore = "convenience_store"
	CategoryDepartmentStore  = "department_store"
	CategoryOthers           = "others"
)

// Reward type tags assigned by the extractor.
const (
	RewardCashback = "cashback"
	RewardMiles    = "miles"
	RewardPoints   = "points"
)

// CategoryRule pairs a category tag with the keywords that trigger it.
// Rules are evaluated in slice order and the first rule with any keyword
// match wins, so overlapping keyword sets resolve by position.
type CategoryRule struct {
	Tag      string
	Keywords []string
}

// FlagRule pairs a boolean feature flag with its trigger keywords.
type FlagRule struct {
	Key      string
	Keywords []string
}

// DefaultCategoryRules returns the shared category table. Latin keywords are
// lower case; matching folds the input before comparison.
func DefaultCategoryRules() []CategoryRule {
	return []CategoryRule{
		{CategoryStreaming, []string{"串流", "netflix", "spotify", "disney+", "youtube premium"}},
		{CategoryNewCardholder, []string{"新戶", "首刷"}},
		{CategoryInstallment, []string{"分期", "零利率", "0利率"}},
		{CategoryDining, []string{"餐飲", "美食", "餐廳", "吃"}},
		{CategoryOnlineShopping, []string{"網購", "線上", "電商", "蝦皮", "momo"}},
		{CategoryTransport, []string{"交通", "加油", "高鐵", "台鐵", "捷運"}},
		{CategoryOverseas, []string{"海外", "國外", "出國", "日本", "韓國"}},
		{CategoryConvenienceStore, []string{"超商", "7-11", "全家", "萊爾富"}},
		{CategoryDepartmentStore, []string{"百貨", "週年慶", "sogo", "新光"}},
	}
}

// DefaultCashbackKeywords mark a promotion as cash-style reward.
func DefaultCashbackKeywords() []string {
	return []string{"現金", "刷卡金", "回饋金", "cashback"}
}

// DefaultMilesKeywords mark a promotion as mileage-style reward.
func DefaultMilesKeywords() []string {
	return []string{"哩程", "里程", "航空", "飛行", "miles"}
}

// DefaultRewardLimitKeywords introduce a reward-cap amount.
func DefaultRewardLimitKeywords() []string {
	return []string{"上限", "最高"}
}

// DefaultMinSpendKeywords introduce a minimum-spend amount.
func DefaultMinSpendKeywords() []string {
	return []string{"滿", "低消"}
}

// DefaultFlagRules returns the fixed battery of independent feature checks.
func DefaultFlagRules() []FlagRule {
	return []FlagRule{
		{"mobile_pay", []string{"行動支付", "apple pay", "google pay", "line pay", "samsung pay"}},
		{"mileage", []string{"哩程", "里程"}},
		{"airport_transfer", []string{"機場接送"}},
		{"lounge_access", []string{"貴賓室"}},
		{"streaming", []string{"串流", "netflix", "spotify", "disney+"}},
		{"new_cardholder_bonus", []string{"新戶", "首刷"}},
		{"installment", []string{"分期", "零利率", "0利率"}},
		{"online_shopping", []string{"網購", "線上", "電商"}},
		{"travel_insurance", []string{"旅遊保險", "旅平險", "旅遊平安險"}},
		{"overseas", []string{"海外", "國外"}},
		{"dining", []string{"餐飲", "餐廳", "美食"}},
	}
}
