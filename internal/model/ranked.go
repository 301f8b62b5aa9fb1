package model

// BulletType 解释条目的倾向。
type BulletType string

const (
	BulletPositive BulletType = "positive"
	BulletNegative BulletType = "negative"
	BulletNeutral  BulletType = "neutral"
)

// Bullet 一条基于打分字段的解释。
type Bullet struct {
	Text string     `json:"text"`
	Type BulletType `json:"type"`
}

// RankedResult 排序引擎对单个 Listing 的输出。
type RankedResult struct {
	Listing            Listing               `json:"listing"`
	ScoreTotal         float64               `json:"score_total"`
	ScoreBreakdown     map[Criterion]float64 `json:"score_breakdown"`
	ExplanationBullets []Bullet              `json:"explanation_bullets"`
}
