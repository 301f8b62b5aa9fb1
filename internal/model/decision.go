package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidWeights 权重和为 0，无法归一化，必须在边界拒绝。
	ErrInvalidWeights = errors.New("weights sum to zero")
	// ErrEmptyQuery 未提供搜索词。
	ErrEmptyQuery = errors.New("no query provided")
)

// WeightTolerance 权重和与 1.0 的允许误差。
const WeightTolerance = 0.01

const (
	DefaultBudgetMax = 250
	// AgentBudgetMax 服务端入口的默认预算。
	AgentBudgetMax = 500
)

// Level 偏好强度。
type Level string

const (
	LevelLow  Level = "low"
	LevelMed  Level = "med"
	LevelHigh Level = "high"
)

// Criterion 打分维度。
type Criterion string

const (
	CriterionPrice       Criterion = "price"
	CriterionDelivery    Criterion = "delivery"
	CriterionReliability Criterion = "reliability"
	CriterionReturns     Criterion = "returns"
	CriterionSpecMatch   Criterion = "spec_match"
)

// Criteria 固定的五个维度，顺序即求和顺序。
var Criteria = []Criterion{
	CriterionPrice,
	CriterionDelivery,
	CriterionReliability,
	CriterionReturns,
	CriterionSpecMatch,
}

// Weights 五个维度的非负权重。
type Weights struct {
	Price       float64 `json:"price" yaml:"price"`
	Delivery    float64 `json:"delivery" yaml:"delivery"`
	Reliability float64 `json:"reliability" yaml:"reliability"`
	Returns     float64 `json:"returns" yaml:"returns"`
	SpecMatch   float64 `json:"spec_match" yaml:"spec_match"`
}

// DefaultWeights 默认权重，和恰为 1.0。
func DefaultWeights() Weights {
	return Weights{Price: 0.35, Delivery: 0.20, Reliability: 0.20, Returns: 0.10, SpecMatch: 0.15}
}

// Get 按维度取权重。
func (w Weights) Get(c Criterion) float64 {
	switch c {
	case CriterionPrice:
		return w.Price
	case CriterionDelivery:
		return w.Delivery
	case CriterionReliability:
		return w.Reliability
	case CriterionReturns:
		return w.Returns
	case CriterionSpecMatch:
		return w.SpecMatch
	}
	return 0
}

// Sum 返回权重和。
func (w Weights) Sum() float64 {
	return w.Price + w.Delivery + w.Reliability + w.Returns + w.SpecMatch
}

// ValidateWeights 权重和与 1.0 的差不超过 0.01 时返回 true。
func ValidateWeights(w Weights) bool {
	return math.Abs(w.Sum()-1.0) <= WeightTolerance
}

// NormalizeWeights 按比例缩放到和为 1；和为 0 时原样返回，调用方需视为非法输入。
func NormalizeWeights(w Weights) Weights {
	sum := w.Sum()
	if sum == 0 {
		return w
	}
	return Weights{
		Price:       w.Price / sum,
		Delivery:    w.Delivery / sum,
		Reliability: w.Reliability / sum,
		Returns:     w.Returns / sum,
		SpecMatch:   w.SpecMatch / sum,
	}
}

// DecisionSpec 用户的排序策略与硬过滤条件。
type DecisionSpec struct {
	Query            string      `json:"query"`
	BudgetMax        float64     `json:"budget_max"`
	ConditionAllowed []Condition `json:"condition_allowed"`
	DeliveryPriority Level       `json:"delivery_priority"`
	RiskTolerance    Level       `json:"risk_tolerance"`
	RequiredKeywords []string    `json:"required_keywords"`
	BannedKeywords   []string    `json:"banned_keywords"`
	BrandWhitelist   []string    `json:"brand_whitelist"`
	BrandBlacklist   []string    `json:"brand_blacklist"`
	Weights          Weights     `json:"weights"`
}

// DefaultDecisionSpec 返回默认策略，每次调用均为新对象。
func DefaultDecisionSpec() DecisionSpec {
	return DefaultDecisionSpecWithBudget(DefaultBudgetMax)
}

// DefaultDecisionSpecWithBudget 与 DefaultDecisionSpec 相同，但使用指定预算。
func DefaultDecisionSpecWithBudget(budget float64) DecisionSpec {
	if budget <= 0 {
		budget = DefaultBudgetMax
	}
	return DecisionSpec{
		BudgetMax:        budget,
		ConditionAllowed: []Condition{ConditionNew, ConditionRefurb},
		DeliveryPriority: LevelMed,
		RiskTolerance:    LevelMed,
		RequiredKeywords: []string{},
		BannedKeywords:   []string{},
		BrandWhitelist:   []string{},
		BrandBlacklist:   []string{},
		Weights:          DefaultWeights(),
	}
}

// Clone 深拷贝切片字段。
func (s DecisionSpec) Clone() DecisionSpec {
	c := s
	c.ConditionAllowed = append([]Condition{}, s.ConditionAllowed...)
	c.RequiredKeywords = append([]string{}, s.RequiredKeywords...)
	c.BannedKeywords = append([]string{}, s.BannedKeywords...)
	c.BrandWhitelist = append([]string{}, s.BrandWhitelist...)
	c.BrandBlacklist = append([]string{}, s.BrandBlacklist...)
	return c
}

// Normalized 返回可直接交给排序引擎的副本：补默认值并归一化权重。
// 权重含负数或和为 0 时返回错误。
func (s DecisionSpec) Normalized() (DecisionSpec, error) {
	c := s.Clone()
	c.Query = strings.TrimSpace(c.Query)
	if c.BudgetMax < 0 || math.IsNaN(c.BudgetMax) || math.IsInf(c.BudgetMax, 0) {
		return DecisionSpec{}, fmt.Errorf("invalid budget_max %v", c.BudgetMax)
	}
	if c.BudgetMax == 0 {
		c.BudgetMax = DefaultBudgetMax
	}
	if len(c.ConditionAllowed) == 0 {
		c.ConditionAllowed = []Condition{ConditionNew, ConditionRefurb}
	}
	c.DeliveryPriority = normalizeLevel(c.DeliveryPriority)
	c.RiskTolerance = normalizeLevel(c.RiskTolerance)
	for _, crit := range Criteria {
		v := c.Weights.Get(crit)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return DecisionSpec{}, fmt.Errorf("invalid weight %s=%v", crit, v)
		}
	}
	// 容差内的权重也要缩放，否则总分不再等于各维度的加权和。
	if c.Weights.Sum() == 0 {
		return DecisionSpec{}, ErrInvalidWeights
	}
	c.Weights = NormalizeWeights(c.Weights)
	return c, nil
}

// AllowsCondition 判断成色是否在允许列表中。
func (s DecisionSpec) AllowsCondition(c Condition) bool {
	for _, allowed := range s.ConditionAllowed {
		if allowed == c {
			return true
		}
	}
	return false
}

func normalizeLevel(l Level) Level {
	switch Level(strings.ToLower(strings.TrimSpace(string(l)))) {
	case LevelLow, "l":
		return LevelLow
	case LevelHigh, "h":
		return LevelHigh
	case "medium", LevelMed:
		return LevelMed
	}
	return LevelMed
}
