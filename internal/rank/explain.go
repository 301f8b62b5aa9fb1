package rank

import (
	"fmt"
	"strings"

	"deal-ranker/internal/model"
)

const (
	highScore = 0.8
	lowScore  = 0.3
)

// explain 只对偏高或偏低的维度给出说明，措辞取自打分用到的字段。
func explain(l model.Listing, spec model.DecisionSpec, breakdown map[model.Criterion]float64, terms []string) []model.Bullet {
	bullets := make([]model.Bullet, 0, len(model.Criteria))
	for _, c := range model.Criteria {
		score := breakdown[c]
		var b model.Bullet
		switch {
		case score >= highScore:
			b = model.Bullet{Text: positiveText(c, l, spec, terms), Type: model.BulletPositive}
		case score <= lowScore:
			b = model.Bullet{Text: negativeText(c, l, spec, terms), Type: model.BulletNegative}
		default:
			continue
		}
		if b.Text != "" {
			bullets = append(bullets, b)
		}
	}
	return bullets
}

func positiveText(c model.Criterion, l model.Listing, spec model.DecisionSpec, terms []string) string {
	switch c {
	case model.CriterionPrice:
		return fmt.Sprintf("%s is well under the %s budget", money(l.Price.Value, l.Price.Currency), money(spec.BudgetMax, l.Price.Currency))
	case model.CriterionDelivery:
		return shippingText(l.Shipping)
	case model.CriterionReliability:
		return sellerText(l.Seller)
	case model.CriterionReturns:
		if l.Returns.WindowDays != nil {
			return fmt.Sprintf("%d-day returns", *l.Returns.WindowDays)
		}
		return "Returns accepted"
	case model.CriterionSpecMatch:
		return fmt.Sprintf("Matches %d of %d search terms", matchedTerms(l, terms), len(terms))
	}
	return ""
}

func negativeText(c model.Criterion, l model.Listing, spec model.DecisionSpec, terms []string) string {
	switch c {
	case model.CriterionPrice:
		if l.Price.Value > spec.BudgetMax {
			return fmt.Sprintf("%s is over the %s budget", money(l.Price.Value, l.Price.Currency), money(spec.BudgetMax, l.Price.Currency))
		}
		return fmt.Sprintf("%s is near the top of the price range", money(l.Price.Value, l.Price.Currency))
	case model.CriterionDelivery:
		return shippingText(l.Shipping)
	case model.CriterionReliability:
		return sellerText(l.Seller)
	case model.CriterionReturns:
		if l.Returns.Available != nil && !*l.Returns.Available {
			return "Returns not accepted"
		}
		if l.Returns.WindowDays != nil {
			return fmt.Sprintf("Short %d-day return window", *l.Returns.WindowDays)
		}
	case model.CriterionSpecMatch:
		return fmt.Sprintf("Matches only %d of %d search terms", matchedTerms(l, terms), len(terms))
	}
	return ""
}

func shippingText(s model.Shipping) string {
	parts := make([]string, 0, 2)
	if s.Cost != nil {
		if *s.Cost == 0 {
			parts = append(parts, "Free shipping")
		} else {
			parts = append(parts, fmt.Sprintf("Shipping costs $%.2f", *s.Cost))
		}
	}
	if s.EtaDays != nil {
		parts = append(parts, fmt.Sprintf("arrives in %d %s", *s.EtaDays, plural(*s.EtaDays, "day")))
	} else if s.Method == model.ShippingExpedited {
		parts = append(parts, "expedited delivery")
	}
	return capitalize(strings.Join(parts, ", "))
}

func sellerText(s model.Seller) string {
	var reviews string
	if s.Reviews != nil {
		reviews = fmt.Sprintf("%d %s", *s.Reviews, plural(*s.Reviews, "review"))
		if *s.Reviews < 50 {
			reviews = "only " + reviews
		}
	}
	var text string
	switch {
	case s.Rating != nil && reviews != "":
		text = fmt.Sprintf("Seller rated %.0f%% with %s", *s.Rating, reviews)
	case s.Rating != nil:
		text = fmt.Sprintf("Seller rated %.0f%%", *s.Rating)
	case reviews != "":
		text = "Seller has " + reviews
	default:
		return ""
	}
	if s.IsOfficial != nil && *s.IsOfficial {
		text += " (business seller)"
	}
	return text
}

func money(v float64, currency string) string {
	if currency == "" || currency == model.DefaultCurrency {
		return fmt.Sprintf("$%.2f", v)
	}
	return fmt.Sprintf("%.2f %s", v, currency)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
