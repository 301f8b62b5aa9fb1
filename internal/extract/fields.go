package extract

import "deal-ranker/internal/model"

// Fields 单个策略的部分结果，nil 表示该策略没有找到对应字段。
type Fields struct {
	Title        *string
	URL          *string
	ImageURL     *string
	Price        *float64
	Currency     *string
	Brand        *string
	Model        *string
	Condition    *model.Condition
	ShippingCost *float64
	ShippingText *string
	Rating       *float64
	Reviews      *int
	SellerName   *string
	InStock      *bool
	LowStock     *bool
	Sponsored    *bool
}

// Merge 只填充尚未获得的字段，先到先得。
func (f *Fields) Merge(o Fields) {
	if f.Title == nil {
		f.Title = o.Title
	}
	if f.URL == nil {
		f.URL = o.URL
	}
	if f.ImageURL == nil {
		f.ImageURL = o.ImageURL
	}
	if f.Price == nil {
		f.Price = o.Price
		if o.Price != nil && f.Currency == nil {
			f.Currency = o.Currency
		}
	}
	if f.Currency == nil {
		f.Currency = o.Currency
	}
	if f.Brand == nil {
		f.Brand = o.Brand
	}
	if f.Model == nil {
		f.Model = o.Model
	}
	if f.Condition == nil {
		f.Condition = o.Condition
	}
	if f.ShippingCost == nil {
		f.ShippingCost = o.ShippingCost
	}
	if f.ShippingText == nil {
		f.ShippingText = o.ShippingText
	}
	if f.Rating == nil {
		f.Rating = o.Rating
	}
	if f.Reviews == nil {
		f.Reviews = o.Reviews
	}
	if f.SellerName == nil {
		f.SellerName = o.SellerName
	}
	if f.InStock == nil {
		f.InStock = o.InStock
	}
	if f.LowStock == nil {
		f.LowStock = o.LowStock
	}
	if f.Sponsored == nil {
		f.Sponsored = o.Sponsored
	}
}

// Empty 判断是否一个字段都没有。
func (f Fields) Empty() bool {
	return f == Fields{}
}

// Listing 将字段落到完整的 Listing 上，未提供的字段保持默认值。
func (f Fields) Listing(source model.Source, pageURL string) model.Listing {
	l := model.NewListing()
	l.Source = source
	if f.Title != nil {
		l.Title = cleanText(*f.Title)
	}
	l.URL = pageURL
	if f.URL != nil && *f.URL != "" {
		l.URL = *f.URL
	}
	l.ImageURL = f.ImageURL
	if f.Price != nil {
		l.Price.Value = *f.Price
	}
	if f.Currency != nil && *f.Currency != "" {
		l.Price.Currency = *f.Currency
	}
	if f.Condition != nil {
		l.Condition = *f.Condition
	}
	l.Shipping.Cost = f.ShippingCost
	if f.ShippingText != nil {
		l.Shipping.EtaDays = ParseEtaDays(*f.ShippingText)
		l.Shipping.Method = ClassifyShippingMethod(*f.ShippingText)
	}
	l.Seller.Rating = f.Rating
	l.Seller.Reviews = f.Reviews
	if f.SellerName != nil {
		l.Seller.Name = *f.SellerName
	}
	l.Specs.Brand = f.Brand
	l.Specs.Model = f.Model
	terms := model.KeyTermsFromText(l.Title, 2, 10)
	if f.Brand != nil {
		terms = model.AppendKeyTerms(terms, *f.Brand)
	}
	l.Specs.KeyTerms = terms
	if f.Sponsored != nil {
		l.Signals.Sponsored = *f.Sponsored
	}
	l.Signals.LowStock = f.LowStock
	l.ID = model.ListingID(source, l.URL)
	return l
}
