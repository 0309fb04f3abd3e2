package views

import (
	"strconv"

	"github.com/nimeshabuddhika/woo-order-exporter/pkg/filters"
	"github.com/nimeshabuddhika/woo-order-exporter/pkg/woocommerce"
)

// FetchRequest starts or repeats a fetch. Credentials are checked by the fetcher so the
// caller gets the same configuration error as any other client.
type FetchRequest struct {
	SiteURL        string `json:"siteUrl"`
	ConsumerKey    string `json:"consumerKey"`
	ConsumerSecret string `json:"consumerSecret"`
	DateMode       string `json:"dateMode"`
	MonthsAgo      int    `json:"monthsAgo" binding:"gte=0"`
	StartDate      string `json:"startDate"` // YYYY-MM-DD
	EndDate        string `json:"endDate"`
}

func (r FetchRequest) ToFetchRequest() woocommerce.FetchRequest {
	raw := filters.Raw{
		DateMode:  r.DateMode,
		MonthsAgo: strconv.Itoa(r.MonthsAgo),
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}
	return woocommerce.FetchRequest{
		Credentials: woocommerce.Credentials{
			SiteURL:        r.SiteURL,
			ConsumerKey:    r.ConsumerKey,
			ConsumerSecret: r.ConsumerSecret,
		},
		Criteria: raw.Parse(),
	}
}

// ExportQuery adds the export source to the filter params.
type ExportQuery struct {
	filters.Raw
	Scope string `form:"scope"`
}
