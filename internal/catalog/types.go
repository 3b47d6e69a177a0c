// Package catalog implements the marketplace data-acquisition engine: search
// and detail extraction through the shared browser session, descriptor-based
// price reconciliation, content-mirror resolution, and the process-wide
// destination context.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound reports that the requested item does not exist in any consulted
// source. It is a business outcome, not a transport failure.
var ErrNotFound = errors.New("not found")

// Product is one summary card extracted from a rendered search results page.
// Price may be nil right after DOM extraction; the reconciliation pass fills
// it from the card descriptor.
type Product struct {
	ID             int64    `json:"id"`
	URL            string   `json:"url"`
	Name           string   `json:"name"`
	Brand          string   `json:"brand"`
	Price          *float64 `json:"price"`
	PriceFormatted string   `json:"price_formatted"`
	Thumbnail      string   `json:"thumbnail,omitempty"`
}

// WarehouseStock is the per-warehouse availability of one variant.
type WarehouseStock struct {
	WarehouseID  int64 `json:"warehouse_id"`
	Quantity     int   `json:"quantity"`
	DeliveryFrom int   `json:"delivery_hours_from"`
	DeliveryTo   int   `json:"delivery_hours_to"`
}

// VariantStock describes one size/option of a product with its price and
// stock breakdown.
type VariantStock struct {
	Name     string           `json:"name"`
	OptionID int64            `json:"option_id"`
	Price    *float64         `json:"price"`
	Stocks   []WarehouseStock `json:"stocks"`
}

// Attribute is one name/value characteristic from the content descriptor.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProductDetail is the full record assembled from the card descriptor
// (authoritative) and the basket content descriptor (best effort).
type ProductDetail struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Brand          string         `json:"brand"`
	BrandID        int64          `json:"brand_id"`
	Supplier       string         `json:"supplier"`
	SupplierID     int64          `json:"supplier_id"`
	SupplierRating float64        `json:"supplier_rating"`
	Rating         float64        `json:"rating"`
	Feedbacks      int            `json:"feedbacks"`
	Colors         []string       `json:"colors"`
	Images         []string       `json:"images"`
	PriceBasic     *float64       `json:"price_basic"`
	PriceFinal     *float64       `json:"price_final"`
	Discount       *int           `json:"discount_percent"`
	Sizes          []VariantStock `json:"sizes"`
	DeliveryFrom   int            `json:"delivery_hours_from"`
	DeliveryTo     int            `json:"delivery_hours_to"`
	Description    string         `json:"description"`
	Attributes     []Attribute    `json:"attributes"`
	URL            string         `json:"url"`
}

// ListItem is the summary-detail hybrid returned by GetList.
type ListItem struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Brand         string   `json:"brand"`
	PriceBasic    *float64 `json:"price_basic"`
	PriceFinal    *float64 `json:"price_final"`
	Discount      *int     `json:"discount_percent"`
	Rating        float64  `json:"rating"`
	Feedbacks     int      `json:"feedbacks"`
	TotalQuantity int      `json:"total_quantity"`
	URL           string   `json:"url"`
}

// Destination is the outcome of a destination-setting call. Success false
// means geo resolution failed and the previously active zone stays in effect.
type Destination struct {
	Success    bool    `json:"success"`
	Address    string  `json:"address,omitempty"`
	Dest       string  `json:"dest,omitempty"`
	Candidates []int64 `json:"candidates,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// SortOption is one entry of the fixed sort enumeration.
type SortOption struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// FiltersResult echoes the query alongside discovered filter labels and the
// fixed sort/parameter enumerations.
type FiltersResult struct {
	Query       string            `json:"query"`
	Filters     []string          `json:"filters"`
	SortOptions []SortOption      `json:"sort_options"`
	Params      map[string]string `json:"params"`
}

// SearchParams are the validated inputs of one search extraction.
type SearchParams struct {
	Query    string
	Sort     string
	Page     int
	PriceMin float64
	PriceMax float64
	Limit    int
}

// cardResponse mirrors the card descriptor payload returned by the
// price/stock endpoint.
type cardResponse struct {
	Data struct {
		Products []cardProduct `json:"products"`
	} `json:"data"`
}

type cardProduct struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand"`
	BrandID        int64   `json:"brandId"`
	Supplier       string  `json:"supplier"`
	SupplierID     int64   `json:"supplierId"`
	SupplierRating float64 `json:"supplierRating"`
	ReviewRating   float64 `json:"reviewRating"`
	Feedbacks      int     `json:"feedbacks"`
	Pics           int     `json:"pics"`
	Colors         []struct {
		Name string `json:"name"`
	} `json:"colors"`
	Sizes []cardSize `json:"sizes"`
	Time1 int        `json:"time1"`
	Time2 int        `json:"time2"`
}

type cardSize struct {
	Name     string `json:"name"`
	OrigName string `json:"origName"`
	OptionID int64  `json:"optionId"`
	Price    *struct {
		Basic   int64 `json:"basic"`
		Product int64 `json:"product"`
		Total   int64 `json:"total"`
	} `json:"price"`
	Stocks []struct {
		Warehouse int64 `json:"wh"`
		Qty       int   `json:"qty"`
		Time1     int   `json:"time1"`
		Time2     int   `json:"time2"`
	} `json:"stocks"`
}

// ContentDescriptor is the per-item document served by the basket mirrors.
// Only the enrichment fields the detail record needs are decoded.
type ContentDescriptor struct {
	ImtName     string `json:"imt_name"`
	Description string `json:"description"`
	Options     []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"options"`
	GroupedOptions []struct {
		GroupName string `json:"group_name"`
		Options   []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"options"`
	} `json:"grouped_options"`
}

// valid reports whether the document is structurally a content descriptor and
// not a mirror error page.
func (d *ContentDescriptor) valid() bool {
	return d != nil && (d.ImtName != "" || d.Description != "" || len(d.Options) > 0 || len(d.GroupedOptions) > 0)
}

// attributes flattens options and grouped options into one list.
func (d *ContentDescriptor) attributes() []Attribute {
	if d == nil {
		return nil
	}
	attrs := make([]Attribute, 0, len(d.Options))
	for _, o := range d.Options {
		attrs = append(attrs, Attribute{Name: o.Name, Value: o.Value})
	}
	for _, g := range d.GroupedOptions {
		for _, o := range g.Options {
			attrs = append(attrs, Attribute{Name: o.Name, Value: o.Value})
		}
	}
	return attrs
}

// productURL builds the canonical catalog URL for an item.
func productURL(id int64) string {
	return fmt.Sprintf("https://www.wildberries.ru/catalog/%d/detail.aspx", id)
}

// decodeCardResponse parses a raw card descriptor payload.
func decodeCardResponse(raw []byte) ([]cardProduct, error) {
	var resp cardResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode card descriptor: %w", err)
	}
	return resp.Data.Products, nil
}
