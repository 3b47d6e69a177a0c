package mcp

import "encoding/json"

// The fixed tool table. Input contracts are declared as JSON Schema so
// clients can validate before calling; the dispatcher re-checks required
// fields and clamps numeric bounds on its side.

var searchSchema = ToolSchema{
	Name:        "wb_search",
	Description: "Search the Wildberries catalog. Returns summary cards with reconciled prices.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query text"},
			"sort": {
				"type": "string",
				"enum": ["popular", "rate", "priceup", "pricedown", "newly", "benefit"],
				"description": "Sort order, default popular"
			},
			"page": {"type": "integer", "minimum": 1, "description": "Results page, default 1"},
			"price_min": {"type": "number", "minimum": 0, "description": "Lower price bound in rubles"},
			"price_max": {"type": "number", "minimum": 0, "description": "Upper price bound in rubles"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 100, "description": "Max cards to return, default 20"}
		},
		"required": ["query"]
	}`),
}

var detailSchema = ToolSchema{
	Name:        "wb_get_product_details",
	Description: "Fetch the full record of one product: prices, discount, seller, stock by variant, description, attributes.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"product_id": {"type": "integer", "description": "Numeric catalog identifier"}
		},
		"required": ["product_id"]
	}`),
}

var listSchema = ToolSchema{
	Name:        "wb_get_products_list",
	Description: "Fetch summary records for several products in one descriptor call.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"product_ids": {
				"type": "array",
				"items": {"type": "integer"},
				"minItems": 1,
				"description": "Numeric catalog identifiers"
			}
		},
		"required": ["product_ids"]
	}`),
}

var destinationSchema = ToolSchema{
	Name:        "wb_set_destination",
	Description: "Set the delivery destination. Prices and stock in subsequent calls reflect the resolved zone.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"address": {"type": "string", "description": "Free-text delivery address"}
		},
		"required": ["address"]
	}`),
}

var filtersSchema = ToolSchema{
	Name:        "wb_get_filters",
	Description: "Discover the filter controls available for a search query, plus the fixed sort options and query parameter semantics.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query text"}
		},
		"required": ["query"]
	}`),
}
