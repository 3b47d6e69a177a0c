package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eduard256/wb-mcp-server/internal/catalog"
)

// Search limit defaults applied by the dispatcher before routing.
const (
	defaultLimit = 20
	maxLimit     = 100
)

// Catalog is the acquisition surface the tools dispatch into. Every tool
// bottoms out in exactly one of these calls.
type Catalog interface {
	Search(ctx context.Context, p catalog.SearchParams) ([]catalog.Product, error)
	GetDetail(ctx context.Context, id int64) (*catalog.ProductDetail, error)
	GetList(ctx context.Context, ids []int64) ([]catalog.ListItem, error)
	GetFilters(ctx context.Context, query string) (*catalog.FiltersResult, error)
	SetDestination(ctx context.Context, address string) (*catalog.Destination, error)
}

// tool pairs a declared schema with its handler.
type tool struct {
	schema  ToolSchema
	handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// callerError marks invalid input: reported as a failure result, never a
// transport error and never a crash.
type callerError struct{ msg string }

func (e *callerError) Error() string { return e.msg }

func callerErrorf(format string, args ...interface{}) error {
	return &callerError{msg: fmt.Sprintf(format, args...)}
}

// Registry maps the fixed set of named operations to their input contract and
// to one catalog call.
type Registry struct {
	catalog Catalog
	log     *zap.Logger
	order   []string
	tools   map[string]*tool
}

// NewRegistry builds the fixed tool table over the given catalog.
func NewRegistry(cat Catalog, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		catalog: cat,
		log:     log,
		tools:   make(map[string]*tool),
	}
	r.register(searchSchema, r.handleSearch)
	r.register(detailSchema, r.handleDetail)
	r.register(listSchema, r.handleList)
	r.register(destinationSchema, r.handleDestination)
	r.register(filtersSchema, r.handleFilters)
	return r
}

func (r *Registry) register(schema ToolSchema, h func(context.Context, map[string]interface{}) (interface{}, error)) {
	r.order = append(r.order, schema.Name)
	r.tools[schema.Name] = &tool{schema: schema, handler: h}
}

// ListTools returns the tool table verbatim, in registration order.
func (r *Registry) ListTools() []ToolSchema {
	out := make([]ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].schema)
	}
	return out
}

// Call validates and routes one tool invocation. Caller errors and runtime
// failures both come back as typed failure results.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) *CallResult {
	t, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	value, err := t.handler(ctx, args)
	if err != nil {
		var caller *callerError
		switch {
		case errors.As(err, &caller):
			return errorResult(caller.msg)
		case errors.Is(err, catalog.ErrNotFound):
			return errorResult(err.Error())
		default:
			r.log.Error("tool call failed", zap.String("tool", name), zap.Error(err))
			return errorResult(fmt.Sprintf("%s failed: %v", name, err))
		}
	}

	result, err := textResult(value)
	if err != nil {
		r.log.Error("tool result marshal failed", zap.String("tool", name), zap.Error(err))
		return errorResult(fmt.Sprintf("%s failed: %v", name, err))
	}
	return result
}

func (r *Registry) handleSearch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, ok := argString(args, "query")
	if !ok || query == "" {
		return nil, callerErrorf("query is required")
	}
	p := catalog.SearchParams{
		Query:    query,
		Limit:    clampLimit(argIntDefault(args, "limit", defaultLimit)),
		Page:     argIntDefault(args, "page", 1),
		PriceMin: argFloatDefault(args, "price_min", 0),
		PriceMax: argFloatDefault(args, "price_max", 0),
	}
	if sort, ok := argString(args, "sort"); ok {
		p.Sort = sort
	}
	return r.catalog.Search(ctx, p)
}

func (r *Registry) handleDetail(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, ok := argInt64(args, "product_id")
	if !ok || id <= 0 {
		return nil, callerErrorf("product_id is required and must be a positive number")
	}
	return r.catalog.GetDetail(ctx, id)
}

func (r *Registry) handleList(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ids, ok := argInt64Slice(args, "product_ids")
	if !ok || len(ids) == 0 {
		return nil, callerErrorf("product_ids is required and must be a non-empty array of numbers")
	}
	return r.catalog.GetList(ctx, ids)
}

func (r *Registry) handleDestination(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	address, ok := argString(args, "address")
	if !ok || address == "" {
		return nil, callerErrorf("address is required")
	}
	return r.catalog.SetDestination(ctx, address)
}

func (r *Registry) handleFilters(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, ok := argString(args, "query")
	if !ok || query == "" {
		return nil, callerErrorf("query is required")
	}
	return r.catalog.GetFilters(ctx, query)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Argument accessors tolerate the number representations JSON decoding
// produces (float64) alongside integer-typed test inputs.

func argString(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func argInt64(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func argIntDefault(args map[string]interface{}, key string, def int) int {
	if v, ok := argInt64(args, key); ok {
		return int(v)
	}
	return def
}

func argFloatDefault(args map[string]interface{}, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f
		}
	}
	return def
}

func argInt64Slice(args map[string]interface{}, key string) ([]int64, bool) {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case float64:
			out = append(out, int64(v))
		case int:
			out = append(out, int64(v))
		case int64:
			out = append(out, v)
		default:
			return nil, false
		}
	}
	return out, true
}
