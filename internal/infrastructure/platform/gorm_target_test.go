package platform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/migrator/internal/domain/migration"
)

func seedPartners(t *testing.T, target *GormTarget) []migration.TargetID {
	t.Helper()
	ctx := context.Background()
	var ids []migration.TargetID
	for _, values := range []migration.TransformedRecord{
		{"name": "Acme Corp", "email": "ops@acme.test", "customer_rank": 1},
		{"name": "Globex", "customer_rank": 1, "is_company": true},
		{"name": "Initech", "supplier_rank": 1},
	} {
		id, err := target.Create(ctx, "res.partner", values)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := target.Create(ctx, "product.product", migration.TransformedRecord{"name": "Acme Widget"})
	require.NoError(t, err)
	return ids
}

func TestGormTarget_CreateAndSearch(t *testing.T) {
	target := NewGormTarget(setupTargetDB(t))
	ctx := context.Background()
	ids := seedPartners(t, target)

	require.Len(t, ids, 3)
	assert.Less(t, ids[0], ids[1])

	tests := []struct {
		name    string
		filters []migration.Filter
		want    []migration.TargetID
	}{
		{"no filters returns model records in id order", nil, ids},
		{"equals string", []migration.Filter{migration.Eq("name", "Globex")}, ids[1:2]},
		{"equals number", []migration.Filter{migration.Eq("customer_rank", 1)}, ids[:2]},
		{"equals bool", []migration.Filter{migration.Eq("is_company", true)}, ids[1:2]},
		{"not equals includes missing", []migration.Filter{{Field: "customer_rank", Operator: migration.OpNotEquals, Value: 1}}, ids[2:]},
		{"in", []migration.Filter{{Field: "name", Operator: migration.OpIn, Value: []string{"Initech", "Acme Corp"}}}, []migration.TargetID{ids[0], ids[2]}},
		{"id in", []migration.Filter{{Field: "id", Operator: migration.OpIn, Value: []migration.TargetID{ids[1]}}}, ids[1:2]},
		{"ilike substring", []migration.Filter{{Field: "name", Operator: migration.OpILike, Value: "acme"}}, ids[:1]},
		{"ilike wildcard", []migration.Filter{{Field: "name", Operator: migration.OpILike, Value: "%EX"}}, ids[1:2]},
		{"conjunction", []migration.Filter{migration.Eq("customer_rank", 1), {Field: "name", Operator: migration.OpILike, Value: "glo%"}}, ids[1:2]},
		{"no match", []migration.Filter{migration.Eq("name", "Hooli")}, []migration.TargetID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := target.Search(ctx, "res.partner", tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	n, err := target.Count(ctx, "product.product")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormTarget_SearchTextEqualityAcrossStoredTypes(t *testing.T) {
	target := NewGormTarget(setupTargetDB(t))
	ctx := context.Background()

	var ids []migration.TargetID
	for _, values := range []migration.TransformedRecord{
		{"code": "42"},
		{"code": 42},
		{"code": json.Number("2.50")},
		{"code": true},
		{"name": "no code"},
		{"code": `say "hi"`},
	} {
		id, err := target.Create(ctx, "account.account", values)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	tests := []struct {
		name string
		want any
		ids  []migration.TargetID
	}{
		{"text and number literal", "42", ids[0:2]},
		{"decimal literal", "2.50", ids[2:3]},
		{"bool literal", "true", ids[3:4]},
		{"escaped text", `say "hi"`, ids[5:6]},
		{"no match", "43", []migration.TargetID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := target.Search(ctx, "account.account", []migration.Filter{migration.Eq("code", tt.want)})
			require.NoError(t, err)
			assert.Equal(t, tt.ids, got)
		})
	}

	got, err := target.Search(ctx, "account.account", []migration.Filter{migration.Eq("id", ids[4])})
	require.NoError(t, err)
	assert.Equal(t, ids[4:5], got)

	got, err = target.Search(ctx, "account.account", []migration.Filter{{Field: "id", Operator: migration.OpIn, Value: []migration.TargetID{}}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLNarrowing(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		filter   migration.Filter
		wantCond string
		wantArgs []any
		wantOK   bool
	}{
		{
			name: "sqlite text equality", dialect: "sqlite", filter: migration.Eq("name", "Acme"),
			wantCond: `(json_type("values", ?) <> 'text' OR json_extract("values", ?) = ?)`,
			wantArgs: []any{`$."name"`, `$."name"`, "Acme"}, wantOK: true,
		},
		{
			name: "postgres text equality", dialect: "postgres", filter: migration.Eq("name", "Acme"),
			wantCond: `(jsonb_typeof(("values")::jsonb -> CAST(? AS text)) <> 'string' OR ("values")::jsonb ->> CAST(? AS text) = ?)`,
			wantArgs: []any{"name", "name", "Acme"}, wantOK: true,
		},
		{
			name: "id equality", dialect: "mysql", filter: migration.Eq("id", migration.TargetID(7)),
			wantCond: "id = ?", wantArgs: []any{int64(7)}, wantOK: true,
		},
		{
			name: "id in", dialect: "sqlite", filter: migration.Filter{Field: "id", Operator: migration.OpIn, Value: []int{3, 5}},
			wantCond: "id IN ?", wantArgs: []any{[]int64{3, 5}}, wantOK: true,
		},
		{name: "non numeric id", dialect: "sqlite", filter: migration.Eq("id", "x")},
		{name: "number value", dialect: "sqlite", filter: migration.Eq("customer_rank", 1)},
		{name: "ilike", dialect: "sqlite", filter: migration.Filter{Field: "name", Operator: migration.OpILike, Value: "a"}},
		{name: "quoted field", dialect: "sqlite", filter: migration.Eq(`a"b`, "x")},
		{name: "unknown dialect", dialect: "mysql", filter: migration.Eq("name", "Acme")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, args, ok := sqlNarrowing(tt.dialect, tt.filter)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCond, cond)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestGormTarget_SearchErrors(t *testing.T) {
	target := NewGormTarget(setupTargetDB(t))
	ctx := context.Background()

	_, err := target.Search(ctx, "res.partner", []migration.Filter{{Field: "name", Operator: "~", Value: "x"}})
	assert.ErrorContains(t, err, "unsupported filter operator")

	_, err = target.Search(ctx, "res.partner", []migration.Filter{{Field: "name", Operator: migration.OpIn, Value: "x"}})
	assert.ErrorContains(t, err, "expects a list")

	_, err = target.Create(ctx, "", migration.TransformedRecord{})
	assert.ErrorContains(t, err, "model is required")
}

func TestGormTarget_SearchRead(t *testing.T) {
	target := NewGormTarget(setupTargetDB(t))
	ctx := context.Background()
	ids := seedPartners(t, target)

	rows, err := target.SearchRead(ctx, "res.partner", []migration.Filter{migration.Eq("name", "Acme Corp")}, []string{"email"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"id": ids[0], "email": "ops@acme.test"}, rows[0])

	rows, err = target.SearchRead(ctx, "res.partner", []migration.Filter{migration.Eq("name", "Globex")}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["is_company"])
	assert.Equal(t, float64(1), rows[0]["customer_rank"])
}

func TestGormTarget_StoresCreateDirectives(t *testing.T) {
	target := NewGormTarget(setupTargetDB(t))
	ctx := context.Background()

	_, err := target.Create(ctx, "account.move", migration.TransformedRecord{
		"name": "INV-1",
		"invoice_line_ids": []migration.CreateDirective{
			{Values: map[string]any{"name": "Widget", "quantity": 2.0}},
		},
	})
	require.NoError(t, err)

	rows, err := target.SearchRead(ctx, "account.move", nil, []string{"invoice_line_ids"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	lines, ok := rows[0]["invoice_line_ids"].([]any)
	require.True(t, ok)
	require.Len(t, lines, 1)
	assert.Equal(t, []any{float64(0), float64(0), map[string]any{"name": "Widget", "quantity": float64(2)}}, lines[0])
}

func TestLikePattern(t *testing.T) {
	re, err := likePattern("a_c%")
	require.NoError(t, err)
	assert.True(t, re.MatchString("ABCdef"))
	assert.False(t, re.MatchString("xabc"))

	re, err = likePattern("1.5")
	require.NoError(t, err)
	assert.True(t, re.MatchString("v1.5x"))
	assert.False(t, re.MatchString("1x5"))
}
