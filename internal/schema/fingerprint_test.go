package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func salesSchema() map[string]interface{} {
	return map[string]interface{}{
		"public": map[string]interface{}{
			"orders": map[string]interface{}{
				"id":          "integer",
				"customer_id": "integer",
				"total":       "numeric",
			},
			"customers": map[string]interface{}{
				"id":   "integer",
				"name": "text",
			},
		},
	}
}

func TestCanonicalMatchesReferenceEncoding(t *testing.T) {
	doc := map[string]interface{}{
		"b": "Hé  LLo",
		"a": []interface{}{1, "X☃ y"},
		"c": "😀",
	}
	data, err := Canonical(doc)
	require.NoError(t, err)
	require.Equal(t, `{"a":[1,"x\u2603 y"],"b":"h\u00e9 llo","c":"\ud83d\ude00"}`, string(data))
}

func TestCanonicalEscapes(t *testing.T) {
	data, err := Canonical(map[string]interface{}{"k\"ey": "a\\b\"c", "n": nil, "t": true, "f": false})
	require.NoError(t, err)
	require.Equal(t, `{"f":false,"k\"ey":"a\\b\"c","n":null,"t":true}`, string(data))
}

func TestFingerprintFormat(t *testing.T) {
	fp, err := Fingerprint(salesSchema())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(fp, FingerprintPrefix))
	require.Len(t, strings.TrimPrefix(fp, FingerprintPrefix), 64)
}

func TestFingerprintDeterminism(t *testing.T) {
	base, err := Fingerprint(salesSchema())
	require.NoError(t, err)

	permuted := map[string]interface{}{}
	tables := salesSchema()["public"].(map[string]interface{})
	inner := map[string]interface{}{}
	// rebuild in a different insertion order and with typed maps
	inner["customers"] = map[string]string{"name": "text", "id": "integer"}
	inner["orders"] = tables["orders"]
	permuted["public"] = inner

	for i := 0; i < 20; i++ {
		fp, err := Fingerprint(permuted)
		require.NoError(t, err)
		require.Equal(t, base, fp)
	}
}

func TestFingerprintNormalizesLeaves(t *testing.T) {
	a := map[string]interface{}{"public": map[string]interface{}{"t": map[string]interface{}{"c": "Character  Varying"}}}
	b := map[string]interface{}{"public": map[string]interface{}{"t": map[string]interface{}{"c": " character varying "}}}
	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	require.Equal(t, fa, fb)
}

func TestFingerprintSensitivity(t *testing.T) {
	base, err := Fingerprint(salesSchema())
	require.NoError(t, err)
	seen := map[string]bool{base: true}
	types := []string{"bigint", "text", "numeric(10,2)", "real", "boolean", "jsonb"}
	for _, typ := range types {
		s := salesSchema()
		s["public"].(map[string]interface{})["orders"].(map[string]interface{})["total"] = typ
		fp, err := Fingerprint(s)
		require.NoError(t, err)
		require.False(t, seen[fp], "collision for type %s", typ)
		seen[fp] = true
	}
}

func TestParseKeepsNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "integral float keeps point", in: `1.0`, want: `1.0`},
		{name: "trailing zero dropped", in: `1.50`, want: `1.5`},
		{name: "big integer exact", in: `12345678901234567891`, want: `12345678901234567891`},
		{name: "negative integer", in: `-7`, want: `-7`},
		{name: "exponent integral", in: `1e2`, want: `100.0`},
		{name: "large float", in: `1e16`, want: `1e+16`},
		{name: "small float", in: `0.00001`, want: `1e-05`},
		{name: "negative zero", in: `-0.0`, want: `-0.0`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Parse([]byte(`{"version": ` + tc.in + `}`))
			require.NoError(t, err)
			data, err := Canonical(doc)
			require.NoError(t, err)
			require.Equal(t, `{"version":`+tc.want+`}`, string(data))
		})
	}

	_, err := Parse([]byte(`[1,2]`))
	require.Error(t, err)
}
