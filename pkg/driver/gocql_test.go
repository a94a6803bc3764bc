package driver

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/require"
)

func nativeType(typ gocql.Type) gocql.TypeInfo {
	return gocql.NewNativeType(4, typ, "")
}

// scanned runs v through gocql's codec into a scan target, as Iter.Scan
// does for a single column. A nil v is a CQL null.
func scanned(t *testing.T, info gocql.TypeInfo, v interface{}) interface{} {
	t.Helper()
	var data []byte
	if v != nil {
		var err error
		data, err = gocql.Marshal(info, v)
		require.NoError(t, err)
	}
	dest := scanTargets([]gocql.TypeInfo{info})[0]
	require.NoError(t, gocql.Unmarshal(info, data, dest))
	return dest
}

func TestConvertValue(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 8_000_000, time.UTC)

	for _, tc := range []struct {
		name string
		typ  gocql.Type
		in   interface{}
		want interface{}
	}{
		{"varchar", gocql.TypeVarchar, "alice", "alice"},
		{"ascii", gocql.TypeAscii, "release", "release"},
		{"empty text is not null", gocql.TypeText, "", ""},
		{"timestamp", gocql.TypeTimestamp, ts, ts.UnixMilli()},
		{"epoch timestamp is not null", gocql.TypeTimestamp, time.UnixMilli(0), int64(0)},
		{"int", gocql.TypeInt, 42, int32(42)},
		{"zero int is not null", gocql.TypeInt, 0, int32(0)},
		{"bigint", gocql.TypeBigInt, int64(1 << 40), int64(1 << 40)},
		{"counter", gocql.TypeCounter, int64(7), int64(7)},
		{"boolean", gocql.TypeBoolean, false, false},
		{"null varchar", gocql.TypeVarchar, nil, nil},
		{"null timestamp", gocql.TypeTimestamp, nil, nil},
		{"null int", gocql.TypeInt, nil, nil},
		{"null boolean", gocql.TypeBoolean, nil, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := convertValue(tc.typ, scanned(t, nativeType(tc.typ), tc.in))
			require.Equal(t, tc.typ, v.Type())
			require.Equal(t, tc.want, v.Raw())
			require.Equal(t, tc.want == nil, v.IsNull())
		})
	}
}

func TestExpandColumns(t *testing.T) {
	tuple := gocql.TupleTypeInfo{
		NativeType: gocql.NewNativeType(4, gocql.TypeTuple, ""),
		Elems:      []gocql.TypeInfo{nativeType(gocql.TypeInt), nativeType(gocql.TypeVarchar)},
	}
	columns, infos := expandColumns([]gocql.ColumnInfo{
		{Name: "id", TypeInfo: nativeType(gocql.TypeBigInt)},
		{Name: "pair", TypeInfo: tuple},
		{Name: "ok", TypeInfo: nativeType(gocql.TypeBoolean)},
	})

	require.Equal(t, []Column{
		{Name: "id", Type: gocql.TypeBigInt},
		{Name: gocql.TupleColumnName("pair", 0), Type: gocql.TypeInt},
		{Name: gocql.TupleColumnName("pair", 1), Type: gocql.TypeVarchar},
		{Name: "ok", Type: gocql.TypeBoolean},
	}, columns)
	require.Len(t, infos, len(columns))

	// A tuple column fills one scan target per element.
	data, err := gocql.Marshal(tuple, []interface{}{42, "left"})
	require.NoError(t, err)
	dest := scanTargets(infos[1:3])
	require.NoError(t, gocql.Unmarshal(tuple, data, dest))

	row := decodeRow(columns[1:3], dest)
	require.Equal(t, int32(42), row[0].Raw())
	require.Equal(t, "left", row[1].Raw())
}
