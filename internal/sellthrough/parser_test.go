package sellthrough

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecords(t *testing.T) {
	text := "SKU,Title,Days in Stock,Days out of Stock,Units Sold,Sell-through Rate,Grade\n" +
		"ABC-1,Widget,20,10,45,\"75%\",A\n" +
		"DEF-2,\"Gadget, large\",5,25,,,B\n"

	records, err := Records(text)
	require.NoError(t, err)
	require.Len(t, records, 2)

	abc := records["ABC-1"]
	assert.Equal(t, "ABC-1", abc.SKU)
	assert.Equal(t, "Widget", abc.Title)
	assert.Equal(t, "A", abc.Grade)
	assert.Equal(t, 20, abc.DaysInStock)
	assert.Equal(t, 10, abc.DaysOutOfStock)
	require.NotNil(t, abc.UnitsSold)
	assert.Equal(t, 45, *abc.UnitsSold)
	require.NotNil(t, abc.SellThroughRate)
	assert.Equal(t, "75", abc.SellThroughRate.String())

	def := records["DEF-2"]
	assert.Equal(t, "Gadget, large", def.Title)
	assert.Nil(t, def.UnitsSold, "blank cell is unreported, not zero")
	assert.Nil(t, def.SellThroughRate)
}

func TestRecords_ZeroIsNotNull(t *testing.T) {
	text := "SKU,Days in Stock,Units Sold\nABC,10,0\n"

	records, err := Records(text)
	require.NoError(t, err)

	require.NotNil(t, records["ABC"].UnitsSold)
	assert.Equal(t, 0, *records["ABC"].UnitsSold)
}

func TestRecords_NormalizesAndLastWins(t *testing.T) {
	text := "SKU,Days in Stock\n" +
		"ABC-#,1\n" +
		"ABC ##,2\n" +
		"   ,9\n"

	records, err := Records(text)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, 2, records["ABC"].DaysInStock)
	assert.Equal(t, "ABC ##", records["ABC"].SKU)
}

func TestRecords_ThousandsSeparators(t *testing.T) {
	text := "SKU,Days in Stock,Units Sold\nABC,30,\"1,204\"\n"

	records, err := Records(text)
	require.NoError(t, err)

	require.NotNil(t, records["ABC"].UnitsSold)
	assert.Equal(t, 1204, *records["ABC"].UnitsSold)
}

func TestRecords_MissingRequiredColumns(t *testing.T) {
	_, err := Records("Title,Days in Stock\nWidget,10\n")
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = Records("SKU,Title\nABC,Widget\n")
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = Records("")
	assert.ErrorIs(t, err, ErrEmptyExport)
}

func TestParseTable_QuotingAndRowEndings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want [][]string
	}{
		{
			name: "doubled quote escape",
			in:   `"a,b""c",d`,
			want: [][]string{{`a,b"c`, "d"}},
		},
		{
			name: "embedded newline in quoted field",
			in:   "\"line1\nline2\",x\n",
			want: [][]string{{"line1\nline2", "x"}},
		},
		{
			name: "bare carriage return row endings",
			in:   "a,b\rc,d\r",
			want: [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name: "crlf row endings",
			in:   "a,b\r\nc,d\r\n",
			want: [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name: "trailing blank lines dropped",
			in:   "a,b\n\n\n",
			want: [][]string{{"a", "b"}},
		},
		{
			name: "no trailing newline",
			in:   "a,b",
			want: [][]string{{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTable(tt.in))
		})
	}
}
