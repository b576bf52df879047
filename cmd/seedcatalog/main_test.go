package main

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItems(t *testing.T) {
	id := uuid.New()
	csv := "id,name,version,msrp,min_price\n" +
		id.String() + ",Widget X,v2,20.00,5\n" +
		",  Gadget ,,30,0\n"

	items, err := parseItems(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "Widget X", items[0].Name)
	assert.Equal(t, "v2", items[0].Version)
	assert.True(t, items[0].MSRP.Equal(decimal.NewFromInt(20)))

	assert.NotEqual(t, uuid.Nil, items[1].ID)
	assert.Equal(t, "Gadget", items[1].Name)
	assert.True(t, items[1].MinPrice.IsZero())
}

func TestParseItems_Errors(t *testing.T) {
	cases := map[string]string{
		"bad id":         "nope,Widget,,1,1\n",
		"missing name":   ",,,1,1\n",
		"bad msrp":       ",Widget,,abc,1\n",
		"negative price": ",Widget,,1,-1\n",
		"short row":      ",Widget,1\n",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseItems(strings.NewReader(csv))
			assert.Error(t, err)
		})
	}
}
