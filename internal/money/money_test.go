package money_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"

	"github.com/tradefloor/auctioneer/internal/money"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    money.Amount
		wantErr error
	}{
		{in: "125.50", want: 12550},
		{in: "0.01", want: 1},
		{in: "500", want: 50000},
		{in: "0", want: 0},
		{in: "-3.25", want: -325},
		{in: "1.005", wantErr: money.ErrNotRepresentable},
		{in: "99999999999999999999", wantErr: money.ErrNotRepresentable},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := money.Parse(tt.in)
			if tt.wantErr != nil {
				check.True(t, errors.Is(err, tt.wantErr))
				return
			}
			check.Nil(t, err)
			check.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Garbage(t *testing.T) {
	_, err := money.Parse("not-a-number")
	check.Error(t, err)
}

func TestParsePositive(t *testing.T) {
	got, err := money.ParsePositive("10.00")
	check.Nil(t, err)
	check.Equal(t, money.Amount(1000), got)

	_, err = money.ParsePositive("0")
	check.True(t, errors.Is(err, money.ErrNotPositive))

	_, err = money.ParsePositive("-1.00")
	check.True(t, errors.Is(err, money.ErrNotPositive))
}

func TestString_RoundTrip(t *testing.T) {
	check.Equal(t, "125.50", money.FromMinor(12550).String())
	check.Equal(t, "0.05", money.FromMinor(5).String())
	check.Equal(t, "500.00", money.FromMinor(50000).String())
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(money.FromMinor(12550))
	check.Nil(t, err)
	check.Equal(t, `"125.50"`, string(data))

	var a money.Amount
	check.Nil(t, json.Unmarshal([]byte(`"99.99"`), &a))
	check.Equal(t, money.Amount(9999), a)

	check.Error(t, json.Unmarshal([]byte(`"1.005"`), &a))
}
