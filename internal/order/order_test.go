package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusShipped, true},
		{StatusProcessing, StatusDelivered, true},
		{StatusShipped, StatusProcessing, false},
		{StatusPending, StatusPending, false},
		{StatusShipped, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, Status("lost"), false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func validAddress() Address {
	return Address{
		Name:         "Asha Verma",
		Email:        "asha@example.com",
		Phone:        "+91 98765-43210",
		AddressLine1: "12 MG Road",
		City:         "Pune",
		State:        "MH",
		Pincode:      "411001",
	}
}

func TestAddressValidation(t *testing.T) {
	v := common.NewValidator()
	require.Error(t, v.Struct(validAddress()), "country code makes it 12 digits")

	a := validAddress()
	a.Phone = "98765-43210"
	require.NoError(t, v.Struct(a))

	a.Pincode = "41100"
	require.Error(t, v.Struct(a))

	a = validAddress()
	a.Phone = "9876543210"
	a.Email = "not-an-email"
	require.Error(t, v.Struct(a))

	a.Email = "asha@example.com"
	a.City = ""
	require.Error(t, v.Struct(a))
}
