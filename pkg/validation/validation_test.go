package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/sheetmind/pkg/pagination"
)

type probe struct {
	Cell    string `validate:"omitempty,cellref"`
	Range   string `validate:"omitempty,a1range"`
	Formula string `validate:"omitempty,formula"`
	Tier    string `validate:"tier"`
	Mode    string `validate:"mode"`
	Cursor  string `validate:"omitempty,cursor"`
	Limit   int    `validate:"gte=0,lte=50"`
}

func TestValidateStruct(t *testing.T) {
	tok, err := pagination.EncodeCursor(pagination.Cursor{U: pagination.UnitSessions, Ps: 10})
	require.NoError(t, err)

	ok := probe{Cell: "'Sales Data'!B2", Range: "A2:A", Formula: "=SUM(B2:B9)", Tier: "Pro", Mode: "action", Cursor: tok}
	require.Empty(t, ValidateStruct(ok))
	require.Empty(t, ValidateStruct(probe{Range: "B:D"}))
	require.Empty(t, ValidateStruct(probe{Cell: "$C$10"}))

	cases := []struct {
		in   probe
		want string
	}{
		{probe{Cell: "B"}, "VALIDATION: cell must be a cell like B2 or 'Sheet 1'!B2"},
		{probe{Range: "A1:B2:C3"}, "VALIDATION: range must be a range like A1:D50"},
		{probe{Formula: "SUM(A1)"}, "FORMULA_INVALID: formula must start with ="},
		{probe{Tier: "gold"}, "VALIDATION: tier must be one of free, pro, team"},
		{probe{Mode: "shout"}, "VALIDATION: mode must be one of auto, chat, action"},
		{probe{Cursor: "!!!"}, "CURSOR_INVALID: failed to decode cursor; restart pagination"},
		{probe{Limit: 51}, "VALIDATION: limit must satisfy lte=50"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ValidateStruct(tc.in))
	}
}
