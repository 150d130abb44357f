package formula

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_Basics(t *testing.T) {
	cases := []struct {
		name    string
		formula string
		ok      bool
		errs    []string
	}{
		{"empty", "   ", false, []string{"Empty formula"}},
		{"no equals", "SUM(A1:A3)", false, []string{"Formula must start with '='"}},
		{"only equals", "=  ", false, []string{"Empty formula after '='"}},
		{"simple sum", "=SUM(A2:A10)", true, nil},
		{"lowercase", "=sum(a2:a10)", true, nil},
		{"missing close", "=SUM(A1", false, []string{"Missing 1 closing parenthesis(es)"}},
		{"extra close", "=SUM(A1))", false, []string{
			"Unexpected closing parenthesis at position 9",
			"1 extra closing parenthesis(es)",
		}},
		{"parens in string", `=IF(A1="((",1,0)`, true, nil},
		{"quoted sheet", "='Q1 (draft)'!A1+1", true, nil},
		{"unmatched quote", `=LEN("abc)`, false, []string{"Missing 1 closing parenthesis(es)", "Unmatched double quote"}},
		{"unknown in order", "=FOO(BAR(1))", false, []string{"Unknown function: FOO", "Unknown function: BAR"}},
		{"too few args", "=ROUND()", false, []string{"ROUND requires at least 1 argument(s), got 0"}},
		{"too many args", "=IF(A1,1,2,3)", false, []string{"IF accepts at most 3 argument(s), got 4"}},
		{"array literal arg", "=SUM({1,2,3})", true, nil},
		{"dotted name", "=ERROR.TYPE(A1)", true, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, errs := Validate(tc.formula)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.errs, errs)
		})
	}
}

func TestValidate_DeterministicAndBalancedWhenValid(t *testing.T) {
	formulas := []string{
		"=SUM(A2:A10)",
		`=IFERROR(VLOOKUP(A2,'Price List'!A2:C50,3,FALSE),"n/a")`,
		"=SUMPRODUCT((A2:A10>100)*(B2:B10))",
		"=UNIQUE(FILTER(A2:A50,B2:B50<>\"\"))",
		"=FOO(1",
		`=CONCAT("a","b"`,
		"=INDEX(B2:B9,MATCH(MAX(C2:C9),C2:C9,0))",
	}
	for _, f := range formulas {
		ok1, errs1 := Validate(f)
		ok2, errs2 := Validate(f)
		require.Equal(t, ok1, ok2, f)
		require.Equal(t, errs1, errs2, f)
		if !ok1 {
			continue
		}
		require.Equal(t, strings.Count(f, "("), strings.Count(f, ")"), f)
		require.Zero(t, strings.Count(f, `"`)%2, f)
	}
}

func TestRepair_TypoAndFullColumn(t *testing.T) {
	res := Repair("=VLOKUP(A2,B:D,2,FALSE)", 50)

	require.Equal(t, "=VLOKUP(A2,B2:D50,2,FALSE)", res.Formula)
	require.Contains(t, res.Warnings, "Fixed full column B:D to B2:D50")
	require.Contains(t, res.Warnings, "CRITICAL SYNTAX ERROR: Unknown function: VLOKUP")
	require.Equal(t, []string{"Unknown function: VLOKUP"}, res.Critical)
	require.True(t, res.Blocking())
	require.True(t, res.Changed())
	require.NotEmpty(t, res.Diff)
}

func TestRepair_OpenEndedRange(t *testing.T) {
	res := Repair("=SUM(A5:A)", 30)

	require.Equal(t, "=SUM(A5:A30)", res.Formula)
	require.Equal(t, []string{"Fixed open-ended range A5:A to A5:A30"}, res.Warnings)
	require.False(t, res.Blocking())
}

func TestRepair_DefaultLastRow(t *testing.T) {
	res := Repair("=COUNTA(C2:C)", 0)
	require.Equal(t, "=COUNTA(C2:C100)", res.Formula)
}

func TestRepair_SumifMultiplication(t *testing.T) {
	res := Repair(`=SUMIF(A2:A10,">100",B2:B10*C2:C10)`, 10)

	require.Equal(t, "=SUMPRODUCT((A2:A10>100)*(B2:B10*C2:C10))", res.Formula)
	require.NotEmpty(t, res.Warnings)
	require.True(t, strings.HasPrefix(res.Warnings[0], "CONVERTED: SUMIF with multiplication is invalid."))
	require.Empty(t, res.Critical)
}

func TestRepair_SumifTextCriterion(t *testing.T) {
	res := Repair(`=SUMIF(A2:A10,"East",B2:B10*C2:C10)`, 10)
	require.Equal(t, `=SUMPRODUCT((A2:A10="East")*(B2:B10*C2:C10))`, res.Formula)
}

func TestRepair_SumifParenthesisedProduct(t *testing.T) {
	res := Repair(`=SUMIF(A2:A10,"x",(B2:B10)*(C2:C10))`, 10)
	require.Equal(t, `=SUMPRODUCT((A2:A10="x")*((B2:B10)*(C2:C10)))`, res.Formula)
	require.True(t, strings.HasPrefix(res.Warnings[0], "CONVERTED:"))
	ok, errs := Validate(res.Formula)
	require.True(t, ok, errs)

	res = Repair(`=IF(D1>0,sumif(A2:A10,"<5",B2:B10*(C2:C10+1)),0)`, 10)
	require.Equal(t, `=IF(D1>0,SUMPRODUCT((A2:A10<5)*(B2:B10*(C2:C10+1))),0)`, res.Formula)
}

func TestRepair_SumifWithoutProductUntouched(t *testing.T) {
	for _, f := range []string{
		`=SUMIF(A2:A10,"*East*",B2:B10)`,
		`=SUMIFS(B2:B10*C2:C10,A2:A10,"x")`,
		`=SUMIF(A2:A10,"x")`,
	} {
		res := Repair(f, 10)
		require.Equal(t, f, res.Formula, f)
	}
}

func TestRepair_EmptyFormulaIsCritical(t *testing.T) {
	res := Repair("=  ", 10)
	require.True(t, res.Blocking())
	require.Equal(t, []string{"Empty formula after '='"}, res.Critical)
}

func TestRepair_LeavesCleanFormulaAlone(t *testing.T) {
	res := Repair("=AVERAGE(B2:B20)", 20)
	require.False(t, res.Changed())
	require.Empty(t, res.Warnings)
	require.Empty(t, res.Diff)
}

func TestRepair_IgnoresRangesInsideStrings(t *testing.T) {
	res := Repair(`=IF(A2="A:A","yes","no")`, 40)
	require.False(t, res.Changed())
}

func TestGuardFillDown(t *testing.T) {
	fill, warn := GuardFillDown("=UNIQUE(A2:A50)", true)
	require.False(t, fill)
	require.Equal(t, "BLOCKED fillDown=true for auto-spill formula (UNIQUE). These formulas auto-expand.", warn)

	fill, warn = GuardFillDown("=SUM(A2:B2)", true)
	require.True(t, fill)
	require.Empty(t, warn)

	fill, warn = GuardFillDown("=arrayformula(A2:A*2)", false)
	require.False(t, fill)
	require.Empty(t, warn)
}

func TestSuggest(t *testing.T) {
	require.Empty(t, Suggest("=SUM(A2:A10)"))

	s := Suggest(`=IF(A1>1,"a",IF(A1>0,"b","c"))`)
	require.Len(t, s, 1)
	require.Contains(t, s[0], "IFS()")

	s = Suggest("=INDEX(B:B,MATCH(1,A:A,0))")
	require.Len(t, s, 2)
	require.Contains(t, s[0], "XLOOKUP")
	require.Contains(t, s[1], "Full column references")
}

func TestInlineDiff(t *testing.T) {
	require.Equal(t, "=SUM(A2:A{+10+})", InlineDiff("=SUM(A2:A)", "=SUM(A2:A10)"))
}

func TestLookup(t *testing.T) {
	a, ok := Lookup(" vlookup ")
	require.True(t, ok)
	require.True(t, a.Accepts(3))
	require.True(t, a.Accepts(4))
	require.False(t, a.Accepts(5))
	_, ok = Lookup("VLOKUP")
	require.False(t, ok)
	require.Greater(t, FunctionCount(), 150)
}
