package formula

import "strings"

// unbounded marks a function that accepts any number of trailing arguments.
const unbounded = -1

// Arity is the inclusive argument-count range accepted by a spreadsheet function.
type Arity struct {
	Min int
	Max int
}

// Accepts reports whether n arguments fall within the range.
func (a Arity) Accepts(n int) bool {
	if n < a.Min {
		return false
	}
	return a.Max == unbounded || n <= a.Max
}

// knownFunctions is the function-name table checked by Validate.
var knownFunctions = map[string]Arity{
	// Aggregation
	"SUM": {1, unbounded}, "SUMIF": {2, 3}, "SUMIFS": {3, unbounded}, "SUMPRODUCT": {1, unbounded},
	"AVERAGE": {1, unbounded}, "AVERAGEIF": {2, 3}, "AVERAGEIFS": {3, unbounded},
	"COUNT": {1, unbounded}, "COUNTA": {1, unbounded}, "COUNTBLANK": {1, 1},
	"COUNTIF": {2, 2}, "COUNTIFS": {2, unbounded},
	"MAX": {1, unbounded}, "MAXIFS": {3, unbounded}, "MIN": {1, unbounded}, "MINIFS": {3, unbounded},

	// Math
	"ABS": {1, 1}, "ROUND": {1, 2}, "ROUNDUP": {2, 2}, "ROUNDDOWN": {2, 2}, "INT": {1, 1},
	"MOD": {2, 2}, "POWER": {2, 2}, "SQRT": {1, 1}, "PRODUCT": {1, unbounded}, "MEDIAN": {1, unbounded},
	"LARGE": {2, 2}, "SMALL": {2, 2}, "RANK": {2, 3}, "PERCENTILE": {2, 2},
	"RAND": {0, 0}, "RANDBETWEEN": {2, 2},
	"CEILING": {1, 2}, "FLOOR": {1, 2}, "LOG": {1, 2}, "LOG10": {1, 1}, "LN": {1, 1},
	"EXP": {1, 1}, "SIGN": {1, 1}, "TRUNC": {1, 2},

	// Lookup and reference
	"VLOOKUP": {3, 4}, "HLOOKUP": {3, 4}, "INDEX": {2, 3}, "MATCH": {2, 3}, "XLOOKUP": {3, 6},
	"OFFSET": {3, 5}, "INDIRECT": {1, 2}, "ROW": {0, 1}, "COLUMN": {0, 1},
	"ROWS": {1, 1}, "COLUMNS": {1, 1}, "CHOOSE": {2, unbounded}, "ADDRESS": {2, 5},

	// Text
	"LEFT": {1, 2}, "RIGHT": {1, 2}, "MID": {3, 3}, "LEN": {1, 1}, "TRIM": {1, 1}, "CLEAN": {1, 1},
	"UPPER": {1, 1}, "LOWER": {1, 1}, "PROPER": {1, 1}, "SUBSTITUTE": {3, 4}, "REPLACE": {4, 4},
	"FIND": {2, 3}, "SEARCH": {2, 3}, "CONCATENATE": {1, unbounded}, "CONCAT": {1, unbounded},
	"TEXTJOIN": {3, unbounded}, "TEXT": {2, 2}, "VALUE": {1, 1}, "REPT": {2, 2}, "EXACT": {2, 2},
	"T": {1, 1}, "CHAR": {1, 1}, "CODE": {1, 1}, "NUMBERVALUE": {1, 3},
	"REGEXMATCH": {2, 2}, "REGEXEXTRACT": {2, 2}, "REGEXREPLACE": {3, 3},
	"SPLIT": {2, 4}, "JOIN": {2, unbounded},

	// Date and time
	"TODAY": {0, 0}, "NOW": {0, 0}, "DATE": {3, 3}, "YEAR": {1, 1}, "MONTH": {1, 1}, "DAY": {1, 1},
	"HOUR": {1, 1}, "MINUTE": {1, 1}, "SECOND": {1, 1}, "DATEVALUE": {1, 1}, "DATEDIF": {3, 3},
	"EDATE": {2, 2}, "EOMONTH": {2, 2}, "WEEKDAY": {1, 2}, "WEEKNUM": {1, 2},
	"NETWORKDAYS": {2, 3}, "WORKDAY": {2, 3}, "TIME": {3, 3}, "TIMEVALUE": {1, 1},
	"ISOWEEKNUM": {1, 1}, "DAYS": {2, 2},

	// Logical
	"IF": {2, 3}, "IFS": {2, unbounded}, "AND": {1, unbounded}, "OR": {1, unbounded}, "NOT": {1, 1},
	"IFERROR": {2, 2}, "IFNA": {2, 2}, "SWITCH": {3, unbounded}, "TRUE": {0, 0}, "FALSE": {0, 0},
	"XOR": {1, unbounded},

	// Arrays and dynamic ranges
	"UNIQUE": {1, 3}, "FILTER": {2, 3}, "SORT": {1, 4}, "SORTN": {1, unbounded}, "SEQUENCE": {1, 4},
	"ARRAYFORMULA": {1, 1}, "FLATTEN": {1, unbounded}, "TRANSPOSE": {1, 1}, "IMPORTRANGE": {2, 2},
	"MAP": {2, unbounded}, "LAMBDA": {2, unbounded}, "REDUCE": {3, 3}, "BYROW": {2, 2}, "BYCOL": {2, 2},
	"MAKEARRAY": {3, 3}, "LET": {3, unbounded}, "SCAN": {3, 3},
	"HSTACK": {1, unbounded}, "VSTACK": {1, unbounded}, "TOROW": {1, 3}, "TOCOL": {1, 3},
	"WRAPCOLS": {2, 3}, "WRAPROWS": {2, 3}, "CHOOSEROWS": {2, unbounded}, "CHOOSECOLS": {2, unbounded},

	// Statistical
	"STDEV": {1, unbounded}, "STDEVP": {1, unbounded}, "VAR": {1, unbounded}, "VARP": {1, unbounded},
	"CORREL": {2, 2}, "FORECAST": {3, 3}, "TREND": {1, 4}, "GROWTH": {1, 4}, "PERCENTRANK": {2, 3},

	// Financial
	"PMT": {3, 5}, "FV": {3, 5}, "PV": {3, 5}, "NPV": {2, unbounded}, "IRR": {1, 2}, "RATE": {3, 6},
	"NPER": {3, 5}, "SLN": {3, 3}, "DDB": {4, 5}, "DB": {4, 5},

	// Database
	"DSUM": {3, 3}, "DAVERAGE": {3, 3}, "DCOUNT": {3, 3}, "DCOUNTA": {3, 3}, "DMAX": {3, 3},
	"DMIN": {3, 3}, "DGET": {3, 3}, "DPRODUCT": {3, 3}, "DSTDEV": {3, 3}, "DVAR": {3, 3},

	// Web
	"IMPORTHTML": {3, 3}, "IMPORTXML": {2, 2}, "IMPORTDATA": {1, 1},

	// Information
	"ISBLANK": {1, 1}, "ISERROR": {1, 1}, "ISNA": {1, 1}, "ISNUMBER": {1, 1}, "ISTEXT": {1, 1},
	"ISLOGICAL": {1, 1}, "ISEVEN": {1, 1}, "ISODD": {1, 1}, "ISERR": {1, 1}, "ERROR.TYPE": {1, 1},
	"ISREF": {1, 1}, "ISFORMULA": {1, 1}, "TYPE": {1, 1}, "CELL": {1, 2}, "N": {1, 1}, "NA": {0, 0},
	"SHEET": {0, 1}, "SHEETS": {0, 1},

	// Google Sheets specific
	"HYPERLINK": {1, 2}, "IMAGE": {1, 4}, "SPARKLINE": {1, 2}, "QUERY": {2, 3},
}

// Lookup returns the arity for a function name, case-insensitively.
func Lookup(name string) (Arity, bool) {
	a, ok := knownFunctions[strings.ToUpper(strings.TrimSpace(name))]
	return a, ok
}

// FunctionCount reports how many functions the validator knows.
func FunctionCount() int { return len(knownFunctions) }
