package buildconfig

import "github.com/golang-dep-labs/ruf-audit/internal/rufstatus"

// nightlyDates maps a compiler minor version to the pinned nightly
// toolchain build date that version was tested against. rustup installs
// nightlies by date, so resolving a minor version to a concrete toolchain
// name requires a static pin rather than a formula -- nightly cadence
// isn't calendar-regular.
var nightlyDates = map[int]string{
	1:  "2015-05-16",
	2:  "2015-05-28",
	3:  "2015-06-26",
	4:  "2015-08-08",
	5:  "2015-09-18",
	6:  "2015-10-30",
	7:  "2015-12-10",
	8:  "2016-01-22",
	9:  "2016-03-04",
	10: "2016-05-27",
	11: "2016-06-16",
	12: "2016-07-08",
	13: "2016-08-19",
	14: "2016-09-30",
	15: "2016-12-02",
	16: "2017-02-03",
	17: "2017-03-02",
	18: "2017-04-28",
	19: "2017-06-09",
	20: "2017-07-20",
	21: "2017-09-01",
	22: "2017-10-12",
	23: "2017-11-23",
	24: "2018-01-04",
	25: "2018-02-14",
	26: "2018-03-29",
	27: "2018-05-11",
	28: "2018-06-28",
	29: "2018-08-02",
	30: "2018-09-13",
	31: "2018-10-22",
	32: "2018-12-08",
	33: "2019-01-18",
	34: "2019-03-01",
	35: "2019-04-12",
	36: "2019-05-24",
	37: "2019-07-04",
	38: "2019-08-15",
	39: "2019-09-20",
	40: "2019-11-07",
	41: "2019-12-19",
	42: "2020-01-31",
	43: "2020-03-12",
	44: "2020-04-23",
	45: "2020-06-05",
	46: "2020-07-16",
	47: "2020-08-27",
	48: "2020-09-11",
	49: "2020-10-08",
	50: "2020-11-19",
	51: "2020-12-31",
	52: "2021-02-11",
	53: "2021-03-25",
	54: "2021-05-06",
	55: "2021-06-17",
	56: "2021-07-29",
	57: "2021-09-09",
	58: "2021-10-21",
	59: "2021-12-02",
	60: "2022-01-14",
	61: "2022-02-25",
	62: "2022-04-07",
	63: "2022-05-19",
}

// NightlyToolchain returns the "nightly-YYYY-MM-DD" toolchain name pinned
// to compilerVer, and false if compilerVer has no pinned date (out of the
// known range, or version 0, which has no predecessor nightly).
func NightlyToolchain(compilerVer int) (string, bool) {
	if compilerVer < 0 || compilerVer >= rufstatus.MaxCompilerVersion {
		return "", false
	}
	date, ok := nightlyDates[compilerVer]
	if !ok {
		return "", false
	}
	return "nightly-" + date, true
}
