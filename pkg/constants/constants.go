// Package constants provides shared physical and unit-conversion constants
// for the orbitfit application.
package constants

import "math"

// Physical constants, CODATA/IAU nominal values.
const (
	// AU2KM is one astronomical unit in kilometers
	AU2KM = 1.495978707e8

	// PC2KM is one parsec in kilometers
	PC2KM = 3.085677581e13

	// MSun is the solar mass in kilograms
	MSun = 1.9885e30

	// G is the gravitational constant in km^3 kg^-1 s^-2
	G = 6.67430e-20

	// Day2Sec is the number of seconds in a day
	Day2Sec = 86400
)

// Angular conversion factors.
const (
	Deg2Rad = math.Pi / 180
	Rad2Deg = 180 / math.Pi

	// Mas2Rad converts milliarcseconds to radians
	Mas2Rad = 1e-3 / 3600 * Deg2Rad

	// Rad2Mas converts radians to milliarcseconds
	Rad2Mas = Rad2Deg * 3600 * 1e3
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"
)
