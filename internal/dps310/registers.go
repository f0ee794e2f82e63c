package dps310

// Register map for the Infineon DPS310 barometric pressure sensor.
// Datasheet:
// https://www.infineon.com/dgdl/Infineon-DPS310-DataSheet-v01_02-EN.pdf

// DefaultAddress is the DPS310 default I2C address.
const DefaultAddress = 0x77

const (
	regPRSB2      = 0x00 // highest byte of pressure data (3 bytes, MSB first)
	regTMPB2      = 0x03 // highest byte of temperature data (3 bytes, MSB first)
	regPRSCFG     = 0x06 // pressure configuration
	regTMPCFG     = 0x07 // temperature configuration
	regMEASCFG    = 0x08 // sensor operating mode and status
	regCFGREG     = 0x09 // interrupt/FIFO configuration
	regRESET      = 0x0C // soft reset
	regPRODREVID  = 0x0D // product and revision id
	regCOEF       = 0x10 // first of 18 calibration coefficient bytes (0x10..0x21)
	regTMPCOEFSRC = 0x28 // temperature source used for factory calibration
)

// Undocumented registers written by the temperature-erratum workaround, per
// Infineon's own driver (DpsClass::correctTemp).
const (
	regErratum0E = 0x0E
	regErratum0F = 0x0F
	regErratum62 = 0x62
)

const (
	resetValue     = 0x89  // soft reset command plus FIFO flush
	modeContinuous = 0b111 // continuous pressure and temperature measurement
	coefLen        = 18
)

// scaleFactor maps an oversampling rate code (0..7, i.e. 1x..128x) to the
// compensation scale factor kT/kP from datasheet section 4.9.3.
var scaleFactor = [8]float64{
	524288,
	1572864,
	3670016,
	7864320,
	253952,
	516096,
	1040384,
	2088960,
}
