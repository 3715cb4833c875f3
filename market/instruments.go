package market

// InstrumentMeta describes a contract the engine can trade.
type InstrumentMeta struct {
	Name             string
	Exchange         string
	TickSize         float64
	PointValue       float64
	MinimumTradeSize float64
}

var Instruments = map[string]InstrumentMeta{
	"ES": {
		Name:             "ES",
		Exchange:         "CME",
		TickSize:         0.25,
		PointValue:       50,
		MinimumTradeSize: 1,
	},
	"NQ": {
		Name:             "NQ",
		Exchange:         "CME",
		TickSize:         0.25,
		PointValue:       20,
		MinimumTradeSize: 1,
	},
	"GC": {
		Name:             "GC",
		Exchange:         "COMEX",
		TickSize:         0.10,
		PointValue:       100,
		MinimumTradeSize: 1,
	},
	"CL": {
		Name:             "CL",
		Exchange:         "NYMEX",
		TickSize:         0.01,
		PointValue:       1000,
		MinimumTradeSize: 1,
	},
	"FDAX": {
		Name:             "FDAX",
		Exchange:         "EUREX",
		TickSize:         0.5,
		PointValue:       25,
		MinimumTradeSize: 1,
	},
}

// Tick returns the instrument's tick size, or 0 for unknown instruments.
func Tick(instrument string) float64 {
	if m, ok := Instruments[instrument]; ok {
		return m.TickSize
	}
	return 0
}
